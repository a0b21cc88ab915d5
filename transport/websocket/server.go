// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package websocket carries the local control surface's live event feed
// (GET /api/events) rather than peer-to-peer SecureMessages: the node-to-node
// wire path is C7's transport/tcp, so this package's only job is pushing
// supervisor lifecycle events out to whatever owner tooling is watching.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Broadcaster upgrades HTTP connections to WebSocket and pushes every event
// it is handed to every currently-connected owner client. It replaces the
// teacher's bidirectional SecureMessage server: this is push-only, there is
// no inbound message handler, since owner tooling only watches, it doesn't
// issue commands over this channel (the command socket in control/commands.go
// covers that).
type Broadcaster struct {
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	connMu sync.RWMutex
	conns  map[*websocket.Conn]bool
}

// NewBroadcaster creates an empty Broadcaster. CheckOrigin is left to the
// caller to tighten (the control server only ever calls Handler() behind its
// own CORS/auth middleware, so this package does not duplicate that check).
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: 10 * time.Second,
		conns:        make(map[*websocket.Conn]bool),
	}
}

// Handler upgrades the connection and holds it open, discarding any
// messages the client sends (this is a push-only feed) until it disconnects.
func (b *Broadcaster) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		b.add(conn)
		defer b.remove(conn)
		defer func() { _ = conn.Close() }()

		// Drain and discard; the only way this loop ends is a read
		// error (client closed the connection).
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// Broadcast sends ev as JSON to every connected client. A client whose
// write fails or times out is dropped rather than allowed to stall the
// broadcast for everyone else.
func (b *Broadcaster) Broadcast(ev interface{}) {
	b.connMu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.connMu.RUnlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if err := c.WriteJSON(ev); err != nil {
			b.remove(c)
			_ = c.Close()
		}
	}
}

// ConnectionCount reports the number of currently-upgraded clients.
func (b *Broadcaster) ConnectionCount() int {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return len(b.conns)
}

// Close disconnects every client.
func (b *Broadcaster) Close() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	for c := range b.conns {
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.Close()
	}
	b.conns = make(map[*websocket.Conn]bool)
	return nil
}

func (b *Broadcaster) add(c *websocket.Conn) {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	b.conns[c] = true
}

func (b *Broadcaster) remove(c *websocket.Conn) {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	delete(b.conns, c)
}
