// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package control

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/trust"
)

// CommandServer is the local bidirectional byte-channel command surface
// spec.md §4.11 names: newline-delimited commands over a UNIX-domain
// socket, the first line of every connection required to be
// "AUTH <token>". Grounded on the newline-delimited framing
// core/handshake's message parsing already uses, applied here to a
// bufio.Scanner command loop instead of a length-prefixed binary frame,
// since the local surface is meant to be readable with `nc` or `socat`.
type CommandServer struct {
	auth     *Authenticator
	deps     Deps
	log      logger.Logger
	listener net.Listener
}

// NewCommandServer wires a CommandServer to the same Authenticator and
// Deps the HTTP Server uses, so owner sessions behave identically over
// either transport.
func NewCommandServer(auth *Authenticator, deps Deps) *CommandServer {
	return &CommandServer{auth: auth, deps: deps, log: logger.GetDefaultLogger()}
}

// Listen creates (replacing any stale socket file) the UNIX-domain
// socket at path, restricted to the owning user.
func (c *CommandServer) Listen(path string) error {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		l.Close()
		return fmt.Errorf("control: chmod %s: %w", path, err)
	}
	c.listener = l
	return nil
}

// Serve accepts connections until Close is called. Each connection is
// handled on its own goroutine; a panic in one connection's handler
// never brings down the listener.
func (c *CommandServer) Serve() error {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return err
		}
		go c.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (c *CommandServer) Close() error {
	if c.listener == nil {
		return nil
	}
	return c.listener.Close()
}

func (c *CommandServer) handleConn(conn net.Conn) {
	defer conn.Close()
	// A panicking command ends only this connection.
	defer func() { _ = recover() }()
	scanner := bufio.NewScanner(conn)

	if !scanner.Scan() {
		return
	}
	if !c.authenticateLine(scanner.Text()) {
		writeLine(conn, errorLine("unauthorized"))
		return
	}
	writeLine(conn, `{"status":"authenticated"}`)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "LOGOUT" {
			writeLine(conn, `{"status":"bye"}`)
			return
		}
		writeLine(conn, c.dispatch(line))
	}
}

func (c *CommandServer) authenticateLine(line string) bool {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(parts) != 2 || parts[0] != "AUTH" {
		return false
	}
	return c.auth.VerifyAccess(parts[1]) == nil
}

// dispatch executes a single post-AUTH command and returns the
// single-line JSON response spec.md §4.11 requires.
func (c *CommandServer) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return errorLine("empty command")
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "state":
		return c.jsonLine(map[string]interface{}{
			"startedAt": c.deps.StartedAt,
			"node_id":   c.deps.Identity.NodeID,
			"services":  c.deps.Supervisor.Descriptors(),
		})
	case "identity":
		return c.jsonLine(map[string]interface{}{
			"node_id":        c.deps.Identity.NodeID,
			"ed25519_public": base64.StdEncoding.EncodeToString(c.deps.Identity.Ed25519Public),
			"x25519_public":  base64.StdEncoding.EncodeToString(c.deps.Identity.X25519Public),
		})
	case "services":
		return c.jsonLine(c.deps.Supervisor.Descriptors())
	case "trust:list":
		return c.jsonLine(c.deps.Trust.ListPeers())
	case "trust:add":
		if len(args) != 2 {
			return errorLine("usage: trust:add <id> <pubkey>")
		}
		pub, err := decodePublicKey32(args[1])
		if err != nil {
			return errorLine(err.Error())
		}
		if _, err := c.deps.Trust.AddPeer(args[0], pub, pub, trust.LevelLow); err != nil {
			return errorLine(err.Error())
		}
		return `{"status":"added"}`
	case "trust:remove":
		if len(args) != 1 {
			return errorLine("usage: trust:remove <id>")
		}
		if _, err := c.deps.Trust.RemovePeer(args[0]); err != nil {
			return errorLine(err.Error())
		}
		return `{"status":"removed"}`
	case "router:routes":
		return c.jsonLine(c.deps.Router.ListRoutes())
	case "router:add":
		if len(args) != 2 {
			return errorLine("usage: router:add <peerId> <pubkey>")
		}
		if _, err := decodePublicKey32(args[1]); err != nil {
			return errorLine(err.Error())
		}
		c.deps.Router.AddRoute(args[0], args[0])
		return `{"status":"added"}`
	case "router:remove":
		if len(args) != 1 {
			return errorLine("usage: router:remove <peerId>")
		}
		c.deps.Router.RemoveRoute(args[0])
		return `{"status":"removed"}`
	case "router:send":
		if len(args) < 2 {
			return errorLine("usage: router:send <peerId> <json>")
		}
		payload := strings.Join(args[1:], " ")
		if len(payload) > maxJSONBodyBytes {
			return errorLine(ErrBodyTooLarge.Error())
		}
		receipt, err := c.deps.Router.Send(args[0], []byte(payload))
		if err != nil {
			return errorLine(err.Error())
		}
		return c.jsonLine(receipt)
	case "router:ping":
		if len(args) != 1 {
			return errorLine("usage: router:ping <peerId>")
		}
		receipt, err := c.deps.Router.Send(args[0], []byte(`{"type":"ping"}`))
		if err != nil {
			return errorLine(err.Error())
		}
		return c.jsonLine(receipt)
	default:
		return errorLine("unknown command: " + cmd)
	}
}

func (c *CommandServer) jsonLine(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return errorLine(err.Error())
	}
	return string(data)
}

func errorLine(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

func writeLine(conn net.Conn, line string) {
	_, _ = conn.Write([]byte(line + "\n"))
}
