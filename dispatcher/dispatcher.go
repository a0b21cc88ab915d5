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

package dispatcher

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/nodecore/envelope"
	"github.com/sage-x-project/nodecore/router"
)

// Sender is the subset of router.Router the dispatcher needs to emit
// outbound envelopes. Satisfied by *router.Router.
type Sender interface {
	Send(dst string, payload []byte) (router.DeliveryReceipt, error)
}

type pendingRequest struct {
	resultCh chan ResponseBody
}

// Dispatcher owns the type -> handler table (request_Body) and the
// per-request correlation table, mirroring the single-mutex,
// map-per-concern discipline of core/message/order.Manager, generalized
// from "last sequence per session" to "pending result per request id".
type Dispatcher struct {
	selfID string
	self   ed25519.PrivateKey
	sender Sender

	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]*pendingRequest

	onUnknownType func(from, typ string)
}

// New creates a Dispatcher that signs outbound envelopes as selfID and
// sends them via sender (normally a *router.Router).
func New(selfID string, self ed25519.PrivateKey, sender Sender) *Dispatcher {
	return &Dispatcher{
		selfID:   selfID,
		self:     self,
		sender:   sender,
		handlers: make(map[string]Handler),
		pending:  make(map[string]*pendingRequest),
	}
}

// OnUnknownType registers the hook invoked when Dispatch receives an
// envelope of a type with no registered handler.
func (d *Dispatcher) OnUnknownType(fn func(from, typ string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUnknownType = fn
}

// RegisterHandler binds typ to fn, replacing any prior handler. Callers
// typically register ping/hello/welcome/announce/gossip handlers at
// startup; response is handled internally (see Request below) unless
// the caller overrides it, while request needs a registered handler.
func (d *Dispatcher) RegisterHandler(typ string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[typ] = fn
}

// Dispatch routes one inbound, already-verified envelope to its
// handler. A "response" envelope is special-cased: it resolves a
// pending Request instead of going through the handler table, unless
// the caller explicitly registered its own "response" handler.
func (d *Dispatcher) Dispatch(env *envelope.Envelope) error {
	if env.Type == TypeResponse {
		d.mu.Lock()
		_, overridden := d.handlers[TypeResponse]
		d.mu.Unlock()
		if !overridden {
			return d.resolveResponse(env.Body)
		}
	}

	d.mu.Lock()
	handler, ok := d.handlers[env.Type]
	hook := d.onUnknownType
	d.mu.Unlock()

	if !ok {
		if hook != nil {
			hook(env.From, env.Type)
		}
		return nil
	}
	return handler(env.From, env.Body)
}

func (d *Dispatcher) resolveResponse(body []byte) error {
	var resp ResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("dispatcher: decode response body: %w", err)
	}

	d.mu.Lock()
	pr, ok := d.pending[resp.ID]
	if ok {
		delete(d.pending, resp.ID)
	}
	d.mu.Unlock()

	if !ok {
		// No caller is waiting (already timed out, or a stray reply);
		// dropping it is correct, not an error.
		return nil
	}
	pr.resultCh <- resp
	return nil
}

// send builds, signs, encodes, and routes one envelope of typ to dst.
func (d *Dispatcher) send(typ, dst string, body []byte) error {
	env, err := envelope.New(typ, d.selfID, dst, body)
	if err != nil {
		return err
	}
	envelope.Sign(env, d.self)
	_, err = d.sender.Send(dst, envelope.Encode(env))
	return err
}

// Notify sends a one-way, non-correlated envelope (ping/pong/hello/
// welcome/announce/gossip) to dst.
func (d *Dispatcher) Notify(typ, dst string, body []byte) error {
	return d.send(typ, dst, body)
}

// Request sends a "request" envelope to dst and blocks until a
// correlated "response" arrives or timeout elapses, returning
// ErrTimeout in the latter case.
func (d *Dispatcher) Request(dst, method string, params []byte, timeout time.Duration) (ResponseBody, error) {
	id := uuid.NewString()
	body, err := json.Marshal(RequestBody{ID: id, Method: method, Params: params})
	if err != nil {
		return ResponseBody{}, fmt.Errorf("dispatcher: encode request: %w", err)
	}

	pr := &pendingRequest{resultCh: make(chan ResponseBody, 1)}

	d.mu.Lock()
	if _, exists := d.pending[id]; exists {
		d.mu.Unlock()
		return ResponseBody{}, ErrRequestInFlight
	}
	d.pending[id] = pr
	d.mu.Unlock()

	if err := d.send(TypeRequest, dst, body); err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return ResponseBody{}, err
	}

	select {
	case resp := <-pr.resultCh:
		return resp, nil
	case <-time.After(timeout):
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return ResponseBody{}, ErrTimeout
	}
}

// Reply sends a "response" envelope correlated to id back to dst,
// populating Error instead of Result when handling failed.
func (d *Dispatcher) Reply(dst, id string, result []byte, handlerErr error) error {
	resp := ResponseBody{ID: id, Result: result}
	if handlerErr != nil {
		resp.Error = handlerErr.Error()
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("dispatcher: encode response: %w", err)
	}
	return d.send(TypeResponse, dst, body)
}

// PendingCount reports the number of in-flight requests; a growing
// count points at a dispatcher stuck on a misbehaving peer.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
