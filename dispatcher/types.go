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

// Package dispatcher maps envelope types to handlers and correlates
// request/response pairs across the router (C8).
package dispatcher

import "errors"

// Canonical envelope types, per spec.md §4.9.
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeHello    = "hello"
	TypeWelcome  = "welcome"
	TypeAnnounce = "announce"
	TypeGossip   = "gossip"
	TypeRequest  = "request"
	TypeResponse = "response"
)

var (
	// ErrTimeout is returned to a local caller of Request when no
	// response with a matching id arrives before the deadline.
	ErrTimeout = errors.New("dispatcher: request timed out")

	// ErrUnknownType marks an envelope whose type has no registered
	// handler. Dispatch drops the envelope and reports this via the
	// OnUnknownType hook; it is never returned to the remote sender, to
	// avoid giving an oracle for which types a node understands.
	ErrUnknownType = errors.New("dispatcher: unknown envelope type")

	// ErrRequestInFlight is returned by Request if the same id is
	// already pending, which should not happen for freshly generated
	// ids but guards against a caller reusing one.
	ErrRequestInFlight = errors.New("dispatcher: request id already pending")
)

// RequestBody is the canonical body shape for a "request"-typed
// envelope.
type RequestBody struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params []byte          `json:"params,omitempty"`
}

// ResponseBody is the canonical body shape for a "response"-typed
// envelope. Exactly one of Result/Error is populated.
type ResponseBody struct {
	ID     string `json:"id"`
	Result []byte `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler processes one inbound envelope of a registered type. from is
// the envelope's signed origin (already verified by the router).
type Handler func(from string, body []byte) error
