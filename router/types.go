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

// Package router implements the multi-hop routing table, TTL/hop-signed
// forwarding, and loop/dedup guards that sit between the secure channel
// (C6) and the protocol dispatcher (C9).
package router

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// Hop is one forwarder's attestation: its identity plus a signature over
// the accumulated routing context at the time it forwarded the message.
type Hop struct {
	PeerID    string
	Signature []byte
}

// RoutedMessage is the hop-to-hop envelope carrier: {src, dst, ttl,
// payload, hops}, per spec.md's data model. Payload is the already
// end-to-end-signed envelope.Encode output; the router never inspects
// or modifies it except to decrement TTL and append hops.
type RoutedMessage struct {
	Src     string
	Dst     string
	TTL     uint8
	Payload []byte
	Hops    []Hop
}

// DeliveryReceipt reports the outcome of a Send call.
type DeliveryReceipt struct {
	Delivered bool
	NextHop   string
	Reason    string
}

var (
	ErrTTLExpired = errors.New("router: ttl expired")
	ErrLoop       = errors.New("router: hop loop detected")
	ErrNoRoute    = errors.New("router: no route to destination")
	ErrDuplicate  = errors.New("router: duplicate message dropped by dedup window")
	ErrBadHopSig  = errors.New("router: hop signature failed verification")
	ErrUnknownHop = errors.New("router: hop signer not in trust store")
)

// hopDigest is H(src || dst || payload || prev_hops), the bytes each
// forwarder signs with its own identity key before appending its Hop.
func hopDigest(src, dst string, payload []byte, priorHops []Hop) []byte {
	h := sha256.New()
	h.Write([]byte(src))
	h.Write([]byte(dst))
	h.Write(payload)
	for _, hop := range priorHops {
		h.Write([]byte(hop.PeerID))
		h.Write(hop.Signature)
	}
	return h.Sum(nil)
}

// EncodeRoutedMessage serializes a RoutedMessage for transmission over a
// channel frame, using the same length-prefixed discipline as the
// envelope codec.
func EncodeRoutedMessage(m *RoutedMessage) []byte {
	var buf bytes.Buffer
	writeStr(&buf, m.Src)
	writeStr(&buf, m.Dst)
	buf.WriteByte(m.TTL)
	writeBytes(&buf, m.Payload)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(m.Hops)))
	buf.Write(countBuf[:])
	for _, hop := range m.Hops {
		writeStr(&buf, hop.PeerID)
		writeBytes(&buf, hop.Signature)
	}
	return buf.Bytes()
}

// DecodeRoutedMessage reverses EncodeRoutedMessage.
func DecodeRoutedMessage(data []byte) (*RoutedMessage, error) {
	r := bytes.NewReader(data)

	src, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("router: read src: %w", err)
	}
	dst, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("router: read dst: %w", err)
	}
	ttl, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("router: read ttl: %w", err)
	}
	payload, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("router: read payload: %w", err)
	}

	var countBuf [4]byte
	if _, err := readFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("router: read hop count: %w", err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	hops := make([]Hop, 0, count)
	for i := uint32(0); i < count; i++ {
		peerID, err := readStr(r)
		if err != nil {
			return nil, fmt.Errorf("router: read hop peer: %w", err)
		}
		sig, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("router: read hop sig: %w", err)
		}
		hops = append(hops, Hop{PeerID: peerID, Signature: sig})
	}

	return &RoutedMessage{Src: src, Dst: dst, TTL: ttl, Payload: payload, Hops: hops}, nil
}
