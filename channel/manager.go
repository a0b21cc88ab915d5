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

package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/nodecore/crypto/keys"
	"github.com/sage-x-project/nodecore/internal/metrics"
	"github.com/sage-x-project/nodecore/trust"
)

// Manager owns one Channel per peer and the node's static X25519 identity
// used to open them. It mirrors the teacher's session.Manager pool +
// cleanup-ticker shape, generalized to the directional-key Channel type.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	trust    trust.Lookup
	self     *keys.X25519KeyPair
	policy   RotationPolicy

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}

	// onRotate is invoked with the fresh control-frame payload whenever a
	// channel ratchets its sending key, so the caller (typically the
	// dispatcher) can seal and transmit it through the envelope/router
	// layers. Manager itself has no transport dependency.
	onRotate func(peerID string, controlPayload []byte)
}

// OnRotation registers the callback used to deliver rotation control
// frames to peers. Safe to call once during setup before traffic flows.
func (m *Manager) OnRotation(fn func(peerID string, controlPayload []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRotate = fn
}

// NewManager creates a channel manager bound to a node's static X25519
// identity (used as the ECDH private half for every peer channel) and a
// trust lookup used to gate Open calls.
func NewManager(self *keys.X25519KeyPair, lookup trust.Lookup) *Manager {
	m := &Manager{
		channels:      make(map[string]*Channel),
		trust:         lookup,
		self:          self,
		policy:        DefaultRotationPolicy(),
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(time.Minute),
	}
	go m.runRotationSweep()
	return m
}

// Open establishes (or returns the existing) channel to peerID, checking
// the trust store for a minimum level of LOW before deriving keys.
func (m *Manager) Open(peerID string) (*Channel, error) {
	m.mu.RLock()
	if ch, ok := m.channels[peerID]; ok {
		m.mu.RUnlock()
		return ch, nil
	}
	m.mu.RUnlock()

	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues("initiator").Inc()

	level, known := m.trust.PeerLevel(peerID)
	if !known || level < trust.LevelLow {
		metrics.HandshakesFailed.WithLabelValues("untrusted").Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return nil, ErrPeerNotTrusted
	}

	peerPub, ok := m.trust.X25519PublicKey(peerID)
	if !ok {
		metrics.HandshakesFailed.WithLabelValues("invalid").Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return nil, ErrInvalidPeerKey
	}

	shared, err := m.self.DeriveSharedSecret(peerPub)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("network").Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("channel: derive shared secret: %w", err)
	}

	ch, err := Open(peerID, shared, m.self.PublicBytesKey(), peerPub, m.policy)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("invalid").Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		metrics.SessionsCreated.WithLabelValues("failure").Inc()
		return nil, err
	}

	metrics.HandshakeDuration.WithLabelValues("finalize").Observe(time.Since(start).Seconds())
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()

	m.mu.Lock()
	if existing, ok := m.channels[peerID]; ok {
		m.mu.Unlock()
		_ = ch.Close("duplicate open")
		metrics.SessionsActive.Dec()
		return existing, nil
	}
	m.channels[peerID] = ch
	m.mu.Unlock()

	return ch, nil
}

// Get returns the channel for peerID if one is open.
func (m *Manager) Get(peerID string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[peerID]
	return ch, ok
}

// Close closes and forgets the channel to peerID.
func (m *Manager) Close(peerID, reason string) error {
	m.mu.Lock()
	ch, ok := m.channels[peerID]
	delete(m.channels, peerID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	metrics.SessionsActive.Dec()
	metrics.SessionsClosed.Inc()
	return ch.Close(reason)
}

// ListPeers returns the peer IDs with an open channel.
func (m *Manager) ListPeers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := make([]string, 0, len(m.channels))
	for id := range m.channels {
		peers = append(peers, id)
	}
	return peers
}

// Shutdown stops the rotation sweep and closes every channel.
func (m *Manager) Shutdown() {
	close(m.stopCleanup)
	m.cleanupTicker.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.channels {
		ch.Close("shutdown")
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.Inc()
		delete(m.channels, id)
	}
}

// runRotationSweep periodically rotates channels that have crossed their
// byte or time threshold. The fresh control payload is handed to
// onRotate so the caller can seal and send it through the envelope/router
// layers; Manager itself has no transport dependency.
func (m *Manager) runRotationSweep() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.sweepRotations()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) sweepRotations() {
	m.mu.RLock()
	due := make([]*Channel, 0)
	for _, ch := range m.channels {
		if ch.NeedsRotation() {
			due = append(due, ch)
		}
	}
	m.mu.RUnlock()

	m.mu.RLock()
	cb := m.onRotate
	m.mu.RUnlock()

	for _, ch := range due {
		payload, err := ch.BeginRotation()
		if err != nil {
			continue
		}
		if cb != nil {
			cb(ch.PeerID(), payload)
		}
	}
}
