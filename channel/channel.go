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
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/sage-x-project/nodecore/internal/metrics"
)

// Channel is a single peer's secure channel: directional AEAD keys, a
// send counter, a receive anti-replay window, and rotation bookkeeping.
type Channel struct {
	mu sync.Mutex

	peerID string
	state  State

	generation uint32
	sendCtr    uint64
	recvWindow replayWindow

	kSend []byte
	kRecv []byte

	sendAEAD cipher.AEAD
	recvAEAD cipher.AEAD

	bytesSent  uint64
	openedAt   time.Time
	lastRotate time.Time
	policy     RotationPolicy

	cryptoFailures int
}

// Open derives directional session keys from an X25519 ECDH shared
// secret and transitions the channel to OPEN. Comparing selfPub with
// peerPub decides which of the two HKDF labels this side uses for
// sending vs receiving, so both ends land on complementary keys
// regardless of who dialed.
//
// Callers are expected to have already checked peerID's trust level is
// >= trust.LevelLow; Open itself only handles the cryptographic half of
// spec.md's C6 "open" operation.
func Open(peerID string, sharedSecret []byte, selfPub, peerPub []byte, policy RotationPolicy) (*Channel, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("channel: empty shared secret")
	}
	if len(peerPub) == 0 {
		return nil, ErrInvalidPeerKey
	}

	initiator := bytes.Compare(selfPub, peerPub) < 0

	sendLabel, recvLabel := labelSend, labelRecv
	if !initiator {
		sendLabel, recvLabel = labelRecv, labelSend
	}

	salt := transcriptSalt(selfPub, peerPub)

	kSend, err := hkdfKey(sharedSecret, salt, []byte(sendLabel))
	if err != nil {
		return nil, err
	}
	kRecv, err := hkdfKey(sharedSecret, salt, []byte(recvLabel))
	if err != nil {
		return nil, err
	}

	sendAEAD, err := chacha20poly1305.New(kSend)
	if err != nil {
		return nil, fmt.Errorf("channel: new send aead: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(kRecv)
	if err != nil {
		return nil, fmt.Errorf("channel: new recv aead: %w", err)
	}

	if policy == (RotationPolicy{}) {
		policy = DefaultRotationPolicy()
	}

	now := time.Now()
	return &Channel{
		peerID:     peerID,
		state:      StateOpen,
		kSend:      kSend,
		kRecv:      kRecv,
		sendAEAD:   sendAEAD,
		recvAEAD:   recvAEAD,
		openedAt:   now,
		lastRotate: now,
		policy:     policy,
	}, nil
}

// transcriptSalt binds the derived keys to both ephemeral/static public
// keys in canonical (sorted) order so the salt matches on both sides.
func transcriptSalt(a, b []byte) []byte {
	lo, hi := a, b
	if bytes.Compare(a, b) > 0 {
		lo, hi = b, a
	}
	h := sha256.New()
	h.Write(lo)
	h.Write(hi)
	return h.Sum(nil)
}

func hkdfKey(secret, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("channel: hkdf expand: %w", err)
	}
	return key, nil
}

// State returns the channel's current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PeerID returns the peer this channel is bound to.
func (c *Channel) PeerID() string {
	return c.peerID
}

// Seal encrypts plaintext for sending: nonce = generation(4B) ||
// counter(8B), AEAD-sealed under k_send with associatedData bound in.
// It returns the full wire nonce alongside the ciphertext so the caller
// can place both in the outgoing frame.
func (c *Channel) Seal(plaintext, associatedData []byte) (nonce, ciphertext []byte, err error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen && c.state != StateRekeying {
		return nil, nil, ErrNotOpen
	}

	counter := c.sendCtr
	c.sendCtr++

	nonce = makeNonce(c.generation, counter)
	ciphertext = c.sendAEAD.Seal(nil, nonce, plaintext, associatedData)
	c.bytesSent += uint64(len(plaintext))

	metrics.SessionDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())
	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(ciphertext)))

	return nonce, ciphertext, nil
}

// Unseal decrypts an inbound frame, enforcing the sliding-window
// anti-replay check before attempting the AEAD open so a forged counter
// can't be used to probe the cipher.
func (c *Channel) Unseal(nonce, ciphertext, associatedData []byte) ([]byte, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen && c.state != StateRekeying {
		return nil, ErrNotOpen
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, ErrShortFrame
	}

	generation := binary.BigEndian.Uint32(nonce[:4])
	counter := binary.BigEndian.Uint64(nonce[4:])

	if generation != c.generation {
		return nil, ErrGenerationMismatch
	}
	if !c.recvWindow.accept(counter) {
		metrics.MessagesProcessed.WithLabelValues("binary", "replay").Inc()
		return nil, ErrReplay
	}

	plaintext, err := c.recvAEAD.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		c.cryptoFailures++
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		return nil, fmt.Errorf("channel: open failed: %w", err)
	}

	metrics.SessionDuration.WithLabelValues("decrypt").Observe(time.Since(start).Seconds())
	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(ciphertext)))

	return plaintext, nil
}

// NeedsRotation reports whether the byte or time threshold in the
// channel's RotationPolicy has been crossed since the last rotation.
func (c *Channel) NeedsRotation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false
	}
	if c.policy.MaxBytesSent > 0 && c.bytesSent >= c.policy.MaxBytesSent {
		return true
	}
	if c.policy.MaxAge > 0 && time.Since(c.lastRotate) >= c.policy.MaxAge {
		return true
	}
	return false
}

// BeginRotation ratchets the sending key using the current k_send as
// HKDF salt plus a fresh random value, per spec.md's "HKDF with the old
// k_send as salt" rule. It returns the control-frame payload (the fresh
// random value) to seal and send to the peer; the new generation/key
// take effect immediately for this side's sends.
func (c *Channel) BeginRotation() (controlPayload []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil, ErrNotOpen
	}

	fresh := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, fresh); err != nil {
		return nil, fmt.Errorf("channel: rotation entropy: %w", err)
	}

	newKey, err := hkdfKey(fresh, c.kSend, []byte(labelRotate))
	if err != nil {
		return nil, err
	}
	newAEAD, err := chacha20poly1305.New(newKey)
	if err != nil {
		return nil, fmt.Errorf("channel: rotation aead: %w", err)
	}

	c.state = StateRekeying
	c.kSend = newKey
	c.sendAEAD = newAEAD
	c.generation++
	c.sendCtr = 0
	c.bytesSent = 0
	c.lastRotate = time.Now()
	c.state = StateOpen

	return fresh, nil
}

// InstallPeerRotation applies a rotation control frame received from the
// peer, deriving the matching k_recv the same way BeginRotation derives
// k_send on the originating side.
func (c *Channel) InstallPeerRotation(controlPayload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return ErrNotOpen
	}

	newKey, err := hkdfKey(controlPayload, c.kRecv, []byte(labelRotate))
	if err != nil {
		return err
	}
	newAEAD, err := chacha20poly1305.New(newKey)
	if err != nil {
		return fmt.Errorf("channel: rotation aead: %w", err)
	}

	c.kRecv = newKey
	c.recvAEAD = newAEAD
	c.generation++
	c.recvWindow = replayWindow{}

	return nil
}

// Close transitions the channel to CLOSED and wipes key material.
func (c *Channel) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wipe(c.kSend)
	wipe(c.kRecv)
	c.state = StateClosed
	return nil
}

func makeNonce(generation uint32, counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[:4], generation)
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
