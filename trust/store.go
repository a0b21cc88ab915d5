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

package trust

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/nodecore/internal/metrics"
)

const (
	nonceTTL        = 10 * time.Minute
	nonceCleanup    = time.Minute
	// BroadcastTTL is a hop budget of 4 for trust-update flooding. No code
	// path reads it: Ingest rebroadcasts every applied update to all peers
	// at MEDIUM or above, and only the (issuer, nonce) dedup cache stops an
	// update from circulating further.
	BroadcastTTL = 4
)

type issuerChain struct {
	lastSeq  uint64
	lastHash []byte
}

// Broadcaster hands a produced or freshly-ingested Update off to whatever
// layer floods it to other peers (the protocol dispatcher, wired to the
// router). The store has no opinion on transport; it only decides *that*
// an update should go out and to whom.
type Broadcaster interface {
	BroadcastTrustUpdate(u *Update, eligiblePeers []string) error
}

// Store is the canonical set of TrustPeer records plus the per-issuer
// hash chains backing the sync protocol in spec.md §4.4. It also
// implements Lookup directly, so it can be handed to channel.Manager and
// router.Router as-is instead of needing an adapter.
type Store struct {
	mu     sync.RWMutex
	selfID string
	self   ed25519.PrivateKey
	selfEd ed25519.PublicKey

	peers  map[string]*Peer
	chains map[string]*issuerChain
	// assertions[target][issuer] is the level that issuer most recently
	// asserted for target; EffectiveLevel folds these down to one value
	// per the conflict policy.
	assertions map[string]map[string]Level

	dedup       *nonceCache
	broadcaster Broadcaster
}

// NewStore creates a trust store for a node identified by selfID, signing
// locally-produced updates with self.
func NewStore(selfID string, self ed25519.PrivateKey) *Store {
	pub, ok := self.Public().(ed25519.PublicKey)
	if !ok {
		panic("trust: private key has no ed25519 public half")
	}
	return &Store{
		selfID:     selfID,
		self:       self,
		selfEd:     pub,
		peers:      make(map[string]*Peer),
		chains:     make(map[string]*issuerChain),
		assertions: make(map[string]map[string]Level),
		dedup:      newNonceCache(nonceTTL, nonceCleanup),
	}
}

// SetBroadcaster wires the flood-out hook. Nil disables rebroadcast
// (useful for tests or a single-peer bootstrap node).
func (s *Store) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// Close stops the dedup cache's background sweep.
func (s *Store) Close() {
	s.dedup.close()
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("trust: generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func encodeAddPayload(edPub, xPub []byte, level Level) []byte {
	var buf bytes.Buffer
	writeBytes(&buf, edPub)
	writeBytes(&buf, xPub)
	buf.WriteByte(byte(level))
	return buf.Bytes()
}

func decodeAddPayload(b []byte) (edPub, xPub []byte, level Level, err error) {
	r := newByteReader(b)
	edPub, err = readBytesField(r)
	if err != nil {
		return nil, nil, 0, err
	}
	xPub, err = readBytesField(r)
	if err != nil {
		return nil, nil, 0, err
	}
	lvl, err := r.ReadByte()
	if err != nil {
		return nil, nil, 0, err
	}
	return edPub, xPub, Level(lvl), nil
}

func encodeLevelPayload(level Level) []byte {
	return []byte{byte(level)}
}

func decodeLevelPayload(b []byte) (Level, error) {
	if len(b) != 1 {
		return LevelUnknown, fmt.Errorf("trust: malformed level payload")
	}
	return Level(b[0]), nil
}

// Produce builds, signs, applies and (if a broadcaster is wired)
// broadcasts a new update issued by this node, per spec.md §4.4 step 1.
// The update lives only in the in-memory peer table and chain head; the
// store writes nothing to storage.
func (s *Store) Produce(op Op, target string, payload []byte) (*Update, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	chain := s.chains[s.selfID]
	if chain == nil {
		chain = &issuerChain{}
		s.chains[s.selfID] = chain
	}

	u := &Update{
		Seq:      chain.lastSeq + 1,
		PrevHash: chain.lastHash,
		Op:       op,
		Target:   target,
		Payload:  payload,
		Nonce:    nonce,
		Issuer:   s.selfID,
	}
	Sign(u, s.self)

	s.applyLocked(u)
	chain.lastSeq = u.Seq
	chain.lastHash = chainHash(u)
	s.dedup.checkAndMark(u.Issuer, u.Nonce)
	broadcaster := s.broadcaster
	eligible := s.eligibleBroadcastPeersLocked()
	s.mu.Unlock()

	if broadcaster != nil {
		if err := broadcaster.BroadcastTrustUpdate(u, eligible); err != nil {
			return u, fmt.Errorf("trust: broadcast produced update: %w", err)
		}
	}
	return u, nil
}

// AddPeer is a convenience wrapper around Produce(OpAdd, ...) for
// introducing a brand-new peer this node has verified out of band
// (e.g. the owner pasted its public key via the control API).
func (s *Store) AddPeer(peerID string, edPub, xPub []byte, level Level) (*Update, error) {
	return s.Produce(OpAdd, peerID, encodeAddPayload(edPub, xPub, level))
}

// SetLevel is a convenience wrapper around Produce(OpSetLevel, ...).
func (s *Store) SetLevel(peerID string, level Level) (*Update, error) {
	return s.Produce(OpSetLevel, peerID, encodeLevelPayload(level))
}

// RemovePeer is a convenience wrapper around Produce(OpRemove, ...).
func (s *Store) RemovePeer(peerID string) (*Update, error) {
	return s.Produce(OpRemove, peerID, nil)
}

// Ingest verifies and merges an update received from the network,
// implementing spec.md §4.4 step 2's rejection ladder.
func (s *Store) Ingest(u *Update) error {
	s.mu.Lock()

	if s.dedup.checkAndMark(u.Issuer, u.Nonce) {
		s.mu.Unlock()
		metrics.TrustUpdatesApplied.WithLabelValues(u.Op.String(), "rejected").Inc()
		return ErrReplayDrop
	}

	issuerPub, ok := s.issuerKeyLocked(u.Issuer)
	if !ok {
		s.mu.Unlock()
		metrics.TrustUpdatesApplied.WithLabelValues(u.Op.String(), "rejected").Inc()
		return ErrUnknownIssuer
	}
	if err := Verify(u, issuerPub); err != nil {
		s.mu.Unlock()
		metrics.TrustUpdatesApplied.WithLabelValues(u.Op.String(), "rejected").Inc()
		return err
	}

	chain := s.chains[u.Issuer]
	if chain == nil {
		chain = &issuerChain{}
		s.chains[u.Issuer] = chain
	}
	if u.Seq <= chain.lastSeq {
		s.mu.Unlock()
		metrics.TrustUpdatesApplied.WithLabelValues(u.Op.String(), "conflict").Inc()
		return ErrOutOfOrder
	}
	if !bytes.Equal(u.PrevHash, chain.lastHash) {
		s.mu.Unlock()
		metrics.TrustUpdatesApplied.WithLabelValues(u.Op.String(), "conflict").Inc()
		return ErrChainBroken
	}

	s.applyLocked(u)
	chain.lastSeq = u.Seq
	chain.lastHash = chainHash(u)

	broadcaster := s.broadcaster
	eligible := s.eligibleBroadcastPeersLocked()
	s.mu.Unlock()

	metrics.TrustUpdatesApplied.WithLabelValues(u.Op.String(), "applied").Inc()

	if broadcaster != nil {
		if err := broadcaster.BroadcastTrustUpdate(u, eligible); err != nil {
			return fmt.Errorf("trust: rebroadcast ingested update: %w", err)
		}
	}
	return nil
}

// issuerKeyLocked resolves the Ed25519 key an update's issuer must have
// signed with. Self-issued updates verify against this node's own key
// even before any peer record exists for selfID.
func (s *Store) issuerKeyLocked(issuer string) (ed25519.PublicKey, bool) {
	if issuer == s.selfID {
		return s.selfEd, true
	}
	p, ok := s.peers[issuer]
	if !ok || p.Ed25519Public == nil {
		return nil, false
	}
	return ed25519.PublicKey(p.Ed25519Public), true
}

// applyLocked mutates the peer table for one validated update. Callers
// hold s.mu.
func (s *Store) applyLocked(u *Update) {
	switch u.Op {
	case OpAdd:
		edPub, xPub, level, err := decodeAddPayload(u.Payload)
		if err != nil {
			return
		}
		if _, exists := s.peers[u.Target]; !exists {
			s.peers[u.Target] = &Peer{ID: u.Target, AddedAt: time.Now()}
		}
		peer := s.peers[u.Target]
		peer.Ed25519Public = edPub
		peer.X25519Public = xPub
		s.recordAssertionLocked(u.Target, u.Issuer, level)
	case OpSetLevel:
		level, err := decodeLevelPayload(u.Payload)
		if err != nil {
			return
		}
		s.recordAssertionLocked(u.Target, u.Issuer, level)
	case OpRemove:
		delete(s.assertions[u.Target], u.Issuer)
		s.recomputeEffectiveLocked(u.Target)
	}
	if peer, ok := s.peers[u.Target]; ok {
		peer.LastSeq = u.Seq
		peer.LastUpdateHash = chainHash(u)
	}
}

// recordAssertionLocked stores issuer's claim for target and recomputes
// the folded effective level.
func (s *Store) recordAssertionLocked(target, issuer string, level Level) {
	if s.assertions[target] == nil {
		s.assertions[target] = make(map[string]Level)
	}
	s.assertions[target][issuer] = level
	s.recomputeEffectiveLocked(target)
}

// recomputeEffectiveLocked applies the conflict policy from spec.md
// §4.4 step 3: the effective level is the maximum asserted by any
// issuer that is itself trusted at or above MEDIUM (self's own
// assertions always qualify).
func (s *Store) recomputeEffectiveLocked(target string) {
	best := LevelUnknown
	for issuer, level := range s.assertions[target] {
		if issuer != s.selfID {
			issuerLevel, ok := s.effectiveLevelLocked(issuer)
			if !ok || issuerLevel < LevelMedium {
				continue
			}
		}
		if level > best {
			best = level
		}
	}
	peer, ok := s.peers[target]
	if !ok {
		if best == LevelUnknown {
			return
		}
		peer = &Peer{ID: target, AddedAt: time.Now()}
		s.peers[target] = peer
	}
	peer.Level = best
}

func (s *Store) effectiveLevelLocked(peerID string) (Level, bool) {
	p, ok := s.peers[peerID]
	if !ok {
		return LevelUnknown, false
	}
	return p.Level, true
}

// eligibleBroadcastPeersLocked lists peer IDs at or above MEDIUM trust,
// the rebroadcast fan-out target spec.md §4.4/§8 settles on.
func (s *Store) eligibleBroadcastPeersLocked() []string {
	var out []string
	for id, p := range s.peers {
		if p.Level >= LevelMedium {
			out = append(out, id)
		}
	}
	return out
}

// PeerLevel implements Lookup.
func (s *Store) PeerLevel(peerID string) (Level, bool) {
	start := time.Now()
	s.mu.RLock()
	p, ok := s.peers[peerID]
	s.mu.RUnlock()

	if !ok {
		metrics.TrustLookups.WithLabelValues("miss").Inc()
		metrics.GetGlobalCollector().RecordTrustLookup(false, time.Since(start))
		return LevelUnknown, false
	}
	if p.Level == LevelUnknown {
		metrics.TrustLookups.WithLabelValues("revoked").Inc()
	} else {
		metrics.TrustLookups.WithLabelValues("hit").Inc()
	}
	metrics.GetGlobalCollector().RecordTrustLookup(true, time.Since(start))
	return p.Level, true
}

// X25519PublicKey implements Lookup.
func (s *Store) X25519PublicKey(peerID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	if !ok || p.X25519Public == nil {
		return nil, false
	}
	return p.X25519Public, true
}

// Ed25519PublicKey implements Lookup.
func (s *Store) Ed25519PublicKey(peerID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if peerID == s.selfID {
		return s.selfEd, true
	}
	p, ok := s.peers[peerID]
	if !ok || p.Ed25519Public == nil {
		return nil, false
	}
	return p.Ed25519Public, true
}

// ListPeers returns a snapshot of every known peer record.
func (s *Store) ListPeers() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	return out
}

// Peer returns a copy of one peer's record.
func (s *Store) Peer(peerID string) (Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}
