package trust

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	sent     []*Update
	eligible [][]string
}

func (r *recordingBroadcaster) BroadcastTrustUpdate(u *Update, eligiblePeers []string) error {
	r.sent = append(r.sent, u)
	r.eligible = append(r.eligible, eligiblePeers)
	return nil
}

func newTestStore(t *testing.T, selfID string) (*Store, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return NewStore(selfID, priv), pub
}

func TestStoreAddPeerSetsSelfAssertedLevel(t *testing.T) {
	s, _ := newTestStore(t, "alice")
	defer s.Close()

	bobPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = s.AddPeer("bob", []byte(bobPub), []byte("xpub"), LevelHigh)
	require.NoError(t, err)

	level, ok := s.PeerLevel("bob")
	require.True(t, ok)
	require.Equal(t, LevelHigh, level)
}

func TestStoreSetLevelUpdatesEffectiveLevel(t *testing.T) {
	s, _ := newTestStore(t, "alice")
	defer s.Close()

	bobPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = s.AddPeer("bob", []byte(bobPub), []byte("xpub"), LevelLow)
	require.NoError(t, err)

	_, err = s.SetLevel("bob", LevelUltimate)
	require.NoError(t, err)

	level, ok := s.PeerLevel("bob")
	require.True(t, ok)
	require.Equal(t, LevelUltimate, level)
}

func TestStoreRemovePeerDropsSelfAssertion(t *testing.T) {
	s, _ := newTestStore(t, "alice")
	defer s.Close()

	bobPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = s.AddPeer("bob", []byte(bobPub), []byte("xpub"), LevelHigh)
	require.NoError(t, err)

	_, err = s.RemovePeer("bob")
	require.NoError(t, err)

	level, _ := s.PeerLevel("bob")
	require.Equal(t, LevelUnknown, level)
}

func TestStoreIngestAppliesThirdPartyUpdate(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()

	bobPub, bobPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = alice.AddPeer("bob", []byte(bobPub), []byte("bob-xpub"), LevelMedium)
	require.NoError(t, err)

	carolPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	// Bob, who alice trusts at MEDIUM, asserts a level for carol.
	u := &Update{
		Seq:     1,
		Op:      OpAdd,
		Target:  "carol",
		Payload: encodeAddPayload([]byte(carolPub), []byte("carol-xpub"), LevelHigh),
		Nonce:   "bob-nonce-1",
		Issuer:  "bob",
	}
	Sign(u, bobPriv)

	require.NoError(t, alice.Ingest(u))

	level, ok := alice.PeerLevel("carol")
	require.True(t, ok)
	require.Equal(t, LevelHigh, level)
}

func TestStoreIngestRejectsUnknownIssuer(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	u := &Update{Seq: 1, Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelHigh), Nonce: "n", Issuer: "ghost"}
	Sign(u, priv)

	require.ErrorIs(t, alice.Ingest(u), ErrUnknownIssuer)
}

func TestStoreIngestRejectsLowTrustIssuerAssertion(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()

	bobPub, bobPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	// Bob is known but only trusted at LOW, below the MEDIUM bar his
	// assertions about others need to count.
	_, err = alice.AddPeer("bob", []byte(bobPub), []byte("bob-xpub"), LevelLow)
	require.NoError(t, err)

	carolPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	u := &Update{
		Seq:     1,
		Op:      OpAdd,
		Target:  "carol",
		Payload: encodeAddPayload([]byte(carolPub), []byte("carol-xpub"), LevelUltimate),
		Nonce:   "bob-nonce-1",
		Issuer:  "bob",
	}
	Sign(u, bobPriv)
	require.NoError(t, alice.Ingest(u))

	// Bob's assertion is recorded but doesn't count toward carol's
	// effective level because bob himself is below MEDIUM.
	level, ok := alice.PeerLevel("carol")
	require.False(t, ok)
	require.Equal(t, LevelUnknown, level)
}

func TestStoreIngestRejectsReplayedNonce(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()

	bobPub, bobPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = alice.AddPeer("bob", []byte(bobPub), []byte("bob-xpub"), LevelMedium)
	require.NoError(t, err)

	u := &Update{Seq: 1, Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelLow), Nonce: "dup", Issuer: "bob"}
	Sign(u, bobPriv)
	require.NoError(t, alice.Ingest(u))

	u2 := &Update{Seq: 2, PrevHash: chainHash(u), Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelMedium), Nonce: "dup", Issuer: "bob"}
	Sign(u2, bobPriv)
	require.ErrorIs(t, alice.Ingest(u2), ErrReplayDrop)
}

func TestStoreIngestRejectsOutOfOrderSequence(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()

	bobPub, bobPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = alice.AddPeer("bob", []byte(bobPub), []byte("bob-xpub"), LevelMedium)
	require.NoError(t, err)

	first := &Update{Seq: 5, Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelLow), Nonce: "n1", Issuer: "bob"}
	Sign(first, bobPriv)
	require.NoError(t, alice.Ingest(first))

	stale := &Update{Seq: 5, PrevHash: chainHash(first), Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelHigh), Nonce: "n2", Issuer: "bob"}
	Sign(stale, bobPriv)
	require.ErrorIs(t, alice.Ingest(stale), ErrOutOfOrder)
}

func TestStoreIngestRejectsBrokenChain(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()

	bobPub, bobPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = alice.AddPeer("bob", []byte(bobPub), []byte("bob-xpub"), LevelMedium)
	require.NoError(t, err)

	first := &Update{Seq: 1, Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelLow), Nonce: "n1", Issuer: "bob"}
	Sign(first, bobPriv)
	require.NoError(t, alice.Ingest(first))

	broken := &Update{Seq: 2, PrevHash: []byte("wrong"), Op: OpSetLevel, Target: "carol", Payload: encodeLevelPayload(LevelHigh), Nonce: "n2", Issuer: "bob"}
	Sign(broken, bobPriv)
	require.ErrorIs(t, alice.Ingest(broken), ErrChainBroken)
}

func TestStoreProduceBroadcastsToMediumAndAbovePeers(t *testing.T) {
	alice, _ := newTestStore(t, "alice")
	defer alice.Close()
	bc := &recordingBroadcaster{}
	alice.SetBroadcaster(bc)

	lowPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = alice.AddPeer("low-peer", []byte(lowPub), []byte("x"), LevelLow)
	require.NoError(t, err)
	require.Len(t, bc.sent, 1)

	// low-peer is below MEDIUM so it shouldn't be in the eligible list
	// recorded for the next broadcast.
	medPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = alice.AddPeer("med-peer", []byte(medPub), []byte("x"), LevelMedium)
	require.NoError(t, err)
	require.Len(t, bc.sent, 2)
	require.Empty(t, bc.eligible[0])
	require.Equal(t, []string{"med-peer"}, bc.eligible[1])
}
