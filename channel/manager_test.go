package channel

import (
	"testing"

	"github.com/sage-x-project/nodecore/trust"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	levels map[string]trust.Level
	keys   map[string][]byte
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{levels: map[string]trust.Level{}, keys: map[string][]byte{}}
}

func (f *fakeLookup) PeerLevel(peerID string) (trust.Level, bool) {
	l, ok := f.levels[peerID]
	return l, ok
}

func (f *fakeLookup) X25519PublicKey(peerID string) ([]byte, bool) {
	k, ok := f.keys[peerID]
	return k, ok
}

func (f *fakeLookup) Ed25519PublicKey(peerID string) ([]byte, bool) {
	return nil, false
}

func TestManagerOpenRequiresTrust(t *testing.T) {
	self := mustX25519(t)
	lookup := newFakeLookup()
	m := NewManager(self, lookup)
	defer m.Shutdown()

	_, err := m.Open("unknown-peer")
	require.ErrorIs(t, err, ErrPeerNotTrusted)
}

func TestManagerOpenSucceedsAboveMinLevel(t *testing.T) {
	self := mustX25519(t)
	peer := mustX25519(t)
	lookup := newFakeLookup()
	lookup.levels["peer-1"] = trust.LevelLow
	lookup.keys["peer-1"] = peer.PublicBytesKey()

	m := NewManager(self, lookup)
	defer m.Shutdown()

	ch, err := m.Open("peer-1")
	require.NoError(t, err)
	require.Equal(t, StateOpen, ch.State())

	again, err := m.Open("peer-1")
	require.NoError(t, err)
	require.Same(t, ch, again)
}

func TestManagerOpenRejectsBelowMinLevel(t *testing.T) {
	self := mustX25519(t)
	peer := mustX25519(t)
	lookup := newFakeLookup()
	lookup.levels["peer-1"] = trust.LevelUnknown
	lookup.keys["peer-1"] = peer.PublicBytesKey()

	m := NewManager(self, lookup)
	defer m.Shutdown()

	_, err := m.Open("peer-1")
	require.ErrorIs(t, err, ErrPeerNotTrusted)
}

func TestManagerCloseForgetsChannel(t *testing.T) {
	self := mustX25519(t)
	peer := mustX25519(t)
	lookup := newFakeLookup()
	lookup.levels["peer-1"] = trust.LevelHigh
	lookup.keys["peer-1"] = peer.PublicBytesKey()

	m := NewManager(self, lookup)
	defer m.Shutdown()

	ch, err := m.Open("peer-1")
	require.NoError(t, err)

	require.NoError(t, m.Close("peer-1", "done"))
	require.Equal(t, StateClosed, ch.State())

	_, ok := m.Get("peer-1")
	require.False(t, ok)
}

func TestManagerListPeers(t *testing.T) {
	self := mustX25519(t)
	lookup := newFakeLookup()
	m := NewManager(self, lookup)
	defer m.Shutdown()

	for _, id := range []string{"p1", "p2"} {
		peer := mustX25519(t)
		lookup.levels[id] = trust.LevelMedium
		lookup.keys[id] = peer.PublicBytesKey()
		_, err := m.Open(id)
		require.NoError(t, err)
	}

	peers := m.ListPeers()
	require.Len(t, peers, 2)
	require.ElementsMatch(t, []string{"p1", "p2"}, peers)
}
