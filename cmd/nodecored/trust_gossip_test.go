package main

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/nodecore/dispatcher"
	"github.com/sage-x-project/nodecore/envelope"
	"github.com/sage-x-project/nodecore/router"
	"github.com/sage-x-project/nodecore/trust"
)

// fakeSender records every payload handed to it by the dispatcher,
// keyed by destination, and can be told to fail specific destinations.
type fakeSender struct {
	mu    sync.Mutex
	sent  map[string][][]byte
	failN map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][][]byte), failN: make(map[string]bool)}
}

func (f *fakeSender) Send(dst string, payload []byte) (router.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN[dst] {
		return router.DeliveryReceipt{}, fmt.Errorf("fake: send to %s refused", dst)
	}
	f.sent[dst] = append(f.sent[dst], payload)
	return router.DeliveryReceipt{}, nil
}

func TestGossipRelayNotifiesEveryEligiblePeer(t *testing.T) {
	_, edPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sender := newFakeSender()
	d := dispatcher.New("node-a", edPriv, sender)
	relay := newGossipRelay(d)

	store := trust.NewStore("node-a", edPriv)
	u, err := store.SetLevel("node-b", trust.LevelMedium)
	require.NoError(t, err)

	err = relay.BroadcastTrustUpdate(u, []string{"peer-1", "peer-2"})
	require.NoError(t, err)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent["peer-1"], 1)
	require.Len(t, sender.sent["peer-2"], 1)
}

func TestGossipRelayAggregatesFailuresButKeepsGoing(t *testing.T) {
	_, edPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sender := newFakeSender()
	sender.failN["peer-1"] = true
	d := dispatcher.New("node-a", edPriv, sender)
	relay := newGossipRelay(d)

	store := trust.NewStore("node-a", edPriv)
	u, err := store.SetLevel("node-b", trust.LevelMedium)
	require.NoError(t, err)

	err = relay.BroadcastTrustUpdate(u, []string{"peer-1", "peer-2"})
	require.Error(t, err)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Empty(t, sender.sent["peer-1"])
	require.Len(t, sender.sent["peer-2"], 1)
}

func TestGossipHandlerIngestsDecodedUpdate(t *testing.T) {
	issuerPub, issuerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	issuer := trust.NewStore("node-a", issuerPriv)
	u, err := issuer.SetLevel("node-b", trust.LevelMedium)
	require.NoError(t, err)

	_, receiverPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	receiver := trust.NewStore("node-c", receiverPriv)
	_, err = receiver.AddPeer("node-a", issuerPub, make([]byte, 32), trust.LevelMedium)
	require.NoError(t, err)

	sender := newFakeSender()
	d := dispatcher.New("node-c", receiverPriv, sender)
	registerGossipHandler(d, receiver)

	body := trust.EncodeUpdate(u)
	env, err := envelope.New(dispatcher.TypeGossip, "node-a", "node-c", body)
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(env))

	level, ok := receiver.PeerLevel("node-b")
	require.True(t, ok)
	require.Equal(t, trust.LevelMedium, level)
}
