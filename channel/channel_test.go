package channel

import (
	"testing"

	"github.com/sage-x-project/nodecore/crypto/keys"
	"github.com/stretchr/testify/require"
)

func mustX25519(t *testing.T) *keys.X25519KeyPair {
	t.Helper()
	kp, err := keys.GenerateX25519KeyPair()
	require.NoError(t, err)
	x, ok := kp.(*keys.X25519KeyPair)
	require.True(t, ok)
	return x
}

func openPair(t *testing.T) (a, b *Channel) {
	t.Helper()
	alice := mustX25519(t)
	bob := mustX25519(t)

	secretA, err := alice.DeriveSharedSecret(bob.PublicBytesKey())
	require.NoError(t, err)
	secretB, err := bob.DeriveSharedSecret(alice.PublicBytesKey())
	require.NoError(t, err)
	require.Equal(t, secretA, secretB)

	a, err = Open("bob", secretA, alice.PublicBytesKey(), bob.PublicBytesKey(), DefaultRotationPolicy())
	require.NoError(t, err)
	b, err = Open("alice", secretB, bob.PublicBytesKey(), alice.PublicBytesKey(), DefaultRotationPolicy())
	require.NoError(t, err)

	return a, b
}

func TestChannelOpenComplementaryKeys(t *testing.T) {
	a, b := openPair(t)
	require.Equal(t, StateOpen, a.State())
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, a.kSend, b.kRecv)
	require.Equal(t, a.kRecv, b.kSend)
}

func TestChannelSealUnsealRoundtrip(t *testing.T) {
	a, b := openPair(t)

	plaintext := []byte("hello peer")
	ad := []byte("envelope-header-bytes")

	nonce, ct, err := a.Seal(plaintext, ad)
	require.NoError(t, err)

	pt, err := b.Unseal(nonce, ct, ad)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestChannelUnsealWrongAssociatedDataFails(t *testing.T) {
	a, b := openPair(t)

	nonce, ct, err := a.Seal([]byte("payload"), []byte("ad-1"))
	require.NoError(t, err)

	_, err = b.Unseal(nonce, ct, []byte("ad-2"))
	require.Error(t, err)
}

func TestChannelReplayedCounterDropped(t *testing.T) {
	a, b := openPair(t)

	nonce, ct, err := a.Seal([]byte("payload"), nil)
	require.NoError(t, err)

	_, err = b.Unseal(nonce, ct, nil)
	require.NoError(t, err)

	_, err = b.Unseal(nonce, ct, nil)
	require.ErrorIs(t, err, ErrReplay)
}

func TestChannelOutOfOrderWithinWindowAccepted(t *testing.T) {
	a, b := openPair(t)

	type frame struct{ nonce, ct []byte }
	var frames []frame
	for i := 0; i < 5; i++ {
		nonce, ct, err := a.Seal([]byte("payload"), nil)
		require.NoError(t, err)
		frames = append(frames, frame{nonce, ct})
	}

	// Deliver out of order: 4, 0, 1, 2, 3
	order := []int{4, 0, 1, 2, 3}
	for _, idx := range order {
		_, err := b.Unseal(frames[idx].nonce, frames[idx].ct, nil)
		require.NoError(t, err, "frame %d should be accepted", idx)
	}

	// Replaying any of them now must be rejected.
	for _, idx := range order {
		_, err := b.Unseal(frames[idx].nonce, frames[idx].ct, nil)
		require.ErrorIs(t, err, ErrReplay)
	}
}

func TestChannelRotationInstallsMatchingKeys(t *testing.T) {
	a, b := openPair(t)

	payload, err := a.BeginRotation()
	require.NoError(t, err)

	err = b.InstallPeerRotation(payload)
	require.NoError(t, err)

	plaintext := []byte("post-rotation message")
	nonce, ct, err := a.Seal(plaintext, nil)
	require.NoError(t, err)

	pt, err := b.Unseal(nonce, ct, nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestChannelUnsealBeforeRotationInstalledFailsGenerationCheck(t *testing.T) {
	a, b := openPair(t)

	_, err := a.BeginRotation()
	require.NoError(t, err)

	nonce, ct, err := a.Seal([]byte("after rotation"), nil)
	require.NoError(t, err)

	_, err = b.Unseal(nonce, ct, nil)
	require.ErrorIs(t, err, ErrGenerationMismatch)
}

func TestChannelCloseWipesKeys(t *testing.T) {
	a, _ := openPair(t)
	require.NoError(t, a.Close("test"))
	require.Equal(t, StateClosed, a.State())
	require.Equal(t, make([]byte, len(a.kSend)), a.kSend)

	_, _, err := a.Seal([]byte("x"), nil)
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestChannelNeedsRotationByBytes(t *testing.T) {
	a, _ := openPair(t)
	a.policy.MaxBytesSent = 1
	a.policy.MaxAge = 0

	require.False(t, a.NeedsRotation())
	_, _, err := a.Seal([]byte("x"), nil)
	require.NoError(t, err)
	require.True(t, a.NeedsRotation())
}
