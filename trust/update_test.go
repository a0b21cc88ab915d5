package trust

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	u := &Update{
		Seq:     1,
		Op:      OpAdd,
		Target:  "bob",
		Payload: []byte("payload"),
		Nonce:   "nonce-1",
		Issuer:  "alice",
	}
	Sign(u, priv)
	require.NoError(t, Verify(u, pub))
}

func TestUpdateVerifyRejectsTamperedTarget(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	u := &Update{Seq: 1, Op: OpAdd, Target: "bob", Nonce: "n", Issuer: "alice"}
	Sign(u, priv)

	u.Target = "mallory"
	require.ErrorIs(t, Verify(u, pub), ErrBadSignature)
}

func TestChainHashExcludesTargetAndIssuer(t *testing.T) {
	u1 := &Update{Seq: 1, Op: OpAdd, Target: "bob", Payload: []byte("p"), Nonce: "n", Issuer: "alice"}
	u2 := &Update{Seq: 1, Op: OpAdd, Target: "carol", Payload: []byte("p"), Nonce: "n", Issuer: "dave"}
	require.Equal(t, chainHash(u1), chainHash(u2))
}

func TestEncodeDecodeUpdateRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	u := &Update{
		Seq:      7,
		PrevHash: []byte{1, 2, 3},
		Op:       OpSetLevel,
		Target:   "bob",
		Payload:  []byte{byte(LevelHigh)},
		Nonce:    "nonce-7",
		Issuer:   "alice",
	}
	Sign(u, priv)

	wire := EncodeUpdate(u)
	got, err := DecodeUpdate(wire)
	require.NoError(t, err)
	require.Equal(t, u, got)
	require.NoError(t, Verify(got, pub))
}
