package envelope

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustEnvelope(t *testing.T) *Envelope {
	t.Helper()
	e, err := New("ping", "node-a", "node-b", []byte("hello"))
	require.NoError(t, err)
	return e
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e := mustEnvelope(t)
	Sign(e, priv)

	require.NoError(t, Verify(e, pub))
}

func TestVerifyFailsOnTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e := mustEnvelope(t)
	Sign(e, priv)
	e.Body = []byte("tampered")

	require.ErrorIs(t, Verify(e, pub), ErrInvalidSignature)
}

func TestVerifyFailsOnWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e := mustEnvelope(t)
	Sign(e, priv)

	require.ErrorIs(t, Verify(e, otherPub), ErrInvalidSignature)
}

func TestVerifyMissingSignature(t *testing.T) {
	e := mustEnvelope(t)
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.ErrorIs(t, Verify(e, pub), ErrMissingSignature)
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e := mustEnvelope(t)
	e.Extra = []byte("future-field-bytes")
	Sign(e, priv)

	wire := Encode(e)
	decoded, err := Decode(wire)
	require.NoError(t, err)

	require.Equal(t, e.Version, decoded.Version)
	require.Equal(t, e.Type, decoded.Type)
	require.Equal(t, e.From, decoded.From)
	require.Equal(t, e.To, decoded.To)
	require.Equal(t, e.Nonce, decoded.Nonce)
	require.Equal(t, e.Body, decoded.Body)
	require.Equal(t, e.Extra, decoded.Extra)
	require.Equal(t, e.Timestamp.UnixNano(), decoded.Timestamp.UnixNano())

	require.NoError(t, Verify(decoded, pub))
}

func TestUnknownExtraFieldsNotSigned(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e := mustEnvelope(t)
	Sign(e, priv)
	sigBefore := append([]byte(nil), e.Signature...)

	// Simulate a forwarder attaching a future-version field after
	// receiving the envelope: re-signing is unaffected because Extra
	// never enters the canonical encoding.
	e.Extra = []byte("appended-by-a-newer-peer")
	require.Equal(t, sigBefore, e.Signature)
	require.NoError(t, Verify(e, pub))
}

func TestCanonicalDeterministic(t *testing.T) {
	e := mustEnvelope(t)
	a := Canonical(e)
	b := Canonical(e)
	require.Equal(t, a, b)
}

func TestDecodeRejectsTruncatedData(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = pub

	e := mustEnvelope(t)
	Sign(e, priv)
	wire := Encode(e)

	_, err = Decode(wire[:len(wire)-5])
	require.Error(t, err)
}
