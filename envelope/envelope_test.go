package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresTypeAndFrom(t *testing.T) {
	_, err := New("", "node-a", "node-b", nil)
	require.ErrorIs(t, err, ErrMissingType)

	_, err = New("ping", "", "node-b", nil)
	require.ErrorIs(t, err, ErrMissingFrom)
}

func TestNewGeneratesDistinctNonces(t *testing.T) {
	a, err := New("ping", "node-a", "node-b", nil)
	require.NoError(t, err)
	b, err := New("ping", "node-a", "node-b", nil)
	require.NoError(t, err)

	require.NotEqual(t, a.Nonce, b.Nonce)
}

func TestDedupKeyIncludesFromAndNonce(t *testing.T) {
	e, err := New("ping", "node-a", "node-b", nil)
	require.NoError(t, err)

	key := e.DedupKey()
	require.Contains(t, key, "node-a")
	require.Contains(t, key, string(e.Nonce[:]))
}
