package keys

import (
	"testing"

	nodecrypto "github.com/sage-x-project/nodecore/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestX25519KeyPair(t *testing.T) {
	t.Run("GenerateKeyPair", func(t *testing.T) {
		keyPair, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		assert.NotNil(t, keyPair)
		assert.NotNil(t, keyPair.PublicKey())
		assert.NotNil(t, keyPair.PrivateKey())
	})

	t.Run("DeriveSharedSecret", func(t *testing.T) {
		a, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		b, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		aKey, ok := a.(*X25519KeyPair)
		require.True(t, ok)
		bKey, ok := b.(*X25519KeyPair)
		require.True(t, ok)

		s1, err := aKey.DeriveSharedSecret(bKey.PublicBytesKey())
		require.NoError(t, err)
		s2, err := bKey.DeriveSharedSecret(aKey.PublicBytesKey())
		require.NoError(t, err)

		assert.Equal(t, s1, s2)
	})

	t.Run("SignNotSupported", func(t *testing.T) {
		kp, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		_, err = kp.Sign([]byte("x"))
		assert.ErrorIs(t, err, nodecrypto.ErrSignNotSupported)
	})

	t.Run("HPKESealAndOpen", func(t *testing.T) {
		recv, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		recvKey, ok := recv.(*X25519KeyPair)
		require.True(t, ok)

		info := []byte("nodecore/channel-bootstrap v1")
		exportCtx := []byte("session-seed")

		packet, secret1, err := HPKESealAndExportToX25519Peer(recvKey.PublicKey(), []byte("hello"), info, exportCtx, 32)
		require.NoError(t, err)
		require.NotEmpty(t, packet)

		pt, secret2, err := HPKEOpenAndExportWithX25519Priv(recvKey.PrivateKey(), packet, info, exportCtx, 32)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), pt)
		assert.Equal(t, secret1, secret2)
	})
}
