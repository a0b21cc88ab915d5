package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withTokenFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	prev := tokenFile
	tokenFile = path
	t.Cleanup(func() { tokenFile = prev })
	return path
}

func TestSaveAndLoadTokensRoundTrip(t *testing.T) {
	withTokenFile(t)

	want := tokenPair{Access: "access-token", Refresh: "refresh-token"}
	require.NoError(t, saveTokens(want))

	got, err := loadTokens()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadTokensMissingFileErrors(t *testing.T) {
	withTokenFile(t)
	_, err := loadTokens()
	require.Error(t, err)
}

func TestLoadSigningKeyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.key")
	encoded := base64.StdEncoding.EncodeToString(priv)
	require.NoError(t, os.WriteFile(path, []byte(encoded+"\n"), 0600))

	got, err := loadSigningKey(path)
	require.NoError(t, err)
	require.Equal(t, priv, got)
}

func TestLoadSigningKeyRejectsWrongLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	require.NoError(t, os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString([]byte("too-short"))), 0600))

	_, err := loadSigningKey(path)
	require.Error(t, err)
}
