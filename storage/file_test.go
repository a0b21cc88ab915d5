package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")[:32]
}

func TestFileStorePutGetRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), testKey())
	require.NoError(t, err)

	require.NoError(t, fs.PutFile("agents/alice.json", []byte(`{"name":"alice"}`)))

	got, err := fs.GetFile("agents/alice.json")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"name":"alice"}`), got)
}

func TestFileStoreGetMissingReturnsNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), testKey())
	require.NoError(t, err)

	_, err = fs.GetFile("does/not/exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsOversizedWrite(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), testKey())
	require.NoError(t, err)
	fs.WithMaxSize(8)

	err = fs.PutFile("big", []byte("this is definitely more than eight bytes"))
	require.ErrorIs(t, err, ErrSizeLimit)
}

func TestFileStoreTamperedCiphertextIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, testKey())
	require.NoError(t, err)
	require.NoError(t, fs.PutFile("f", []byte("payload")))

	path := filepath.Join(dir, hashName("f"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-5] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = fs.GetFile("f")
	require.ErrorIs(t, err, ErrStorageCorrupt)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), testKey())
	require.NoError(t, err)
	require.NoError(t, fs.PutFile("f", []byte("x")))
	require.NoError(t, fs.DeleteFile("f"))
	require.NoError(t, fs.DeleteFile("f"))

	_, err = fs.GetFile("f")
	require.ErrorIs(t, err, ErrNotFound)
}
