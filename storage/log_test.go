package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogAppendReplayRoundTrip(t *testing.T) {
	l, err := NewLog(t.TempDir(), "audit", testKey())
	require.NoError(t, err)

	records := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, r := range records {
		require.NoError(t, l.Append(r))
	}
	require.NoError(t, l.Close())

	var got [][]byte
	require.NoError(t, l.Replay(func(record []byte) error {
		got = append(got, append([]byte{}, record...))
		return nil
	}))
	require.Equal(t, records, got)
}

func TestLogRotatesAtConfiguredSize(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLog(dir, "events", testKey())
	require.NoError(t, err)
	l.WithRotateBytes(64)

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Append([]byte("0123456789")))
	}
	require.NoError(t, l.Close())
	require.Greater(t, l.segment, 0)

	var count int
	require.NoError(t, l.Replay(func([]byte) error {
		count++
		return nil
	}))
	require.Equal(t, 20, count)
}

func TestLogReplayStopsOnCallbackError(t *testing.T) {
	l, err := NewLog(t.TempDir(), "halt", testKey())
	require.NoError(t, err)
	require.NoError(t, l.Append([]byte("a")))
	require.NoError(t, l.Append([]byte("b")))

	sentinel := errString("stop")
	seen := 0
	err = l.Replay(func([]byte) error {
		seen++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, seen)
}

type errString string

func (e errString) Error() string { return string(e) }
