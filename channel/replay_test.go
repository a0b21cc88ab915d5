package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplayWindowFirstCounterAccepted(t *testing.T) {
	var w replayWindow
	require.True(t, w.accept(42))
	require.Equal(t, uint64(42), w.hi)
}

func TestReplayWindowAdvances(t *testing.T) {
	var w replayWindow
	require.True(t, w.accept(10))
	require.True(t, w.accept(11))
	require.Equal(t, uint64(11), w.hi)
}

func TestReplayWindowDuplicateRejected(t *testing.T) {
	var w replayWindow
	require.True(t, w.accept(5))
	require.False(t, w.accept(5))
}

func TestReplayWindowOutOfOrderAcceptedOnce(t *testing.T) {
	var w replayWindow
	require.True(t, w.accept(10))
	require.True(t, w.accept(12))
	require.True(t, w.accept(11)) // within window, unset bit
	require.False(t, w.accept(11)) // now replayed
}

func TestReplayWindowTooFarBehindRejected(t *testing.T) {
	var w replayWindow
	require.True(t, w.accept(1000))
	require.False(t, w.accept(1000-64))
	require.True(t, w.accept(1000-63))
}

func TestReplayWindowLargeJumpResetsBitmap(t *testing.T) {
	var w replayWindow
	require.True(t, w.accept(1))
	require.True(t, w.accept(1000))
	require.Equal(t, uint64(0), w.bitmap)
	// Old counters are now far outside the window.
	require.False(t, w.accept(1))
}
