package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorStringParseRoundTrip(t *testing.T) {
	c := Cursor{Position: 4096, ResponseBytes: 1024, Direction: Forward, More: true}
	parsed, err := ParseCursor(c.String())
	require.NoError(t, err)
	require.Equal(t, c.Position, parsed.Position)
	require.Equal(t, c.ResponseBytes, parsed.ResponseBytes)
	require.Equal(t, c.Direction, parsed.Direction)
	require.Equal(t, c.More, parsed.More)
}

func TestPlanFetchCaughtUp(t *testing.T) {
	meta := UpstreamMetadata{DataBegin: 0, NextWritePosition: 100, StorageBytes: 1000}
	c := PlanFetch(100, meta)
	require.Equal(t, int64(0), c.ResponseBytes)
	require.False(t, c.More)
	require.Equal(t, int64(100), c.Position)
}

func TestPlanFetchClampsToDataBegin(t *testing.T) {
	meta := UpstreamMetadata{DataBegin: 500, NextWritePosition: 1000, StorageBytes: 1000}
	c := PlanFetch(0, meta)
	require.Equal(t, int64(500), c.Position)
	require.Equal(t, int64(500), c.ResponseBytes)
}

func TestPlanFetchMoreWhenChunkSmallerThanLog(t *testing.T) {
	meta := UpstreamMetadata{DataBegin: 0, NextWritePosition: FetchChunk * 3, StorageBytes: FetchChunk * 3}
	c := PlanFetch(0, meta)
	require.Equal(t, int64(FetchChunk), c.ResponseBytes)
	require.True(t, c.More)
}

func TestPlanFetchNoMoreWhenChunkCoversRemainder(t *testing.T) {
	meta := UpstreamMetadata{DataBegin: 0, NextWritePosition: 100, StorageBytes: 100}
	c := PlanFetch(0, meta)
	require.Equal(t, int64(100), c.ResponseBytes)
	require.False(t, c.More)
}
