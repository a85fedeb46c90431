package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	data []byte
}

func (f *fakeUpstream) Metadata(ctx context.Context) (UpstreamMetadata, error) {
	return UpstreamMetadata{DataBegin: 0, NextWritePosition: int64(len(f.data)), StorageBytes: int64(len(f.data))}, nil
}

func (f *fakeUpstream) Fetch(ctx context.Context, position, length int64) ([]byte, error) {
	end := position + length
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	return f.data[position:end], nil
}

type memPositionStore struct{ pos int64 }

func (m *memPositionStore) LastSyncPosition(ctx context.Context) (int64, error) { return m.pos, nil }
func (m *memPositionStore) SetLastSyncPosition(ctx context.Context, position int64) error {
	m.pos = position
	return nil
}

func buildTwoBlockLog(t *testing.T) []byte {
	t.Helper()
	b1, err := EncodeBlock(1, 0, Body{
		Entries:     []Entry{{Label: LabelProvRegister, Key: []byte("p1"), Value: []byte("sig1")}},
		TimestampNs: 1,
		ParentHash:  []byte{0},
	})
	require.NoError(t, err)
	b2, err := EncodeBlock(1, -int32(len(b1)), Body{
		Entries:     []Entry{{Label: LabelProvCheckIn, Key: []byte("p1"), Value: make([]byte, 64)}},
		TimestampNs: 2,
		ParentHash:  []byte{1},
	})
	require.NoError(t, err)
	return append(b1, b2...)
}

func TestEngineTickDecodesAllBlocksAndAdvancesCursor(t *testing.T) {
	dir := t.TempDir()
	mirror, err := OpenMirror(dir)
	require.NoError(t, err)
	defer mirror.Close()

	data := buildTwoBlockLog(t)
	up := &fakeUpstream{data: data}
	posStore := &memPositionStore{}
	disp := &recordingDispatcher{}

	engine := NewEngine(up, mirror, posStore, disp, nil)
	n, more, err := engine.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, more)
	require.Len(t, disp.registered, 1)
	require.Len(t, disp.checkIns, 1)
	require.Equal(t, int64(len(data)), posStore.pos)
}

func TestEngineTickNoOpWhenCaughtUp(t *testing.T) {
	dir := t.TempDir()
	mirror, err := OpenMirror(dir)
	require.NoError(t, err)
	defer mirror.Close()

	up := &fakeUpstream{data: []byte{}}
	posStore := &memPositionStore{}
	disp := &recordingDispatcher{}

	engine := NewEngine(up, mirror, posStore, disp, nil)
	n, more, err := engine.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.False(t, more)
}

func TestEngineTickCursorNeverDecreases(t *testing.T) {
	dir := t.TempDir()
	mirror, err := OpenMirror(dir)
	require.NoError(t, err)
	defer mirror.Close()

	data := buildTwoBlockLog(t)
	up := &fakeUpstream{data: data}
	posStore := &memPositionStore{}
	disp := &recordingDispatcher{}
	engine := NewEngine(up, mirror, posStore, disp, nil)

	_, _, err = engine.Tick(context.Background())
	require.NoError(t, err)
	first := posStore.pos

	_, _, err = engine.Tick(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, posStore.pos, first)
}

func TestMirrorAppendPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	mirror, err := OpenMirror(dir)
	require.NoError(t, err)
	_, err = mirror.Append([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mirror.Close())

	reopened, err := OpenMirror(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, int64(5), reopened.Size())

	_, err = os.Stat(dir)
	require.NoError(t, err)
}
