package region

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharedcode/anydb/internal/metadata"
	"github.com/sharedcode/anydb/internal/mmapio"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	meta, entries, corrupt, err := metadata.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	data, err := mmapio.Open(filepath.Join(dir, "anydb.data"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { data.Close() })

	return NewManager(data, meta, entries, corrupt, nil)
}

func TestCreateOrOpen_isIdempotent(t *testing.T) {
	m := newTestManager(t)
	a, err := m.CreateOrOpen("v")
	require.NoError(t, err)
	b, err := m.CreateOrOpen("v")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestWriteAndRead_roundTrip(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateOrOpen("v")
	require.NoError(t, err)

	require.NoError(t, m.Write(h, []byte("hello world")))
	got, err := m.Read(h, 0, h.Length())
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestWriteAt_extendsWithinCapacity(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, m.Write(h, make([]byte, 10)))

	capBefore := h.Capacity()
	require.NoError(t, m.WriteAt(h, 10, []byte("XYZ")))
	require.Equal(t, int64(13), h.Length())
	require.Equal(t, capBefore, h.Capacity())
	got, err := m.Read(h, 10, 3)
	require.NoError(t, err)
	require.Equal(t, "XYZ", string(got))
}

func TestTruncate_reducesLengthNotCapacity(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, m.Write(h, []byte("0123456789")))
	capBefore := h.Capacity()

	require.NoError(t, m.Truncate(h, 4))
	require.Equal(t, int64(4), h.Length())
	require.Equal(t, capBefore, h.Capacity())
}

func TestRemove_releasesRangeAsPendingHole(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, m.Write(h, make([]byte, 100)))

	require.NoError(t, m.Remove(h))
	_, ok := m.Lookup("v")
	require.False(t, ok)

	// Not yet allocatable: still pending until PromotePending runs.
	require.Equal(t, 1, m.free.Pending())
	require.Equal(t, 0, m.free.Committed())
	m.PromotePending()
	require.Equal(t, 0, m.free.Pending())
	require.Equal(t, 1, m.free.Committed())
	h2, err := m.CreateOrOpen("v2")
	require.NoError(t, err)
	require.NoError(t, m.Write(h2, make([]byte, 10)))
	// The promoted hole was reused for v2.
	require.Equal(t, 0, m.free.Committed())
}

func TestRegionMove_copiesExistingBytesAndOthersUnaffected(t *testing.T) {
	m := newTestManager(t)
	a, err := m.CreateOrOpen("a")
	require.NoError(t, err)
	b, err := m.CreateOrOpen("b")
	require.NoError(t, err)
	c, err := m.CreateOrOpen("c")
	require.NoError(t, err)

	require.NoError(t, m.Write(a, bytes(5*1024, 0xAA)))
	require.NoError(t, m.Write(b, bytes(5*1024, 0xBB)))
	require.NoError(t, m.Write(c, bytes(5*1024, 0xCC)))

	require.NoError(t, m.Remove(b))
	m.PromotePending()

	grown := append(bytes(5*1024, 0xAA), bytes(4*1024, 0xDD)...)
	require.NoError(t, m.Write(a, grown))

	got, err := m.Read(a, 0, int64(len(grown)))
	require.NoError(t, err)
	require.Equal(t, grown, got)

	gotC, err := m.Read(c, 0, 5*1024)
	require.NoError(t, err)
	require.Equal(t, bytes(5*1024, 0xCC), gotC)
}

func TestOpen_reopenRestoresRegionTable(t *testing.T) {
	dir := t.TempDir()
	meta, entries, corrupt, err := metadata.Open(dir)
	require.NoError(t, err)
	data, err := mmapio.Open(filepath.Join(dir, "anydb.data"), 0)
	require.NoError(t, err)
	m := NewManager(data, meta, entries, corrupt, nil)

	h, err := m.CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, m.Write(h, []byte("persisted")))
	require.NoError(t, m.Sync())
	require.NoError(t, meta.Sync())
	require.NoError(t, data.Close())
	require.NoError(t, meta.Close())

	meta2, entries2, corrupt2, err := metadata.Open(dir)
	require.NoError(t, err)
	data2, err := mmapio.Open(filepath.Join(dir, "anydb.data"), 0)
	require.NoError(t, err)
	m2 := NewManager(data2, meta2, entries2, corrupt2, nil)

	h2, ok := m2.Lookup("v")
	require.True(t, ok)
	got, err := m2.Read(h2, 0, h2.Length())
	require.NoError(t, err)
	require.Equal(t, "persisted", string(got))
}

func bytes(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}
