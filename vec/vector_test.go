package vec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharedcode/anydb"
	"github.com/sharedcode/anydb/vec/codec"
)

func openTestDB(t *testing.T) *anydb.Database {
	t.Helper()
	dir := t.TempDir()
	db, err := anydb.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRawRoundTrip_pushFlushReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := anydb.Open(dir)
	require.NoError(t, err)

	v, err := Import[uint64](db, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)
	for i := uint64(0); i < 1000; i++ {
		v.Push(i)
	}
	require.NoError(t, v.Flush())
	require.NoError(t, db.Close())

	db2, err := anydb.Open(dir)
	require.NoError(t, err)
	defer db2.Close()
	v2, err := Import[uint64](db2, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)

	require.Equal(t, uint64(1000), v2.Len())
	got, ok, err := v2.ReadAt(500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(500), got)

	var sum uint64
	it := v2.Iter()
	for {
		val, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		sum += val
	}
	require.Equal(t, uint64(499500), sum)
}

func TestHoles_takeThenReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := anydb.Open(dir)
	require.NoError(t, err)

	v, err := Import[uint64](db, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)
	for i := uint64(0); i < 10; i++ {
		v.Push(i)
	}
	require.NoError(t, v.Flush())

	_, ok, err := v.Take(3)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = v.Take(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, v.Flush())
	require.NoError(t, db.Close())

	db2, err := anydb.Open(dir)
	require.NoError(t, err)
	defer db2.Close()
	v2, err := Import[uint64](db2, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)

	require.Equal(t, []uint64{3, 7}, v2.Holes())
	_, ok, err = v2.ReadAt(3)
	require.NoError(t, err)
	require.False(t, ok)
	got4, ok, err := v2.ReadAt(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4), got4)

	var seq []uint64
	it := v2.Iter()
	for {
		val, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seq = append(seq, val)
	}
	require.Equal(t, []uint64{0, 1, 2, 4, 5, 6, 8, 9}, seq)
}

func TestRollback_singleStampUndoesLaterEdits(t *testing.T) {
	db := openTestDB(t)
	v, err := Import[uint64](db, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)

	v.Push(10)
	v.Push(20)
	require.NoError(t, v.StampedFlushWithChanges(1))

	require.NoError(t, v.Update(0, 99))
	v.Push(30)
	require.NoError(t, v.StampedFlushWithChanges(2))

	require.NoError(t, v.Rollback())

	require.Equal(t, uint64(1), v.Stamp())
	require.Equal(t, uint64(2), v.Len())
	got0, ok, err := v.ReadAt(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), got0)
	got1, ok, err := v.ReadAt(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(20), got1)
}

func TestCrashConsistency_unflushedPushesLostOnReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := anydb.Open(dir)
	require.NoError(t, err)

	v, err := Import[uint64](db, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)
	for i := uint64(0); i < 100; i++ {
		v.Push(i)
	}
	require.NoError(t, v.Flush())
	for i := uint64(100); i < 200; i++ {
		v.Push(i)
	}
	// Simulate a crash: no Flush for the second batch, drop the process's
	// handle to the database without closing cleanly.
	_ = db

	db2, err := anydb.Open(dir)
	require.NoError(t, err)
	defer db2.Close()
	v2, err := Import[uint64](db2, "v", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)

	require.Equal(t, uint64(100), v2.Len())
	var count uint64
	it := v2.Iter()
	for {
		val, idx, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, idx, val)
		count++
	}
	require.Equal(t, uint64(100), count)
}

func TestCompressedBlockUpdate_pcoVecReopenAndUpdate(t *testing.T) {
	dir := t.TempDir()
	db, err := anydb.Open(dir)
	require.NoError(t, err)

	v, err := Import[uint64](db, "v", 1, codec.IDPco, Uint64Marshaler{}, WithBlockSize(16))
	require.NoError(t, err)
	for i := uint64(0); i < 48; i++ {
		v.Push(i)
	}
	require.NoError(t, v.Flush())

	require.NoError(t, v.Update(20, 999))
	require.NoError(t, v.Flush())
	require.NoError(t, db.Close())

	db2, err := anydb.Open(dir)
	require.NoError(t, err)
	defer db2.Close()
	v2, err := Import[uint64](db2, "v", 1, codec.IDPco, Uint64Marshaler{}, WithBlockSize(16))
	require.NoError(t, err)

	got20, ok, err := v2.ReadAt(20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(999), got20)

	got19, ok, err := v2.ReadAt(19)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(19), got19)

	got21, ok, err := v2.ReadAt(21)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(21), got21)

	var sum uint64
	it := v2.Iter()
	for {
		val, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		sum += val
	}
	var want uint64
	for i := uint64(0); i < 48; i++ {
		want += i
	}
	want = want - 20 + 999
	require.Equal(t, want, sum)
}

func TestRegionMove_echoesRegionScenarioThroughVector(t *testing.T) {
	db := openTestDB(t)

	a, err := Import[uint64](db, "a", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)
	b, err := Import[uint64](db, "b", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)
	c, err := Import[uint64](db, "c", 1, codec.IDRaw, Uint64Marshaler{})
	require.NoError(t, err)

	for i := uint64(0); i < 640; i++ {
		a.Push(i)
		b.Push(i)
		c.Push(i)
	}
	require.NoError(t, a.Flush())
	require.NoError(t, b.Flush())
	require.NoError(t, c.Flush())

	bh, ok := db.Regions().Lookup("b.values")
	require.True(t, ok)
	require.NoError(t, db.Regions().Remove(bh))
	require.NoError(t, db.Flush())

	for i := uint64(640); i < 1152; i++ {
		a.Push(i)
	}
	require.NoError(t, a.Flush())

	got, ok, err := a.ReadAt(1000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1000), got)

	gotC, ok, err := c.ReadAt(100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), gotC)
}
