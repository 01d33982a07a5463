package anydb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_createsDataAndMetadataFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()
	require.FileExists(t, filepath.Join(dir, "anydb.data"))
	require.FileExists(t, filepath.Join(dir, "anydb.meta"))

	h, err := db.Regions().CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, db.Regions().Write(h, []byte("hello")))
	require.NoError(t, db.Flush())
}

func TestFlush_idempotentWithNoInterveningWrites(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	h, err := db.Regions().CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, db.Regions().Write(h, []byte("hello")))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Flush())

	got, err := db.Regions().Read(h, 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestReopen_restoresWrittenRegions(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	h, err := db.Regions().CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, db.Regions().Write(h, []byte("persisted")))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Close())

	db2, err := Open(dir)
	require.NoError(t, err)
	defer db2.Close()

	h2, ok := db2.Regions().Lookup("v")
	require.True(t, ok)
	got, err := db2.Regions().Read(h2, 0, h2.Length())
	require.NoError(t, err)
	require.Equal(t, "persisted", string(got))
}

func TestCompact_reclaimsRemovedRegionSpace(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithMetrics())
	require.NoError(t, err)
	defer db.Close()

	h, err := db.Regions().CreateOrOpen("v")
	require.NoError(t, err)
	require.NoError(t, db.Regions().Write(h, make([]byte, 8192)))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Regions().Remove(h))
	require.NoError(t, db.Flush())

	reclaimed, err := db.Compact()
	require.NoError(t, err)
	require.Greater(t, reclaimed, int64(0))
}
