package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharedcode/anydb/internal/wireformat"
)

func TestOpen_freshDirectory(t *testing.T) {
	dir := t.TempDir()
	s, entries, corrupt, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()
	require.Empty(t, entries)
	require.Empty(t, corrupt)
}

func TestAllocateUpdateDeleteEntry_roundTrip(t *testing.T) {
	dir := t.TempDir()
	s, _, _, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	slot, err := s.AllocateSlot()
	require.NoError(t, err)
	require.Equal(t, 1, slot)

	e := wireformat.Entry{ID: 9, Name: "v", Offset: 4096, Capacity: 4096, Length: 0}
	require.NoError(t, s.UpdateEntry(slot, e))

	got, ok := s.SlotForName("v")
	require.True(t, ok)
	require.Equal(t, slot, got)

	require.NoError(t, s.DeleteEntry(slot, e))
	_, ok = s.SlotForName("v")
	require.False(t, ok)
}

func TestAllocateSlot_prefersLowestFreeSlot(t *testing.T) {
	dir := t.TempDir()
	s, _, _, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	s1, err := s.AllocateSlot()
	require.NoError(t, err)
	s2, err := s.AllocateSlot()
	require.NoError(t, err)
	require.NoError(t, s.UpdateEntry(s1, wireformat.Entry{ID: 1, Name: "a", Capacity: 1}))
	require.NoError(t, s.UpdateEntry(s2, wireformat.Entry{ID: 2, Name: "b", Capacity: 1}))
	require.NoError(t, s.DeleteEntry(s1, wireformat.Entry{ID: 1, Name: "a", Capacity: 1}))

	reused, err := s.AllocateSlot()
	require.NoError(t, err)
	require.Equal(t, s1, reused)
}

func TestOpen_rebuildsTableFromExistingFile(t *testing.T) {
	dir := t.TempDir()
	s, _, _, err := Open(dir)
	require.NoError(t, err)

	slot, err := s.AllocateSlot()
	require.NoError(t, err)
	e := wireformat.Entry{ID: 5, Name: "prices", Offset: 4096, Capacity: 8192, Length: 10}
	require.NoError(t, s.UpdateEntry(slot, e))
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	s2, entries, corrupt, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	require.Empty(t, corrupt)
	require.Equal(t, e, entries[slot])
	got, ok := s2.SlotForName("prices")
	require.True(t, ok)
	require.Equal(t, slot, got)
}

func TestOpen_corruptEntryBecomesFreeSlotAndCorruptRange(t *testing.T) {
	dir := t.TempDir()
	s, _, _, err := Open(dir)
	require.NoError(t, err)
	slot, err := s.AllocateSlot()
	require.NoError(t, err)
	e := wireformat.Entry{ID: 1, Name: "v", Offset: 4096, Capacity: 4096, Length: 1}
	require.NoError(t, s.UpdateEntry(slot, e))
	require.NoError(t, s.Close())

	// Flip a payload byte (inside the ID field) directly on disk, bypassing
	// EncodeEntry, so the stored checksum no longer matches.
	raw, err := openRawPage(dir, slot)
	require.NoError(t, err)
	raw[10] ^= 0xFF
	require.NoError(t, writeRawPage(dir, slot, raw))

	s2, entries, corrupt, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	require.Empty(t, entries)
	require.Len(t, corrupt, 1)
	require.Equal(t, int64(4096), corrupt[0].Offset)
	require.Equal(t, int64(4096), corrupt[0].Capacity)

	reused, err := s2.AllocateSlot()
	require.NoError(t, err)
	require.Equal(t, slot, reused)
}
