// Package metadata is the metadata store: the 4 KiB, page-atomic entries
// describing every region, rebuilt by a full scan on open. Entry 0 is the
// reserved database header; entries 1..N each describe one region slot.
package metadata

import (
	"path/filepath"
	"sort"

	log "log/slog"

	"github.com/sharedcode/anydb/internal/mmapio"
	"github.com/sharedcode/anydb/internal/wireformat"
)

const fileName = "anydb.meta"

// CorruptRange is a region range recovered as a committed hole because its
// metadata entry failed its checksum on open. Recovery is best-effort, not
// journaled, per spec §4.3.
type CorruptRange struct {
	Offset   int64
	Capacity int64
}

// Store owns the metadata file's mapping and the in-memory slot table
// rebuilt from it on Open.
type Store struct {
	mf        *mmapio.File
	byName    map[string]int
	byID      map[uint64]int
	freeSlots []int // sorted ascending; slot 0 is never free (reserved header)
	slotCount int
}

// Open scans the metadata file at dir/anydb.meta (creating it with a fresh
// database header if absent) and rebuilds the in-memory region table.
func Open(dir string) (store *Store, entries map[int]wireformat.Entry, corrupt []CorruptRange, err error) {
	path := filepath.Join(dir, fileName)
	mf, err := mmapio.Open(path, wireformat.PageSize)
	if err != nil {
		return nil, nil, nil, err
	}

	fresh := mf.Len() == wireformat.PageSize
	if fresh {
		if err := mf.Write(0, wireformat.EncodeDBHeader(wireformat.DefaultDBHeader())); err != nil {
			mf.Close()
			return nil, nil, nil, err
		}
	} else {
		headerPage, err := mf.Read(0, wireformat.PageSize)
		if err != nil {
			mf.Close()
			return nil, nil, nil, err
		}
		if _, err := wireformat.DecodeDBHeader(headerPage); err != nil {
			mf.Close()
			return nil, nil, nil, err
		}
	}

	s := &Store{
		mf:     mf,
		byName: make(map[string]int),
		byID:   make(map[uint64]int),
	}
	entries = make(map[int]wireformat.Entry)

	s.slotCount = int(mf.Len()/wireformat.PageSize) - 1
	for slot := 1; slot <= s.slotCount; slot++ {
		page, err := mf.Read(int64(slot)*wireformat.PageSize, wireformat.PageSize)
		if err != nil {
			mf.Close()
			return nil, nil, nil, err
		}
		e, derr := wireformat.DecodeEntry(page)
		if derr != nil {
			// Corruption: treat the region as deleted; recover its backing
			// range as a committed hole and zero the slot so it becomes reusable.
			log.Warn("metadata: corrupt entry, treating as deleted", "slot", slot, "error", derr)
			if stale, ok := wireformat.DecodeEntryBestEffort(page); ok {
				corrupt = append(corrupt, CorruptRange{Offset: stale.Offset, Capacity: stale.Capacity})
			}
			if err := mf.Write(int64(slot)*wireformat.PageSize, wireformat.ZeroPage()); err != nil {
				mf.Close()
				return nil, nil, nil, err
			}
			s.freeSlots = append(s.freeSlots, slot)
			continue
		}
		if e.IsZero() {
			s.freeSlots = append(s.freeSlots, slot)
			continue
		}
		entries[slot] = e
		s.byName[e.Name] = slot
		s.byID[e.ID] = slot
	}
	sort.Ints(s.freeSlots)
	return s, entries, corrupt, nil
}

// SlotForName returns the slot number for name, if present.
func (s *Store) SlotForName(name string) (int, bool) {
	slot, ok := s.byName[name]
	return slot, ok
}

// AllocateSlot returns the lowest free slot, growing the metadata file by
// one page first if none is free.
func (s *Store) AllocateSlot() (int, error) {
	if len(s.freeSlots) > 0 {
		slot := s.freeSlots[0]
		s.freeSlots = s.freeSlots[1:]
		return slot, nil
	}
	s.slotCount++
	newSize := int64(s.slotCount+1) * wireformat.PageSize
	if err := s.mf.Grow(newSize); err != nil {
		s.slotCount--
		return 0, err
	}
	return s.slotCount, nil
}

// UpdateEntry writes the 4 KiB page for slot verbatim and updates the
// in-memory name/ID indexes.
func (s *Store) UpdateEntry(slot int, e wireformat.Entry) error {
	page, err := wireformat.EncodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.mf.Write(int64(slot)*wireformat.PageSize, page); err != nil {
		return err
	}
	s.byName[e.Name] = slot
	s.byID[e.ID] = slot
	return nil
}

// DeleteEntry zeroes slot's page, marking it deleted, and frees the slot for reuse.
func (s *Store) DeleteEntry(slot int, e wireformat.Entry) error {
	if err := s.mf.Write(int64(slot)*wireformat.PageSize, wireformat.ZeroPage()); err != nil {
		return err
	}
	delete(s.byName, e.Name)
	delete(s.byID, e.ID)
	s.freeSlots = insertSorted(s.freeSlots, slot)
	return nil
}

// Sync msyncs the metadata mapping (flush step 2).
func (s *Store) Sync() error { return s.mf.Sync() }

// Close releases the metadata mapping.
func (s *Store) Close() error { return s.mf.Close() }

func insertSorted(slots []int, v int) []int {
	i := sort.SearchInts(slots, v)
	slots = append(slots, 0)
	copy(slots[i+1:], slots[i:])
	slots[i] = v
	return slots
}
