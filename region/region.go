// Package region is the region manager: it creates, grows, moves, and
// removes named, independently growing byte ranges inside one data file,
// backed by the free-space map and metadata store.
package region

import (
	"sync"

	log "log/slog"

	"github.com/sharedcode/anydb"
	"github.com/sharedcode/anydb/internal/freespace"
	"github.com/sharedcode/anydb/internal/metadata"
	"github.com/sharedcode/anydb/internal/mmapio"
	"github.com/sharedcode/anydb/internal/wireformat"
	"github.com/sharedcode/anydb/metrics"
)

// ID is a region's stable numeric identifier, unique and stable across
// grows/moves; regenerated only when a region is removed and recreated.
type ID uint64

// Handle is a named, contiguous byte range within the data file. Every
// mutating operation on a Handle takes its write lock; reads (via Reader)
// take its read lock, so many readers may run concurrently with no writer.
type Handle struct {
	mu sync.RWMutex

	id       ID
	name     string
	slot     int
	offset   int64
	capacity int64
	length   int64
}

func (h *Handle) ID() ID          { h.mu.RLock(); defer h.mu.RUnlock(); return h.id }
func (h *Handle) Name() string    { return h.name }
func (h *Handle) Length() int64   { h.mu.RLock(); defer h.mu.RUnlock(); return h.length }
func (h *Handle) Capacity() int64 { h.mu.RLock(); defer h.mu.RUnlock(); return h.capacity }

// Manager creates/grows/moves/removes named regions over one data file. A
// Manager's mutex protects the metadata table and free-space map (the
// Database-level mutex described in spec §5); region Handles additionally
// have their own per-region lock for content mutation.
type Manager struct {
	mu   sync.Mutex
	data *mmapio.File
	meta *metadata.Store
	free *freespace.Map
	met  *metrics.Recorder

	byName map[string]*Handle
	byID   map[ID]*Handle
	nextID ID
}

// minGrowthFactor is the slack multiplier applied on reallocation, per
// spec §4.4 ("a ≥1.5× factor, implementer's choice; must be ≥ requested").
const minGrowthFactor = 1.5

// NewManager builds a Manager from an already-scanned metadata table (see
// metadata.Open) and recovers holes for any corrupt entries found during
// that scan into the free-space map as committed holes.
func NewManager(data *mmapio.File, meta *metadata.Store, entries map[int]wireformat.Entry, corrupt []metadata.CorruptRange, met *metrics.Recorder) *Manager {
	free := freespace.New(met)
	m := &Manager{
		data:   data,
		meta:   meta,
		free:   free,
		met:    met,
		byName: make(map[string]*Handle),
		byID:   make(map[ID]*Handle),
	}

	for slot, e := range entries {
		h := &Handle{id: ID(e.ID), name: e.Name, slot: slot, offset: e.Offset, capacity: e.Capacity, length: e.Length}
		m.byName[e.Name] = h
		m.byID[h.id] = h
		if ID(e.ID) >= m.nextID {
			m.nextID = ID(e.ID) + 1
		}
	}
	for _, c := range corrupt {
		free.Release(c.Offset, c.Capacity, false)
	}
	return m
}

// CreateOrOpen returns the existing region named name, or creates a new
// empty one (zero capacity, freshly allocated metadata slot).
func (m *Manager) CreateOrOpen(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byName[name]; ok {
		return h, nil
	}

	slot, err := m.meta.AllocateSlot()
	if err != nil {
		return nil, err
	}
	id := m.nextID
	m.nextID++
	e := wireformat.Entry{ID: uint64(id), Name: name, Offset: 0, Capacity: 0, Length: 0}
	if err := m.meta.UpdateEntry(slot, e); err != nil {
		return nil, err
	}
	h := &Handle{id: id, name: name, slot: slot}
	m.byName[name] = h
	m.byID[id] = h
	return h, nil
}

// Lookup returns the region named name, if it exists.
func (m *Manager) Lookup(name string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byName[name]
	return h, ok
}

// Write replaces a region's entire contents, growing it if necessary.
func (m *Manager) Write(h *Handle, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if int64(len(data)) > h.capacity {
		if err := m.grow(h, int64(len(data))); err != nil {
			return err
		}
	}
	if err := m.data.Write(h.offset, data); err != nil {
		return err
	}
	h.length = int64(len(data))
	return m.commitLength(h)
}

// WriteAt overwrites within [0, length) or extends up to capacity; beyond
// capacity it triggers growth.
func (m *Manager) WriteAt(h *Handle, offset int64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if offset < 0 {
		return anydb.NewError(anydb.OutOfRange, nil, offset)
	}
	end := offset + int64(len(data))
	if end > h.capacity {
		if err := m.grow(h, end); err != nil {
			return err
		}
	}
	if err := m.data.Write(h.offset+offset, data); err != nil {
		return err
	}
	if end > h.length {
		h.length = end
		return m.commitLength(h)
	}
	return nil
}

// Truncate reduces a region's length; it does not release capacity.
func (m *Manager) Truncate(h *Handle, newLength int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if newLength < 0 || newLength > h.length {
		return anydb.NewError(anydb.OutOfRange, nil, newLength)
	}
	h.length = newLength
	return m.commitLength(h)
}

// Remove marks a region's metadata slot deleted and releases its
// [offset, capacity) range as a pending hole, invisible to the allocator
// until the next successful flush.
func (m *Manager) Remove(h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	e := wireformat.Entry{ID: uint64(h.id), Name: h.name, Offset: h.offset, Capacity: h.capacity, Length: h.length}
	if err := m.meta.DeleteEntry(h.slot, e); err != nil {
		return err
	}
	if h.capacity > 0 {
		m.free.Release(h.offset, h.capacity, true)
	}
	delete(m.byName, h.name)
	delete(m.byID, h.id)
	h.capacity = 0
	h.length = 0
	return nil
}

// Reader is a short-lived snapshot handle pinning the current data-file
// mapping epoch and the region's shared (read) lock.
type Reader struct {
	handle *Handle
	pinned *mmapio.Pinned
	offset int64
	length int64
}

// CreateReader takes the region's read lock and pins the current mapping
// epoch, then snapshots offset/length so the view stays stable even if a
// concurrent writer extends or relocates the region afterward.
func (m *Manager) CreateReader(h *Handle) *Reader {
	h.mu.RLock()
	return &Reader{
		handle: h,
		pinned: m.data.Acquire(),
		offset: h.offset,
		length: h.length,
	}
}

// Len returns the region's committed length as observed at reader creation time.
func (r *Reader) Len() int64 { return r.length }

// Slice returns a borrowed view [relOffset, relOffset+relLength) within the region.
func (r *Reader) Slice(relOffset, relLength int64) ([]byte, error) {
	if relOffset < 0 || relLength < 0 || relOffset+relLength > r.length {
		return nil, anydb.NewError(anydb.OutOfRange, nil, []int64{relOffset, relLength})
	}
	return r.pinned.Bytes(r.offset+relOffset, relLength)
}

// Bytes returns the whole committed region content.
func (r *Reader) Bytes() ([]byte, error) { return r.Slice(0, r.length) }

// Close releases the pinned mapping epoch and the region's read lock.
func (r *Reader) Close() {
	r.pinned.Release()
	r.handle.mu.RUnlock()
}

// Read is a convenience combining CreateReader/Slice/Close for one-shot reads.
func (m *Manager) Read(h *Handle, relOffset, relLength int64) ([]byte, error) {
	r := m.CreateReader(h)
	defer r.Close()
	b, err := r.Slice(relOffset, relLength)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// grow ensures h.capacity >= needed, following the algorithm in spec §4.4:
// extend in place if at end-of-file; else absorb a following committed
// hole; else reallocate (with slack) via the free-space map or at
// end-of-file, copying existing bytes and releasing the old range as a
// pending hole. Callers must already hold h.mu for writing.
func (m *Manager) grow(h *Handle, needed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.offset+h.capacity == m.data.Len() {
		if err := m.data.Grow(h.offset + needed); err != nil {
			return err
		}
		h.capacity = needed
		return m.writeEntryLocked(h)
	}

	extra := needed - h.capacity
	for _, hole := range m.free.IterCommitted() {
		if hole.Offset == h.offset+h.capacity && hole.Length >= extra {
			m.free.Clear(hole.Offset, hole.Length)
			if hole.Length > extra {
				m.free.Release(hole.Offset+extra, hole.Length-extra, false)
			}
			h.capacity = needed
			return m.writeEntryLocked(h)
		}
	}

	newCap := nextCapacity(needed)
	newOffset, ok := m.free.Allocate(newCap)
	if !ok {
		newOffset = m.data.Len()
		if err := m.data.Grow(newOffset + newCap); err != nil {
			return err
		}
	}

	if h.length > 0 {
		old, err := m.data.Read(h.offset, h.length)
		if err != nil {
			return err
		}
		buf := make([]byte, len(old))
		copy(buf, old)
		if err := m.data.Write(newOffset, buf); err != nil {
			return err
		}
	}

	oldOffset, oldCapacity := h.offset, h.capacity
	h.offset = newOffset
	h.capacity = newCap
	if err := m.writeEntryLocked(h); err != nil {
		h.offset, h.capacity = oldOffset, oldCapacity
		return err
	}
	if oldCapacity > 0 {
		m.free.Release(oldOffset, oldCapacity, true)
	}
	log.Debug("region: relocated", "name", h.name, "old_offset", oldOffset, "new_offset", newOffset, "capacity", newCap)
	return nil
}

// commitLength persists h's current length via a page-atomic metadata write.
func (m *Manager) commitLength(h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeEntryLocked(h)
}

func (m *Manager) writeEntryLocked(h *Handle) error {
	e := wireformat.Entry{ID: uint64(h.id), Name: h.name, Offset: h.offset, Capacity: h.capacity, Length: h.length}
	return m.meta.UpdateEntry(h.slot, e)
}

// nextCapacity returns the smallest power of two that is at least
// minGrowthFactor times requested, after first raising requested to a
// 4096-byte floor so tiny regions don't thrash on every single-byte write
// (e.g. 100 -> 8192, 4096 -> 8192, 5000 -> 8192, 6000 -> 16384).
func nextCapacity(requested int64) int64 {
	const floor = 4096
	if requested < floor {
		requested = floor
	}
	cap := int64(1)
	for cap < requested {
		cap <<= 1
	}
	// Double further until the ≥1.5× slack factor spec §4.4 calls out is met.
	if slack := int64(float64(requested) * minGrowthFactor); cap < slack {
		for cap < slack {
			cap <<= 1
		}
	}
	return cap
}

// Sync msyncs the data mapping (flush step 1).
func (m *Manager) Sync() error { return m.data.Sync() }

// PromotePending promotes pending holes to committed (flush step 4). It
// must be called with the Database's flush ordering already observed
// (data synced, metadata synced).
func (m *Manager) PromotePending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free.PromotePending()
	m.met.SetHoleCounts(m.free.Committed(), m.free.Pending())
}

// Compact punches every committed hole's byte range in the data file.
// Callers must hold the Database mutex exclusively for the duration (spec
// §9: "this spec requires [compact] to hold the database mutex
// exclusively").
func (m *Manager) Compact() (bytesReclaimed int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hole := range m.free.IterCommitted() {
		if err := m.data.Punch(hole.Offset, hole.Length); err != nil {
			return bytesReclaimed, err
		}
		bytesReclaimed += hole.Length
	}
	return bytesReclaimed, nil
}

// Names returns every live region name, for introspection/CLI use.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.byName))
	for n := range m.byName {
		names = append(names, n)
	}
	return names
}
