// Package freespace tracks holes (free byte ranges) in the data file: a
// sorted, coalesced set of disjoint [offset, offset+length) runs, split into
// a committed pool (reusable for allocation) and a pending pool (holes
// originating from an as-yet-unflushed move or remove, invisible to the
// allocator until the next successful flush).
//
// Map is not safe for concurrent use by multiple goroutines; callers hold
// the Database's mutex around every call, per the concurrency model in §5.
package freespace

import (
	"sort"

	"github.com/sharedcode/anydb/metrics"
)

// Hole is a free byte range [Offset, Offset+Length).
type Hole struct {
	Offset int64
	Length int64
}

func (h Hole) end() int64 { return h.Offset + h.Length }

// Map holds the committed and pending hole pools.
type Map struct {
	committed []Hole
	pending   []Hole
	metrics   *metrics.Recorder
}

// New returns an empty free-space map. rec may be nil.
func New(rec *metrics.Recorder) *Map {
	return &Map{metrics: rec}
}

// Allocate performs first-fit over committed holes >= n. On a match it
// splits the hole (shrinking or removing it) and returns the chosen offset.
// On a miss it returns ok=false.
func (m *Map) Allocate(n int64) (offset int64, ok bool) {
	for i := range m.committed {
		h := m.committed[i]
		if h.Length >= n {
			offset = h.Offset
			if h.Length == n {
				m.committed = append(m.committed[:i], m.committed[i+1:]...)
			} else {
				m.committed[i] = Hole{Offset: h.Offset + n, Length: h.Length - n}
			}
			m.metrics.Allocation()
			return offset, true
		}
	}
	return 0, false
}

// Release inserts [offset, offset+length) into the pending pool (if
// pending) or directly into the committed pool, coalescing with adjacent
// runs in that pool.
func (m *Map) Release(offset, length int64, pending bool) {
	if length <= 0 {
		return
	}
	if pending {
		m.pending = insertCoalesced(m.pending, Hole{Offset: offset, Length: length})
	} else {
		m.committed = insertCoalesced(m.committed, Hole{Offset: offset, Length: length})
	}
	m.metrics.Release()
}

// PromotePending unions the pending pool into the committed pool,
// coalescing, and empties the pending pool. Called as the last step of a
// successful flush.
func (m *Map) PromotePending() {
	for _, h := range m.pending {
		m.committed = insertCoalesced(m.committed, h)
	}
	m.pending = nil
}

// IterCommitted returns the committed holes in offset order, for
// compaction. The returned slice is a copy; mutating it does not affect
// the map.
func (m *Map) IterCommitted() []Hole {
	out := make([]Hole, len(m.committed))
	copy(out, m.committed)
	return out
}

// Committed returns the number of committed holes.
func (m *Map) Committed() int { return len(m.committed) }

// Pending returns the number of pending holes.
func (m *Map) Pending() int { return len(m.pending) }

// Clear removes every committed hole matching offset/length exactly; called
// when region.Manager.grow absorbs a hole into a growing region, so the
// absorbed range is no longer offered back out as free space.
func (m *Map) Clear(offset, length int64) {
	for i, h := range m.committed {
		if h.Offset == offset && h.Length == length {
			m.committed = append(m.committed[:i], m.committed[i+1:]...)
			return
		}
	}
}

// insertCoalesced inserts h into the sorted pool, merging with any
// overlapping or directly-adjacent neighbor runs so the pool stays a
// disjoint, coalesced set.
func insertCoalesced(pool []Hole, h Hole) []Hole {
	i := sort.Search(len(pool), func(i int) bool { return pool[i].Offset >= h.Offset })
	pool = append(pool, Hole{})
	copy(pool[i+1:], pool[i:])
	pool[i] = h

	// Merge with the following neighbor(s).
	for i+1 < len(pool) && pool[i].end() >= pool[i+1].Offset {
		if pool[i+1].end() > pool[i].end() {
			pool[i].Length = pool[i+1].end() - pool[i].Offset
		}
		pool = append(pool[:i+1], pool[i+2:]...)
	}
	// Merge with the preceding neighbor.
	if i > 0 && pool[i-1].end() >= pool[i].Offset {
		if pool[i].end() > pool[i-1].end() {
			pool[i-1].Length = pool[i].end() - pool[i-1].Offset
		}
		pool = append(pool[:i], pool[i+1:]...)
	}
	return pool
}
