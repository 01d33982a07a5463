package vec

import (
	"encoding/binary"
	"sort"
)

// encodeHoles serializes a sorted hole-index set as a flat array of 8-byte
// little-endian indices. The set is expected to be small relative to the
// vector (sparse deletions, per spec.md §1), so a full rewrite whenever the
// set changes (Take, Update of a hole, Truncate, Rollback) is the simplest
// correct approach and matches the Non-goal against fine-grained
// per-element journaling.
func encodeHoles(sorted []uint64) []byte {
	out := make([]byte, len(sorted)*8)
	for i, idx := range sorted {
		binary.LittleEndian.PutUint64(out[i*8:], idx)
	}
	return out
}

func decodeHoles(b []byte) []uint64 {
	n := len(b) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return out
}

// holeSet is the in-memory mirror of a vector's holes region: an unordered
// set of deleted-but-not-truncated indices; sorted() lists them ascending.
type holeSet struct {
	m map[uint64]struct{}
}

func newHoleSet(indices []uint64) *holeSet {
	s := &holeSet{m: make(map[uint64]struct{}, len(indices))}
	for _, i := range indices {
		s.m[i] = struct{}{}
	}
	return s
}

func (s *holeSet) has(i uint64) bool {
	_, ok := s.m[i]
	return ok
}

func (s *holeSet) add(i uint64)    { s.m[i] = struct{}{} }
func (s *holeSet) remove(i uint64) { delete(s.m, i) }
func (s *holeSet) len() int        { return len(s.m) }

// discardFrom removes every index >= n, used by truncate.
func (s *holeSet) discardFrom(n uint64) {
	for i := range s.m {
		if i >= n {
			delete(s.m, i)
		}
	}
}

func (s *holeSet) sorted() []uint64 {
	out := make([]uint64, 0, len(s.m))
	for i := range s.m {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
