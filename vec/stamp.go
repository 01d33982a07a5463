package vec

import "encoding/binary"

// changeEntry is one reversible edit captured since the previous stamped
// flush: either the element's prior encoded value, or a record that the
// index was a hole before this window (spec.md §4.7).
type changeEntry struct {
	wasHole bool
	prior   []byte // len == elementWidth; nil if wasHole
}

// stampRecord is the change delta for one stamped flush: enough to reverse
// every edit committed between the previous stamp and this one.
type stampRecord struct {
	stamp       uint64
	priorLength uint64
	entries     map[uint64]changeEntry
}

// encodeStampRing serializes up to K stamp records, most recent last, as
// {count:4}{records...} with each record {stamp:8}{prior_length:8}
// {entry_count:4}{entries...} and each entry {index:8}{flag:1}
// {prior:elementWidth}, where prior is zero-filled when flag is 1 (was hole).
// A full rewrite on every stamped flush is deliberate: spec.md's Non-goals
// exclude fine-grained per-element journaling, and K is small in practice.
func encodeStampRing(ring []stampRecord, elementWidth int) []byte {
	size := 4
	for _, r := range ring {
		size += 8 + 8 + 4 + len(r.entries)*(8+1+elementWidth)
	}
	out := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(out[off:], uint32(len(ring)))
	off += 4
	for _, r := range ring {
		binary.LittleEndian.PutUint64(out[off:], r.stamp)
		off += 8
		binary.LittleEndian.PutUint64(out[off:], r.priorLength)
		off += 8
		binary.LittleEndian.PutUint32(out[off:], uint32(len(r.entries)))
		off += 4
		for idx, e := range r.entries {
			binary.LittleEndian.PutUint64(out[off:], idx)
			off += 8
			if e.wasHole {
				out[off] = 1
			} else {
				out[off] = 0
			}
			off++
			if !e.wasHole {
				copy(out[off:], e.prior)
			}
			off += elementWidth
		}
	}
	return out[:off]
}

func decodeStampRing(b []byte, elementWidth int) []stampRecord {
	if len(b) < 4 {
		return nil
	}
	off := 0
	count := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	ring := make([]stampRecord, 0, count)
	for r := 0; r < count; r++ {
		rec := stampRecord{entries: make(map[uint64]changeEntry)}
		rec.stamp = binary.LittleEndian.Uint64(b[off:])
		off += 8
		rec.priorLength = binary.LittleEndian.Uint64(b[off:])
		off += 8
		entryCount := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		for e := 0; e < entryCount; e++ {
			idx := binary.LittleEndian.Uint64(b[off:])
			off += 8
			flag := b[off]
			off++
			var entry changeEntry
			if flag == 1 {
				entry.wasHole = true
			} else {
				entry.prior = append([]byte(nil), b[off:off+elementWidth]...)
			}
			off += elementWidth
			rec.entries[idx] = entry
		}
		ring = append(ring, rec)
	}
	return ring
}
