package vec

import "github.com/sharedcode/anydb"

// StampedFlushWithChanges requires s > the current stamp; it flushes
// pending writes (as Write would) and atomically appends a change record
// for stamp s capturing every index touched since the previous stamped
// flush, sufficient to reverse them via Rollback. The ring retains up to
// stampRetention records; older ones are discarded (spec.md §4.7).
func (v *Vector[T]) StampedFlushWithChanges(s uint64) error {
	v.mu.Lock()
	if s <= v.stamp {
		v.mu.Unlock()
		return anydb.NewError(anydb.Invariant, nil, s)
	}

	record := stampRecord{stamp: s, priorLength: v.windowStartLen, entries: v.dirty}
	if err := v.writeLocked(); err != nil {
		v.mu.Unlock()
		return err
	}

	v.stampRing = append(v.stampRing, record)
	if len(v.stampRing) > v.stampRetention {
		v.stampRing = v.stampRing[len(v.stampRing)-v.stampRetention:]
	}
	v.stamp = s
	v.windowStartLen = v.committedLen
	v.dirty = make(map[uint64]changeEntry)

	if err := v.persistHeader(); err != nil {
		v.mu.Unlock()
		return err
	}
	if err := v.persistStamps(); err != nil {
		v.mu.Unlock()
		return err
	}
	v.mu.Unlock()
	return v.db.Flush()
}

// Rollback reverses the most recent stamped change record, restoring the
// vector to its state immediately after the prior stamped flush, then
// drops that record. Fails with InsufficientHistory if no record remains.
func (v *Vector[T]) Rollback() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rollbackLocked()
}

// RollbackBefore repeatedly rolls back until the current stamp is < s,
// failing with InsufficientHistory if retained history runs out first.
func (v *Vector[T]) RollbackBefore(s uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.stamp >= s {
		if err := v.rollbackLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector[T]) rollbackLocked() error {
	if len(v.stampRing) == 0 {
		return anydb.NewError(anydb.InsufficientHistory, nil, v.stamp)
	}
	rec := v.stampRing[len(v.stampRing)-1]
	v.stampRing = v.stampRing[:len(v.stampRing)-1]

	for idx, e := range rec.entries {
		if e.wasHole {
			v.holes.add(idx)
			delete(v.pendingBlockEdits, idx)
			continue
		}
		v.holes.remove(idx)
		val := v.marshaler.Decode(e.prior)
		if v.blockSize == 0 {
			if err := v.db.Regions().WriteAt(v.valuesH, int64(idx)*int64(v.width), e.prior); err != nil {
				return err
			}
		} else {
			v.pendingBlockEdits[idx] = val
		}
	}
	v.holes.discardFrom(rec.priorLength)
	v.pending = v.pending[:0]

	if v.blockSize == 0 {
		if err := v.db.Regions().Truncate(v.valuesH, int64(rec.priorLength)*int64(v.width)); err != nil {
			return err
		}
	} else if err := v.rebuildBlocks(rec.priorLength, nil); err != nil {
		return err
	}
	v.pendingBlockEdits = make(map[uint64]T)
	v.committedLen = rec.priorLength
	v.windowStartLen = rec.priorLength
	v.dirty = make(map[uint64]changeEntry)

	v.stamp = 0
	if len(v.stampRing) > 0 {
		v.stamp = v.stampRing[len(v.stampRing)-1].stamp
	}

	if err := v.persistHoles(); err != nil {
		return err
	}
	if err := v.persistStamps(); err != nil {
		return err
	}
	return v.persistHeader()
}
