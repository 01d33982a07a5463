package vec

// Reader is a read_at(i, reader) handle (spec.md §6): repeated reads through
// one Reader reuse the most recently decoded compressed block rather than
// re-decoding it on every call ("implementations MAY cache the most
// recently decoded block per reader", spec.md §4.5). It has no effect for
// non-block-compressed vectors.
type Reader[T any] struct {
	v           *Vector[T]
	cachedBlock int
	cachedRaw   []byte
	hasCached   bool
}

// NewReader returns a Reader over v's current state.
func (v *Vector[T]) NewReader() *Reader[T] {
	return &Reader[T]{v: v, cachedBlock: -1}
}

// At returns the element at i, or false if i is a hole or out of range.
func (r *Reader[T]) At(i uint64) (T, bool, error) {
	v := r.v
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	total := v.committedLen + uint64(len(v.pending))
	if i >= total {
		return zero, false, nil
	}
	if i >= v.committedLen {
		return v.pending[i-v.committedLen], true, nil
	}
	if v.holes.has(i) {
		return zero, false, nil
	}
	if val, ok := v.pendingBlockEdits[i]; ok {
		return val, true, nil
	}
	if v.blockSize == 0 {
		b, err := v.db.Regions().Read(v.valuesH, int64(i)*int64(v.width), int64(v.width))
		if err != nil {
			return zero, false, err
		}
		return v.marshaler.Decode(b), true, nil
	}

	blockIdx := int(i / uint64(v.blockSize))
	if !r.hasCached || r.cachedBlock != blockIdx {
		count := v.blockElementCount(blockIdx)
		raw, err := readBlock(v.db.Regions(), v.valuesH, v.codec, v.blockOffsets[blockIdx], count, v.width)
		if err != nil {
			return zero, false, err
		}
		r.cachedBlock, r.cachedRaw, r.hasCached = blockIdx, raw, true
	}
	localIdx := int(i % uint64(v.blockSize))
	return v.marshaler.Decode(r.cachedRaw[localIdx*v.width : localIdx*v.width+v.width]), true, nil
}

// Close is a no-op kept for symmetry with region.Reader; a vec.Reader pins
// no mapping of its own (every access is already serialized through the
// owning Vector's mutex).
func (r *Reader[T]) Close() {}

// Iterator yields elements in index order, skipping holes. It is finite and
// not restartable: a fresh traversal requires a fresh Iterator.
type Iterator[T any] struct {
	reader *Reader[T]
	idx    uint64
	total  uint64
}

// Iter returns an Iterator over v's elements as of the call to Iter.
func (v *Vector[T]) Iter() *Iterator[T] {
	v.mu.Lock()
	total := v.committedLen + uint64(len(v.pending))
	v.mu.Unlock()
	return &Iterator[T]{reader: v.NewReader(), total: total}
}

// Next returns the next non-hole element, its index, and true; or false
// once the traversal is exhausted.
func (it *Iterator[T]) Next() (T, uint64, bool, error) {
	var zero T
	for it.idx < it.total {
		i := it.idx
		it.idx++
		val, ok, err := it.reader.At(i)
		if err != nil {
			return zero, 0, false, err
		}
		if ok {
			return val, i, true, nil
		}
	}
	return zero, 0, false, nil
}
