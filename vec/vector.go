// Package vec is the persistent vector layer (spec.md §4.5-§4.7): mutable,
// typed, optionally block-compressed vectors with sparse deletions and
// stamped rollback, built entirely on named regions from package region.
package vec

import (
	"sync"

	log "log/slog"

	"github.com/sharedcode/anydb"
	"github.com/sharedcode/anydb/internal/wireformat"
	"github.com/sharedcode/anydb/region"
	"github.com/sharedcode/anydb/vec/codec"
)

const defaultBlockSize = 1024
const defaultStampRetention = 8

// ImportOption configures Import.
type ImportOption func(*importConfig)

type importConfig struct {
	blockSize      int
	stampRetention int
}

// WithBlockSize sets the element count per compressed block for codecs that
// are block-compressed. Ignored for Raw/ZeroCopy.
func WithBlockSize(n int) ImportOption {
	return func(c *importConfig) { c.blockSize = n }
}

// WithStampRetention sets K, the number of most recent stamped change
// records retained for rollback (spec.md §4.7).
func WithStampRetention(k int) ImportOption {
	return func(c *importConfig) { c.stampRetention = k }
}

// Vector is a mutable, typed, optionally compressed, persistent sequence of
// fixed-width elements with sparse deletions and stamped rollback.
type Vector[T any] struct {
	mu sync.Mutex

	db        *anydb.Database
	name      string
	version   uint16
	marshaler ElementMarshaler[T]
	codec     codec.Codec
	width     int
	blockSize int // 0 if not block-compressed

	headerH *region.Handle
	valuesH *region.Handle
	indexH  *region.Handle // only present when blockSize > 0
	holesH  *region.Handle
	stampsH *region.Handle

	committedLen uint64
	pending      []T

	holes *holeSet

	blockOffsets      []int64      // only used when blockSize > 0
	pendingBlockEdits map[uint64]T // global index -> new value, applied at Write()

	stamp          uint64
	windowStartLen uint64 // length as of the previous stamped flush (or 0)
	stampRing      []stampRecord
	stampRetention int
	dirty          map[uint64]changeEntry
}

// Import opens or creates the named vector, verifying its persisted version
// against the caller's expectation (spec.md §6, "Version discipline").
func Import[T any](db *anydb.Database, name string, version uint16, codecID uint16, marshaler ElementMarshaler[T], opts ...ImportOption) (*Vector[T], error) {
	cfg := importConfig{blockSize: defaultBlockSize, stampRetention: defaultStampRetention}
	for _, opt := range opts {
		opt(&cfg)
	}

	regions := db.Regions()
	headerH, err := regions.CreateOrOpen(name + ".header")
	if err != nil {
		return nil, err
	}

	var header wireformat.VectorHeader
	fresh := headerH.Length() == 0
	if fresh {
		blockSize := uint32(0)
		if codecID != codec.IDRaw && codecID != codec.IDZeroCopy {
			blockSize = uint32(cfg.blockSize)
		}
		header = wireformat.VectorHeader{
			Version:      version,
			CodecID:      codecID,
			ElementWidth: uint32(marshaler.Width()),
			BlockSize:    blockSize,
		}
	} else {
		raw, err := regions.Read(headerH, 0, headerH.Length())
		if err != nil {
			return nil, err
		}
		header, err = wireformat.DecodeVectorHeader(raw)
		if err != nil {
			return nil, err
		}
		if header.Version != version {
			return nil, anydb.NewError(anydb.VersionMismatch, nil, []uint16{header.Version, version})
		}
	}

	c, err := codec.ForID(header.CodecID, int(header.BlockSize), int(header.ElementWidth))
	if err != nil {
		return nil, err
	}

	valuesH, err := regions.CreateOrOpen(name + ".values")
	if err != nil {
		return nil, err
	}
	holesH, err := regions.CreateOrOpen(name + ".holes")
	if err != nil {
		return nil, err
	}
	stampsH, err := regions.CreateOrOpen(name + ".stamps")
	if err != nil {
		return nil, err
	}

	holesRaw, err := regions.Read(holesH, 0, holesH.Length())
	if err != nil {
		return nil, err
	}
	stampsRaw, err := regions.Read(stampsH, 0, stampsH.Length())
	if err != nil {
		return nil, err
	}

	v := &Vector[T]{
		db:                db,
		name:              name,
		version:           version,
		marshaler:         marshaler,
		codec:             c,
		width:             marshaler.Width(),
		blockSize:         int(header.BlockSize),
		headerH:           headerH,
		valuesH:           valuesH,
		holesH:            holesH,
		stampsH:           stampsH,
		committedLen:      header.PushedLen,
		holes:             newHoleSet(decodeHoles(holesRaw)),
		pendingBlockEdits: make(map[uint64]T),
		stamp:             header.Stamp,
		windowStartLen:    header.PushedLen,
		stampRing:         decodeStampRing(stampsRaw, marshaler.Width()),
		stampRetention:    cfg.stampRetention,
		dirty:             make(map[uint64]changeEntry),
	}

	if v.blockSize > 0 {
		indexH, err := regions.CreateOrOpen(name + ".index")
		if err != nil {
			return nil, err
		}
		v.indexH = indexH
		indexRaw, err := regions.Read(indexH, 0, indexH.Length())
		if err != nil {
			return nil, err
		}
		v.blockOffsets = decodeBlockIndex(indexRaw)
	}

	if fresh {
		if err := v.persistHeader(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Len returns the vector's current length, including pending (unflushed)
// pushes and any holes (holes count toward length per spec.md §8 invariant 3).
func (v *Vector[T]) Len() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.committedLen + uint64(len(v.pending))
}

// Holes returns the sorted set of currently deleted-but-not-truncated indices.
func (v *Vector[T]) Holes() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.holes.sorted()
}

// Stamp returns the current stamp (0 if none has been committed yet).
func (v *Vector[T]) Stamp() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stamp
}

// Push appends to the in-memory pending buffer; it does not touch storage.
func (v *Vector[T]) Push(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, val)
}

// Update replaces the element at i. For i < committed length the change is
// recorded (and, for non-block-compressed codecs, written to storage)
// immediately; for i within the pending range it mutates the pending
// buffer. Updating a hole clears it (spec.md §4.6 edge policy).
func (v *Vector[T]) Update(i uint64, val T) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := v.committedLen + uint64(len(v.pending))
	if i >= total {
		return anydb.NewError(anydb.OutOfRange, nil, i)
	}
	if i >= v.committedLen {
		v.pending[i-v.committedLen] = val
		return nil
	}

	v.captureDirty(i)
	wasHole := v.holes.has(i)
	v.holes.remove(i)
	if wasHole != v.holes.has(i) {
		if err := v.persistHoles(); err != nil {
			return err
		}
	}

	if v.blockSize == 0 {
		enc := make([]byte, v.width)
		v.marshaler.Encode(val, enc)
		if err := v.db.Regions().WriteAt(v.valuesH, int64(i)*int64(v.width), enc); err != nil {
			return err
		}
		return nil
	}
	v.pendingBlockEdits[i] = val
	return nil
}

// Take marks index i as a hole and returns the prior value (false if i was
// already a hole). Taking a still-pending element removes it from the
// pending buffer entirely rather than creating a persisted hole.
func (v *Vector[T]) Take(i uint64) (T, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	total := v.committedLen + uint64(len(v.pending))
	if i >= total {
		return zero, false, anydb.NewError(anydb.OutOfRange, nil, i)
	}

	if i >= v.committedLen {
		local := i - v.committedLen
		val := v.pending[local]
		v.pending = append(v.pending[:local], v.pending[local+1:]...)
		return val, true, nil
	}

	if v.holes.has(i) {
		return zero, false, nil
	}

	val, err := v.readCommittedValue(i)
	if err != nil {
		return zero, false, err
	}

	v.captureDirty(i)
	v.holes.add(i)
	delete(v.pendingBlockEdits, i)
	if err := v.persistHoles(); err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// ReadAt returns the element at i, or false if i is a hole or >= length.
func (v *Vector[T]) ReadAt(i uint64) (T, bool, error) {
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
	val, err := v.readCommittedValue(i)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// readCommittedValue decodes the current value at a committed (< committedLen)
// index, honoring any buffered block edit not yet applied by Write().
func (v *Vector[T]) readCommittedValue(i uint64) (T, error) {
	var zero T
	if val, ok := v.pendingBlockEdits[i]; ok {
		return val, nil
	}
	if v.blockSize == 0 {
		b, err := v.db.Regions().Read(v.valuesH, int64(i)*int64(v.width), int64(v.width))
		if err != nil {
			return zero, err
		}
		return v.marshaler.Decode(b), nil
	}
	blockIdx := int(i / uint64(v.blockSize))
	localIdx := int(i % uint64(v.blockSize))
	count := v.blockElementCount(blockIdx)
	raw, err := readBlock(v.db.Regions(), v.valuesH, v.codec, v.blockOffsets[blockIdx], count, v.width)
	if err != nil {
		return zero, err
	}
	return v.marshaler.Decode(raw[localIdx*v.width : localIdx*v.width+v.width]), nil
}

func (v *Vector[T]) blockElementCount(blockIdx int) int {
	numBlocks := len(v.blockOffsets)
	if blockIdx < numBlocks-1 {
		return v.blockSize
	}
	return int(v.committedLen) - (numBlocks-1)*v.blockSize
}

// captureDirty records the pre-mutation state of index i the first time it
// is touched since the last stamped flush, for StampedFlushWithChanges/
// Rollback.
func (v *Vector[T]) captureDirty(i uint64) {
	if _, ok := v.dirty[i]; ok {
		return
	}
	if v.holes.has(i) {
		v.dirty[i] = changeEntry{wasHole: true}
		return
	}
	val, err := v.readCommittedValue(i)
	if err != nil {
		// Best-effort: an unreadable prior value should never happen for a
		// live index, but don't panic — fall back to recording a hole so
		// rollback at least restores a safe (absent) state.
		log.Warn("vec: failed to capture prior value for stamped change", "name", v.name, "index", i, "error", err)
		v.dirty[i] = changeEntry{wasHole: true}
		return
	}
	enc := make([]byte, v.width)
	v.marshaler.Encode(val, enc)
	v.dirty[i] = changeEntry{prior: enc}
}

// Write flushes pending pushes and any buffered block edits to the data
// mapping and updates the header's pushed-length; it does not sync to disk.
func (v *Vector[T]) Write() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writeLocked()
}

func (v *Vector[T]) writeLocked() error {
	newLen := v.committedLen + uint64(len(v.pending))

	if v.blockSize == 0 {
		if len(v.pending) > 0 {
			buf := make([]byte, len(v.pending)*v.width)
			for i, val := range v.pending {
				v.marshaler.Encode(val, buf[i*v.width:(i+1)*v.width])
			}
			if err := v.db.Regions().WriteAt(v.valuesH, int64(v.committedLen)*int64(v.width), buf); err != nil {
				return err
			}
		}
	} else if len(v.pending) > 0 || len(v.pendingBlockEdits) > 0 {
		if err := v.rebuildBlocks(newLen, v.pending); err != nil {
			return err
		}
	}

	v.committedLen = newLen
	v.pending = v.pending[:0]
	v.pendingBlockEdits = make(map[uint64]T)
	return v.persistHeader()
}

// rebuildBlocks decodes every currently committed block, applies buffered
// edits, appends extra pending elements, truncates to newLen elements, and
// re-encodes the whole values region from scratch. This keeps block framing
// correct without needing to splice variable-length compressed frames in
// place; spec.md §4.6 explicitly allows buffering block updates until
// write(), and a full rebuild is the simplest implementation of that.
func (v *Vector[T]) rebuildBlocks(newLen uint64, extra []T) error {
	raw := make([]byte, 0, int(v.committedLen)*v.width+len(extra)*v.width)
	for b := range v.blockOffsets {
		count := v.blockElementCount(b)
		blockRaw, err := readBlock(v.db.Regions(), v.valuesH, v.codec, v.blockOffsets[b], count, v.width)
		if err != nil {
			return err
		}
		raw = append(raw, blockRaw...)
	}
	for i, e := range v.pendingBlockEdits {
		enc := make([]byte, v.width)
		v.marshaler.Encode(e, enc)
		copy(raw[i*uint64(v.width):], enc)
	}
	for _, val := range extra {
		enc := make([]byte, v.width)
		v.marshaler.Encode(val, enc)
		raw = append(raw, enc...)
	}

	truncLen := int(newLen) * v.width
	if truncLen > len(raw) {
		truncLen = len(raw)
	}
	raw = raw[:truncLen]

	return v.writeBlocksFromRaw(raw)
}

func (v *Vector[T]) writeBlocksFromRaw(raw []byte) error {
	regions := v.db.Regions()
	elementCount := len(raw) / v.width

	if err := regions.Truncate(v.valuesH, 0); err != nil {
		return err
	}
	var offsets []int64
	for start := 0; start < elementCount; start += v.blockSize {
		end := start + v.blockSize
		if end > elementCount {
			end = elementCount
		}
		chunk := raw[start*v.width : end*v.width]
		offset, err := appendBlock(regions, v.valuesH, v.codec, chunk)
		if err != nil {
			return err
		}
		offsets = append(offsets, offset)
	}

	if err := regions.Write(v.indexH, encodeBlockIndex(offsets)); err != nil {
		return err
	}
	v.blockOffsets = offsets
	return nil
}

// Flush performs Write() then the database's Flush() (spec.md §5 ordering).
func (v *Vector[T]) Flush() error {
	v.mu.Lock()
	if err := v.writeLocked(); err != nil {
		v.mu.Unlock()
		return err
	}
	v.mu.Unlock()
	return v.db.Flush()
}

// Truncate drops elements with index >= n, discarding holes >= n. For
// block-compressed vectors it re-encodes every block from the surviving
// elements (see rebuildBlocks).
func (v *Vector[T]) Truncate(n uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := v.committedLen + uint64(len(v.pending))
	if n >= total {
		return nil
	}

	v.holes.discardFrom(n)
	if err := v.persistHoles(); err != nil {
		return err
	}

	if n >= v.committedLen {
		v.pending = v.pending[:n-v.committedLen]
		return nil
	}

	v.pending = v.pending[:0]
	v.pendingBlockEdits = make(map[uint64]T)
	if v.blockSize == 0 {
		if err := v.db.Regions().Truncate(v.valuesH, int64(n)*int64(v.width)); err != nil {
			return err
		}
	} else if err := v.rebuildBlocks(n, nil); err != nil {
		return err
	}
	v.committedLen = n
	return v.persistHeader()
}

func (v *Vector[T]) persistHeader() error {
	h := wireformat.VectorHeader{
		Version:      v.version,
		CodecID:      v.codec.ID(),
		ElementWidth: uint32(v.width),
		BlockSize:    uint32(v.blockSize),
		PushedLen:    v.committedLen,
		Stamp:        v.stamp,
	}
	return v.db.Regions().Write(v.headerH, wireformat.EncodeVectorHeader(h))
}

func (v *Vector[T]) persistHoles() error {
	return v.db.Regions().Write(v.holesH, encodeHoles(v.holes.sorted()))
}

func (v *Vector[T]) persistStamps() error {
	return v.db.Regions().Write(v.stampsH, encodeStampRing(v.stampRing, v.width))
}
