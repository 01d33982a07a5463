package vec

import (
	"encoding/binary"

	"github.com/sharedcode/anydb"
	"github.com/sharedcode/anydb/region"
	"github.com/sharedcode/anydb/vec/codec"
)

// Block-compressed vectors store elements as a sequence of {length: u32,
// payload} frames appended to the values region (spec.md §4.5), with a
// sidecar index of block-start offsets kept in a dedicated "<name>.index"
// region so read_at(i) can locate block i/block_size without scanning.

func encodeBlockIndex(offsets []int64) []byte {
	out := make([]byte, len(offsets)*8)
	for i, off := range offsets {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(off))
	}
	return out
}

func decodeBlockIndex(b []byte) []int64 {
	n := len(b) / 8
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

// appendBlock compresses rawElems (count*elementWidth concatenated fixed
// width elements) and appends it as a framed block at the end of the values
// region, returning the frame's start offset.
func appendBlock(regions *region.Manager, values *region.Handle, c codec.Codec, rawElems []byte) (int64, error) {
	payload, err := c.EncodeBlock(rawElems)
	if err != nil {
		return 0, err
	}
	offset := values.Length()
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)
	if err := regions.WriteAt(values, offset, frame); err != nil {
		return 0, err
	}
	return offset, nil
}

// readBlock decodes the framed block starting at offset, given the number
// of raw elements it is expected to hold (the last block of a vector may
// hold fewer than block_size elements).
func readBlock(regions *region.Manager, values *region.Handle, c codec.Codec, offset int64, elementCount, elementWidth int) ([]byte, error) {
	lenPrefix, err := regions.Read(values, offset, 4)
	if err != nil {
		return nil, err
	}
	payloadLen := int64(binary.LittleEndian.Uint32(lenPrefix))
	payload, err := regions.Read(values, offset+4, payloadLen)
	if err != nil {
		return nil, err
	}
	raw, err := c.DecodeBlock(payload, elementCount*elementWidth)
	if err != nil {
		return nil, anydb.NewError(anydb.CorruptData, err, nil)
	}
	return raw, nil
}
