// Package codec is the element codec boundary described in spec §4.5: the
// sole integration point between the vector core and how elements are
// actually laid out on disk. A Codec works at the byte level — the vector
// core is responsible for turning typed elements into fixed-width byte
// records (see vec.ElementMarshaler) before handing them to a Codec.
package codec

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/sharedcode/anydb"
)

// Well-known codec identities, persisted in the vector header's codec_id field.
const (
	IDRaw      uint16 = 0
	IDZeroCopy uint16 = 1
	IDLZ4      uint16 = 2
	IDZstd     uint16 = 3
	IDPco      uint16 = 4
)

// Codec is the capability set a vector is parameterized by, resolved at
// open time from the persisted codec_id and element width.
type Codec interface {
	// ID is the codec_id recorded in the vector header.
	ID() uint16
	// BlockSize is the number of elements batched per compressed block
	// (a power of two), or 0 if this codec is not block-compressed —
	// elements are then stored in place at fixed offsets and read_at is
	// direct offset arithmetic (spec §4.5, "Raw fixed").
	BlockSize() int
	// EncodeBlock compresses raw (rawLen/elementWidth concatenated fixed-width
	// elements) into a block payload. For non-block-compressed codecs this
	// is the identity transform.
	EncodeBlock(raw []byte) ([]byte, error)
	// DecodeBlock decompresses payload back into rawLen bytes of
	// concatenated fixed-width elements.
	DecodeBlock(payload []byte, rawLen int) ([]byte, error)
}

// Raw is the uncompressed, fixed-width element codec: element bytes are
// written/read in place, and read_at is direct offset arithmetic.
type Raw struct{}

func (Raw) ID() uint16                                       { return IDRaw }
func (Raw) BlockSize() int                                   { return 0 }
func (Raw) EncodeBlock(raw []byte) ([]byte, error)           { return raw, nil }
func (Raw) DecodeBlock(payload []byte, rawLen int) ([]byte, error) {
	return payload, nil
}

// ZeroCopy is currently a plain alias of Raw: same identity encode/decode,
// same direct-offset read_at path. It exists as its own codec_id so a
// future zero-copy (unsafe-cast) numeric read path can be introduced
// without a header/version migration for vectors already tagged with it.
type ZeroCopy struct{}

func (ZeroCopy) ID() uint16                                       { return IDZeroCopy }
func (ZeroCopy) BlockSize() int                                   { return 0 }
func (ZeroCopy) EncodeBlock(raw []byte) ([]byte, error)           { return raw, nil }
func (ZeroCopy) DecodeBlock(payload []byte, rawLen int) ([]byte, error) {
	return payload, nil
}

// LZ4 is a block-compressed codec backed by github.com/pierrec/lz4/v4.
type LZ4 struct {
	Block int
}

func (c LZ4) ID() uint16     { return IDLZ4 }
func (c LZ4) BlockSize() int { return c.Block }

func (c LZ4) EncodeBlock(raw []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(raw)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(raw, buf)
	if err != nil {
		return nil, anydb.NewError(anydb.CorruptData, err, nil)
	}
	if n == 0 {
		// Incompressible input: lz4 reports n==0 rather than an expanded block.
		// Store raw with a one-byte "stored" marker so DecodeBlock can tell
		// the two cases apart.
		out := make([]byte, 1+len(raw))
		out[0] = 1
		copy(out[1:], raw)
		return out, nil
	}
	out := make([]byte, 1+n)
	out[0] = 0
	copy(out[1:], buf[:n])
	return out, nil
}

func (c LZ4) DecodeBlock(payload []byte, rawLen int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, anydb.NewError(anydb.CorruptData, nil, "empty lz4 block")
	}
	stored, body := payload[0], payload[1:]
	if stored == 1 {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	out := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, anydb.NewError(anydb.CorruptData, err, nil)
	}
	return out[:n], nil
}

// Zstd is a block-compressed codec backed by github.com/klauspost/compress/zstd.
type Zstd struct {
	Block int
}

func (c Zstd) ID() uint16     { return IDZstd }
func (c Zstd) BlockSize() int { return c.Block }

func (c Zstd) EncodeBlock(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, anydb.NewError(anydb.Io, err, nil)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func (c Zstd) DecodeBlock(payload []byte, rawLen int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, anydb.NewError(anydb.Io, err, nil)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(payload, make([]byte, 0, rawLen))
	if err != nil {
		return nil, anydb.NewError(anydb.CorruptData, err, nil)
	}
	return out, nil
}

// Pco is a from-scratch numeric block codec in the spirit of the `pco`
// (partial-constant) family: no Go port of pco exists in the ecosystem, so
// this implements the common alternative technique for monotonic-ish
// integer time series — per-block delta against the previous element,
// zig-zag encoding, then LEB128 varints. It only understands 8-byte
// little-endian elements (uint64/int64/float64-as-bits); for any other
// element width it falls back to storing the block uncompressed, which
// keeps EncodeBlock/DecodeBlock total and symmetric for every element type.
type Pco struct {
	Block        int
	ElementWidth int
}

func (c Pco) ID() uint16     { return IDPco }
func (c Pco) BlockSize() int { return c.Block }

func (c Pco) EncodeBlock(raw []byte) ([]byte, error) {
	if c.ElementWidth != 8 || len(raw)%8 != 0 {
		out := make([]byte, 1+len(raw))
		out[0] = 1 // uncompressed marker
		copy(out[1:], raw)
		return out, nil
	}
	n := len(raw) / 8
	out := make([]byte, 1, 1+n*2)
	out[0] = 0 // delta-varint marker
	var prev uint64
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
		delta := zigzagEncode(int64(v - prev))
		out = appendVarint(out, delta)
		prev = v
	}
	return out, nil
}

func (c Pco) DecodeBlock(payload []byte, rawLen int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, anydb.NewError(anydb.CorruptData, nil, "empty pco block")
	}
	marker, body := payload[0], payload[1:]
	if marker == 1 {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	out := make([]byte, 0, rawLen)
	var prev uint64
	for len(body) > 0 {
		zz, n, err := readVarint(body)
		if err != nil {
			return nil, anydb.NewError(anydb.CorruptData, err, nil)
		}
		body = body[n:]
		delta := zigzagDecode(zz)
		v := prev + uint64(delta)
		prev = v
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		out = append(out, b[:]...)
	}
	return out, nil
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readVarint(b []byte) (v uint64, n int, err error) {
	var shift uint
	for n < len(b) {
		c := b[n]
		v |= uint64(c&0x7f) << shift
		n++
		if c&0x80 == 0 {
			return v, n, nil
		}
		shift += 7
	}
	return 0, 0, anydb.NewError(anydb.CorruptData, nil, "truncated varint")
}

// ForID resolves a Codec instance from its persisted identity plus
// whatever per-vector parameters (block size, element width) the header
// supplies, per spec §4.5/§9 ("codec polymorphism ... resolved at open
// time from codec_id and element metadata").
func ForID(id uint16, blockSize, elementWidth int) (Codec, error) {
	switch id {
	case IDRaw:
		return Raw{}, nil
	case IDZeroCopy:
		return ZeroCopy{}, nil
	case IDLZ4:
		return LZ4{Block: blockSize}, nil
	case IDZstd:
		return Zstd{Block: blockSize}, nil
	case IDPco:
		return Pco{Block: blockSize, ElementWidth: elementWidth}, nil
	default:
		return nil, anydb.NewError(anydb.CorruptData, nil, id)
	}
}
