package vec

import (
	"encoding/binary"
	"math"
)

// ElementMarshaler is the fixed-width serialization capability a Vector is
// parameterized by (spec.md §1: "the spec only requires a serialization
// capability for element types" — no derive-macro machinery is implemented
// or required). Width must be constant for the lifetime of a vector; it is
// persisted in the vector header and never re-derived.
type ElementMarshaler[T any] interface {
	Width() int
	Encode(v T, out []byte)
	Decode(b []byte) T
}

// Uint64Marshaler is the built-in ElementMarshaler for uint64 elements.
type Uint64Marshaler struct{}

func (Uint64Marshaler) Width() int                   { return 8 }
func (Uint64Marshaler) Encode(v uint64, out []byte)  { binary.LittleEndian.PutUint64(out, v) }
func (Uint64Marshaler) Decode(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }

// Int64Marshaler is the built-in ElementMarshaler for int64 elements.
type Int64Marshaler struct{}

func (Int64Marshaler) Width() int                  { return 8 }
func (Int64Marshaler) Encode(v int64, out []byte)  { binary.LittleEndian.PutUint64(out, uint64(v)) }
func (Int64Marshaler) Decode(b []byte) int64       { return int64(binary.LittleEndian.Uint64(b)) }

// Float64Marshaler is the built-in ElementMarshaler for float64 elements.
type Float64Marshaler struct{}

func (Float64Marshaler) Width() int { return 8 }
func (Float64Marshaler) Encode(v float64, out []byte) {
	binary.LittleEndian.PutUint64(out, math.Float64bits(v))
}
func (Float64Marshaler) Decode(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
