package wireformat

import (
	"encoding/binary"

	"github.com/sharedcode/anydb"
)

// VectorHeaderSize is the fixed encoded size of VectorHeader.
const VectorHeaderSize = 4 + 2 + 2 + 4 + 4 + 8 + 8 + 2 + 2

const vectorHeaderMagic uint32 = 0x41565631 // "AVV1"

// VectorHeader is the per-vector header persisted in a vector's header
// region, exactly as laid out in spec.md §6.
type VectorHeader struct {
	Version      uint16
	CodecID      uint16
	ElementWidth uint32
	BlockSize    uint32
	PushedLen    uint64
	Stamp        uint64
	HolesRef     uint16
	StampsRef    uint16
}

// EncodeVectorHeader serializes h to VectorHeaderSize bytes.
func EncodeVectorHeader(h VectorHeader) []byte {
	b := make([]byte, VectorHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], vectorHeaderMagic)
	binary.LittleEndian.PutUint16(b[4:6], h.Version)
	binary.LittleEndian.PutUint16(b[6:8], h.CodecID)
	binary.LittleEndian.PutUint32(b[8:12], h.ElementWidth)
	binary.LittleEndian.PutUint32(b[12:16], h.BlockSize)
	binary.LittleEndian.PutUint64(b[16:24], h.PushedLen)
	binary.LittleEndian.PutUint64(b[24:32], h.Stamp)
	binary.LittleEndian.PutUint16(b[32:34], h.HolesRef)
	binary.LittleEndian.PutUint16(b[34:36], h.StampsRef)
	return b
}

// DecodeVectorHeader deserializes a VectorHeader written by EncodeVectorHeader.
func DecodeVectorHeader(b []byte) (VectorHeader, error) {
	if len(b) != VectorHeaderSize {
		return VectorHeader{}, anydb.NewError(anydb.CorruptData, nil, "short vector header")
	}
	magic := binary.LittleEndian.Uint32(b[0:4])
	if magic != vectorHeaderMagic {
		return VectorHeader{}, anydb.NewError(anydb.CorruptData, nil, "bad vector header magic")
	}
	return VectorHeader{
		Version:      binary.LittleEndian.Uint16(b[4:6]),
		CodecID:      binary.LittleEndian.Uint16(b[6:8]),
		ElementWidth: binary.LittleEndian.Uint32(b[8:12]),
		BlockSize:    binary.LittleEndian.Uint32(b[12:16]),
		PushedLen:    binary.LittleEndian.Uint64(b[16:24]),
		Stamp:        binary.LittleEndian.Uint64(b[24:32]),
		HolesRef:     binary.LittleEndian.Uint16(b[32:34]),
		StampsRef:    binary.LittleEndian.Uint16(b[34:36]),
	}, nil
}
