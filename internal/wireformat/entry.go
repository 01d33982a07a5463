// Package wireformat is the on-disk binary framing for the metadata file:
// the database header (entry 0) and the fixed 4 KiB per-region metadata
// entries (entries 1..N), each checksummed with CRC32C. It is built the
// way the teacher's encoding.HandleEncoder builds its fixed Handle framing —
// a bytes.Buffer plus encoding/binary.LittleEndian, one encode/decode
// function pair per record type — generalized here from a single record
// shape to the entry/header family this store needs.
package wireformat

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/sharedcode/anydb"
)

// PageSize is the smallest torn-write unit assumed for the metadata file;
// every entry (including entry 0, the database header) occupies exactly one page.
const PageSize = 4096

const (
	dbHeaderMagic   uint32 = 0x41445631 // "ADV1"
	entryMagic      uint32 = 0x41444531 // "ADE1"
	maxNameBytes           = 200
	crc32cSize             = 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// DBHeader is the reserved entry-0 page of the metadata file.
type DBHeader struct {
	Magic    uint32
	Version  uint16
	PageSize uint32
}

// EncodeDBHeader serializes h into a zero-padded PageSize-byte page.
func EncodeDBHeader(h DBHeader) []byte {
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(page[0:4], h.Magic)
	binary.LittleEndian.PutUint16(page[4:6], h.Version)
	binary.LittleEndian.PutUint32(page[6:10], h.PageSize)
	return page
}

// DecodeDBHeader reads back a page written by EncodeDBHeader.
func DecodeDBHeader(page []byte) (DBHeader, error) {
	if len(page) != PageSize {
		return DBHeader{}, anydb.NewError(anydb.CorruptMetadata, nil, "short database header page")
	}
	return DBHeader{
		Magic:    binary.LittleEndian.Uint32(page[0:4]),
		Version:  binary.LittleEndian.Uint16(page[4:6]),
		PageSize: binary.LittleEndian.Uint32(page[6:10]),
	}, nil
}

// DefaultDBHeader returns the header this package writes for a freshly created database.
func DefaultDBHeader() DBHeader {
	return DBHeader{Magic: dbHeaderMagic, Version: 1, PageSize: PageSize}
}

// Entry describes one region's metadata slot.
type Entry struct {
	ID       uint64
	Name     string
	Offset   int64
	Capacity int64
	Length   int64
}

// IsZero reports whether e is the zero value, i.e. represents a deleted /
// free slot (spec §4.3: "A zeroed entry denotes 'deleted'").
func (e Entry) IsZero() bool {
	return e == Entry{}
}

// EncodeEntry serializes e into a zero-padded PageSize-byte page, with a
// CRC32C checksum over the payload in the last 4 bytes of the page.
func EncodeEntry(e Entry) ([]byte, error) {
	if len(e.Name) > maxNameBytes {
		return nil, anydb.NewError(anydb.Invariant, nil, "region name exceeds maximum length")
	}
	page := make([]byte, PageSize)
	w := bytes.NewBuffer(page[:0])
	w.Write(u32(entryMagic))
	w.Write(u64(e.ID))
	w.Write(i64(e.Offset))
	w.Write(i64(e.Capacity))
	w.Write(i64(e.Length))
	w.Write(u16(uint16(len(e.Name))))
	w.WriteString(e.Name)

	payload := page[:w.Len()]
	sum := crc32.Checksum(payload, castagnoli)
	binary.LittleEndian.PutUint32(page[PageSize-crc32cSize:], sum)
	return page, nil
}

// DecodeEntry validates the checksum and deserializes a page written by
// EncodeEntry. A page of all zero bytes decodes to the zero Entry (a
// deleted/free slot) without a checksum check, per spec §4.3.
func DecodeEntry(page []byte) (Entry, error) {
	if len(page) != PageSize {
		return Entry{}, anydb.NewError(anydb.CorruptMetadata, nil, "short metadata page")
	}
	if isZero(page) {
		return Entry{}, nil
	}

	magic := binary.LittleEndian.Uint32(page[0:4])
	id := binary.LittleEndian.Uint64(page[4:12])
	offset := int64(binary.LittleEndian.Uint64(page[12:20]))
	capacity := int64(binary.LittleEndian.Uint64(page[20:28]))
	length := int64(binary.LittleEndian.Uint64(page[28:36]))
	nameLen := binary.LittleEndian.Uint16(page[36:38])
	end := 38 + int(nameLen)
	if magic != entryMagic || end > PageSize-crc32cSize {
		return Entry{}, anydb.NewError(anydb.CorruptMetadata, nil, "malformed metadata entry")
	}
	name := string(page[38:end])

	payload := page[:end]
	wantSum := binary.LittleEndian.Uint32(page[PageSize-crc32cSize:])
	gotSum := crc32.Checksum(payload, castagnoli)
	if wantSum != gotSum {
		return Entry{}, anydb.NewError(anydb.CorruptMetadata, nil, "checksum mismatch")
	}

	return Entry{ID: id, Name: name, Offset: offset, Capacity: capacity, Length: length}, nil
}

// DecodeEntryBestEffort decodes offset/capacity/length fields without
// validating the checksum, for best-effort hole recovery when a metadata
// entry is known to be corrupt (spec §4.3: "recovery is best-effort, not
// journaled"). ok is false when the page's magic/name-length fields are
// nonsensical enough that even a best-effort read isn't possible.
func DecodeEntryBestEffort(page []byte) (e Entry, ok bool) {
	if len(page) != PageSize || isZero(page) {
		return Entry{}, false
	}
	magic := binary.LittleEndian.Uint32(page[0:4])
	if magic != entryMagic {
		return Entry{}, false
	}
	nameLen := binary.LittleEndian.Uint16(page[36:38])
	end := 38 + int(nameLen)
	if end > PageSize-crc32cSize {
		return Entry{}, false
	}
	return Entry{
		ID:       binary.LittleEndian.Uint64(page[4:12]),
		Offset:   int64(binary.LittleEndian.Uint64(page[12:20])),
		Capacity: int64(binary.LittleEndian.Uint64(page[20:28])),
		Length:   int64(binary.LittleEndian.Uint64(page[28:36])),
		Name:     string(page[38:end]),
	}, true
}

// ZeroPage returns a fresh all-zero page, used to write a "deleted" entry.
func ZeroPage() []byte {
	return make([]byte, PageSize)
}

func isZero(page []byte) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}
	return true
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}
func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
func i64(v int64) []byte { return u64(uint64(v)) }
