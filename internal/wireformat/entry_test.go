package wireformat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharedcode/anydb"
)

func TestEntry_roundTrip(t *testing.T) {
	e := Entry{ID: 7, Name: "prices.values", Offset: 4096, Capacity: 8192, Length: 100}
	page, err := EncodeEntry(e)
	require.NoError(t, err)
	require.Len(t, page, PageSize)

	got, err := DecodeEntry(page)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestEntry_zeroPageDecodesToZeroValue(t *testing.T) {
	got, err := DecodeEntry(ZeroPage())
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestEntry_checksumMismatchIsCorruptMetadata(t *testing.T) {
	page, err := EncodeEntry(Entry{ID: 1, Name: "x", Offset: 0, Capacity: 10, Length: 5})
	require.NoError(t, err)
	page[10] ^= 0xFF // flip a payload byte without touching the checksum

	_, err = DecodeEntry(page)
	require.Error(t, err)
	var aerr anydb.Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, anydb.CorruptMetadata, aerr.Code)
}

func TestDBHeader_roundTrip(t *testing.T) {
	h := DefaultDBHeader()
	page := EncodeDBHeader(h)
	require.Len(t, page, PageSize)

	got, err := DecodeDBHeader(page)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestVectorHeader_roundTrip(t *testing.T) {
	h := VectorHeader{
		Version:      3,
		CodecID:      4,
		ElementWidth: 8,
		BlockSize:    1024,
		PushedLen:    9000,
		Stamp:        42,
		HolesRef:     1,
		StampsRef:    2,
	}
	b := EncodeVectorHeader(h)
	require.Len(t, b, VectorHeaderSize)

	got, err := DecodeVectorHeader(b)
	require.NoError(t, err)
	require.Equal(t, h, got)
}
