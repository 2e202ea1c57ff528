// Package rpkg reads and writes Glacier 2 resource packages.
//
// A package is a header, an optional tombstone list (patch packages only),
// an offset table and a metadata table, followed by resource payloads.
// Opening a package parses every table eagerly; payload bytes are read on
// request with ReadAt, so a Package over an os.File can serve concurrent
// reads. This package never decompresses or decrypts payloads.
package rpkg

import (
	"encoding/binary"
	"fmt"
)

// Package format versions.
const (
	Version1 = 1
	Version2 = 2
)

// Magic values for each format version.
var (
	MagicV1 = [4]byte{'G', 'K', 'P', 'R'}
	MagicV2 = [4]byte{'2', 'K', 'P', 'R'}
)

// Header sizes in bytes.
const (
	HeaderSizeV1 = 16
	HeaderSizeV2 = 25
)

// OffsetEntrySize is the size of one offset table row.
const OffsetEntrySize = 20

// Header is the fixed-layout package header.
type Header struct {
	Magic [4]byte

	// Version 2 only.
	Unknown     uint32
	Chunk       uint8
	ChunkType   uint8
	PatchLevel  uint8
	LanguageTag [2]byte

	EntryCount        uint32
	OffsetTableSize   uint32
	MetadataTableSize uint32
}

// Version returns the format version implied by the magic, or 0.
func (h Header) Version() int {
	switch h.Magic {
	case MagicV1:
		return Version1
	case MagicV2:
		return Version2
	default:
		return 0
	}
}

// Size returns the binary size of the header.
func (h Header) Size() int {
	if h.Version() == Version2 {
		return HeaderSizeV2
	}
	return HeaderSizeV1
}

// Validate checks the magic and the table size invariant.
func (h *Header) Validate() error {
	if h.Version() == 0 {
		return fmt.Errorf("%w: unknown magic %q", ErrMalformedHeader, h.Magic[:])
	}
	if uint64(h.OffsetTableSize) != uint64(h.EntryCount)*OffsetEntrySize {
		return fmt.Errorf("%w: offset table size %d does not match %d entries",
			ErrMalformedHeader, h.OffsetTableSize, h.EntryCount)
	}
	return nil
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, h.Size())
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header into buf, which must hold Size() bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	off := 4
	if h.Version() == Version2 {
		binary.LittleEndian.PutUint32(buf[4:8], h.Unknown)
		buf[8] = h.Chunk
		buf[9] = h.ChunkType
		buf[10] = h.PatchLevel
		copy(buf[11:13], h.LanguageTag[:])
		off = 13
	}
	binary.LittleEndian.PutUint32(buf[off:], h.EntryCount)
	binary.LittleEndian.PutUint32(buf[off+4:], h.OffsetTableSize)
	binary.LittleEndian.PutUint32(buf[off+8:], h.MetadataTableSize)
}

// UnmarshalBinary decodes and validates a header. data may be longer than
// the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: header needs 4 bytes, got %d", ErrTruncatedTable, len(data))
	}
	copy(h.Magic[:], data[0:4])
	if h.Version() == 0 {
		return fmt.Errorf("%w: unknown magic %q", ErrMalformedHeader, h.Magic[:])
	}
	if len(data) < h.Size() {
		return fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncatedTable, h.Size(), len(data))
	}

	off := 4
	if h.Version() == Version2 {
		h.Unknown = binary.LittleEndian.Uint32(data[4:8])
		h.Chunk = data[8]
		h.ChunkType = data[9]
		h.PatchLevel = data[10]
		copy(h.LanguageTag[:], data[11:13])
		off = 13
	}
	h.EntryCount = binary.LittleEndian.Uint32(data[off:])
	h.OffsetTableSize = binary.LittleEndian.Uint32(data[off+4:])
	h.MetadataTableSize = binary.LittleEndian.Uint32(data[off+8:])

	return h.Validate()
}
