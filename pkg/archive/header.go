// Package archive provides the zstd-compressed snapshot container used to
// ship precomputed lookup tables (such as hash lists) alongside packages.
//
// A snapshot is a fixed 32-byte header followed by a single zstd stream.
// The header records both sizes and a CRC32 of the decompressed content,
// which is verified on read.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Magic bytes identifying a snapshot header.
var Magic = [4]byte{0x47, 0x53, 0x4e, 0x50} // "GSNP"

// Version is the only snapshot layout version understood by this package.
const Version = 1

// HeaderSize is the fixed binary size of a snapshot header.
const HeaderSize = 32 // 4 + 4 + 8 + 8 + 4 + 4 bytes

// ErrInvalidHeader is returned for headers that fail validation.
var ErrInvalidHeader = errors.New("invalid snapshot header")

// Header represents the header of a snapshot file.
type Header struct {
	Magic            [4]byte
	Version          uint32
	Length           uint64 // Uncompressed size
	CompressedLength uint64 // Compressed size
	Checksum         uint32 // CRC32 of the uncompressed content
	Reserved         uint32
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %x, expected %x", ErrInvalidHeader, h.Magic, Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: version %d", ErrInvalidHeader, h.Version)
	}
	if h.Length > math.MaxInt64-1 || h.CompressedLength > math.MaxInt64 {
		return fmt.Errorf("%w: size out of range", ErrInvalidHeader)
	}
	if h.Length != 0 && h.CompressedLength == 0 {
		return fmt.Errorf("%w: compressed size is zero", ErrInvalidHeader)
	}
	return nil
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Length)
	binary.LittleEndian.PutUint64(buf[16:24], h.CompressedLength)
	binary.LittleEndian.PutUint32(buf[24:28], h.Checksum)
	binary.LittleEndian.PutUint32(buf[28:32], h.Reserved)
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from the given buffer without validating it.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	h.Length = binary.LittleEndian.Uint64(data[8:16])
	h.CompressedLength = binary.LittleEndian.Uint64(data[16:24])
	h.Checksum = binary.LittleEndian.Uint32(data[24:28])
	h.Reserved = binary.LittleEndian.Uint32(data[28:32])
}
