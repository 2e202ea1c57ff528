package codec

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrChecksum is returned when a CRC32 does not match.
var ErrChecksum = errors.New("checksum mismatch")

// Checksum returns the CRC32 (IEEE) of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyChecksum checks data against an expected CRC32.
func VerifyChecksum(data []byte, want uint32) error {
	if got := Checksum(data); got != want {
		return fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, want)
	}
	return nil
}

// SymmetricDecode reverses the engine's per-byte bit shuffle and XOR used by
// some string resources.
func SymmetricDecode(src []byte) []byte {
	out := make([]byte, len(src))
	for i, v := range src {
		b := (v & 1) |
			(v&2)<<3 |
			(v&4)>>1 |
			(v&8)<<2 |
			(v&16)>>2 |
			(v&32)<<1 |
			(v&64)>>3 |
			(v & 128)
		out[i] = b ^ 226
	}
	return out
}

// SymmetricEncode is the inverse of SymmetricDecode.
func SymmetricEncode(src []byte) []byte {
	out := make([]byte, len(src))
	for i, v := range src {
		v ^= 226
		out[i] = (v & 0x81) |
			(v&2)<<1 |
			(v&4)<<2 |
			(v&8)<<3 |
			(v&0x10)>>3 |
			(v&0x20)>>2 |
			(v&0x40)>>1
	}
	return out
}

// UpdateChecksum continues a running CRC32 (IEEE) with p.
func UpdateChecksum(crc uint32, p []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, p)
}
