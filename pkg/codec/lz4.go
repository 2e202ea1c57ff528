// Package codec provides the stateless byte transforms used by Glacier 2
// resource packages: LZ4 block compression, the fixed-key XTEA cipher,
// CRC32 checksums and the symmetric byte cipher.
//
// Every function takes an owned buffer and returns a fresh one; none of
// them keep state between calls, so they are safe to call from any number
// of goroutines.
package codec

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

var (
	// ErrSizeMismatch is returned when decompressed output does not have
	// the declared length.
	ErrSizeMismatch = errors.New("decompressed size mismatch")

	// ErrIncompressible is returned by Compress when LZ4 cannot shrink the input.
	ErrIncompressible = errors.New("data is incompressible")
)

// Decompress decodes a raw LZ4 block into exactly size bytes.
//
// Payloads inside a package carry no frame header; the decompressed length
// comes from the entry's metadata, so any other output length is an error.
func Decompress(src []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d", size)
	}
	if size == 0 {
		if len(src) != 0 {
			return nil, fmt.Errorf("%w: got data for empty output", ErrSizeMismatch)
		}
		return []byte{}, nil
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, n, size)
	}
	return dst, nil
}

// Compress encodes src as a raw LZ4 block.
// Returns ErrIncompressible when the block would not be smaller than src.
func Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrIncompressible
	}

	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(src) {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

// CompressBlock encodes src as a raw LZ4 block. Input LZ4 cannot shrink is
// stored as a single literal run, so the result always decodes with
// Decompress.
func CompressBlock(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	if out, err := Compress(src); err == nil {
		return out
	}
	return literalBlock(src)
}

// literalBlock builds a block holding one literal-only sequence.
func literalBlock(src []byte) []byte {
	n := len(src)
	out := make([]byte, 0, n+n/255+2)
	if n < 15 {
		out = append(out, byte(n)<<4)
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for ; rest >= 255; rest -= 255 {
			out = append(out, 255)
		}
		out = append(out, byte(rest))
	}
	return append(out, src...)
}
