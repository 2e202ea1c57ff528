// Package resource turns stored entry payloads into decoded resources.
//
// Decryption always precedes decompression. Every function here is a pure
// transform of its inputs, so entries can be materialized in parallel.
package resource

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goopsie/glacierFileTools/pkg/codec"
	"github.com/goopsie/glacierFileTools/pkg/hash"
	"github.com/goopsie/glacierFileTools/pkg/rpkg"
)

var (
	// ErrInvalidCipherInput is returned when an encrypted payload is not a
	// whole number of cipher blocks.
	ErrInvalidCipherInput = errors.New("invalid cipher input")

	// ErrDecompressionMismatch is returned when a payload does not
	// decompress to exactly the declared size.
	ErrDecompressionMismatch = errors.New("decompression mismatch")
)

// RawReader reads an entry's stored payload. *rpkg.Package implements it.
type RawReader interface {
	ReadRaw(e *rpkg.Entry) ([]byte, error)
}

// Decoded is a materialized resource. The caller owns Data.
type Decoded struct {
	ID         hash.ResourceID
	Type       rpkg.TypeTag
	Data       []byte
	References []rpkg.Reference
}

// Materialize reads e from src and decodes it.
func Materialize(src RawReader, e *rpkg.Entry) (*Decoded, error) {
	raw, err := src.ReadRaw(e)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.ID, err)
	}
	return Decode(raw, e)
}

// Decode applies the entry's decryption and decompression steps to raw.
// raw is not modified.
func Decode(raw []byte, e *rpkg.Entry) (*Decoded, error) {
	data := raw

	if e.Flags.Has(rpkg.FlagEncrypted) {
		plain, err := codec.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCipherInput, e.ID, err)
		}
		data = plain
	}

	if e.Flags.Has(rpkg.FlagCompressed) {
		out, err := codec.Decompress(data, int(e.DecompressedSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecompressionMismatch, e.ID, err)
		}
		data = out
	} else if len(data) != int(e.DecompressedSize) {
		return nil, fmt.Errorf("%w: %s: stored payload is %d bytes, declared %d",
			ErrDecompressionMismatch, e.ID, len(data), e.DecompressedSize)
	}

	if !e.Flags.Has(rpkg.FlagEncrypted) && !e.Flags.Has(rpkg.FlagCompressed) {
		data = bytes.Clone(raw)
	}

	d := &Decoded{
		ID:   e.ID,
		Type: e.Type,
		Data: data,
	}
	if e.Flags.Has(rpkg.FlagReferences) {
		d.References = append([]rpkg.Reference(nil), e.References...)
	}
	return d, nil
}
