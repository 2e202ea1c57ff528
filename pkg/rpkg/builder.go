package rpkg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goopsie/glacierFileTools/pkg/codec"
	"github.com/goopsie/glacierFileTools/pkg/hash"
)

// NoMemorySize is written for resources whose in-memory size is unknown.
const NoMemorySize = 0xFFFFFFFF

// Resource is a payload to be added to a Builder.
type Resource struct {
	ID         hash.ResourceID
	Type       TypeTag
	Data       []byte
	References []Reference

	Compress bool
	Encrypt  bool
}

// Builder assembles a package in memory.
type Builder struct {
	header    Header
	patch     bool
	deletions []hash.ResourceID
	entries   []*Entry
	payloads  [][]byte
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithVersion selects the header layout. The default is Version1.
func WithVersion(version int) BuilderOption {
	return func(b *Builder) {
		if version == Version2 {
			b.header.Magic = MagicV2
		} else {
			b.header.Magic = MagicV1
		}
	}
}

// WithPatchLevel marks the package as a patch. For Version2 packages the
// level is also written to the header.
func WithPatchLevel(level uint8) BuilderOption {
	return func(b *Builder) {
		b.patch = true
		b.header.PatchLevel = level
	}
}

// WithChunk sets the Version2 chunk fields.
func WithChunk(chunk, chunkType uint8, language [2]byte) BuilderOption {
	return func(b *Builder) {
		b.header.Chunk = chunk
		b.header.ChunkType = chunkType
		b.header.LanguageTag = language
	}
}

// NewBuilder creates an empty package builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		header: Header{Magic: MagicV1},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.header.Magic != MagicV2 {
		b.header.PatchLevel = 0
	}
	return b
}

// Add compresses and encrypts res as requested and appends it.
// Payloads that LZ4 cannot shrink are stored uncompressed. An encrypted
// payload must be a whole number of cipher blocks after compression.
func (b *Builder) Add(res Resource) error {
	e := Entry{
		ID:                res.ID,
		Type:              res.Type,
		DecompressedSize:  uint32(len(res.Data)),
		References:        res.References,
		SizeInMemory:      NoMemorySize,
		SizeInVideoMemory: NoMemorySize,
	}
	if len(res.References) > 0 {
		e.Flags |= FlagReferences
	}

	payload := res.Data
	if res.Compress {
		compressed, err := codec.Compress(res.Data)
		switch {
		case err == nil:
			payload = compressed
			e.CompressedSize = uint32(len(compressed))
			e.Flags |= FlagCompressed
		case errors.Is(err, codec.ErrIncompressible):
		default:
			return fmt.Errorf("compress %s: %w", res.ID, err)
		}
	}

	if res.Encrypt {
		encrypted, err := codec.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", res.ID, err)
		}
		payload = encrypted
		e.Flags |= FlagEncrypted
	}

	b.AddRaw(e, payload)
	return nil
}

// AddRaw appends an entry whose payload is already in stored form. Only the
// data offset of e is recomputed.
func (b *Builder) AddRaw(e Entry, payload []byte) {
	e.Flags &^= FlagPatch | FlagDeletion
	if b.patch {
		e.Flags |= FlagPatch
	}
	b.entries = append(b.entries, &e)
	b.payloads = append(b.payloads, payload)
}

// Delete records a tombstone for id. Only patch packages carry tombstones.
func (b *Builder) Delete(id hash.ResourceID) error {
	if !b.patch {
		return fmt.Errorf("delete %s: package is not a patch", id)
	}
	b.deletions = append(b.deletions, id)
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.entries) }

// WriteTo writes the package. Payloads follow the tables in the order they
// were added.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	h := b.header
	h.EntryCount = uint32(len(b.entries))
	h.OffsetTableSize = h.EntryCount * OffsetEntrySize

	offset, metadataSize := tablesSize(h, b.patch, len(b.deletions), b.entries)
	h.MetadataTableSize = metadataSize

	pos := uint64(offset)
	for i, e := range b.entries {
		e.DataOffset = pos
		pos += uint64(len(b.payloads[i]))
	}

	var written int64
	n, err := w.Write(appendTables(make([]byte, 0, offset), h, b.patch, b.deletions, b.entries))
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("write tables: %w", err)
	}

	for i, payload := range b.payloads {
		n, err := w.Write(payload)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write payload %s: %w", b.entries[i].ID, err)
		}
	}
	return written, nil
}

// Bytes returns the encoded package.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	b.WriteTo(&buf)
	return buf.Bytes()
}

// WriteFile writes the package to path.
func (b *Builder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	if _, err := b.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
