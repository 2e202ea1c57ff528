package rpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goopsie/glacierFileTools/pkg/hash"
)

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	patch bool
	name  string
}

// AsPatch treats the source as a patch package: a tombstone list follows
// the header. Version 2 packages with a non-zero patch level are treated as
// patches without this option.
func AsPatch() OpenOption {
	return func(c *openConfig) {
		c.patch = true
	}
}

// WithName sets the name reported by Package.Name.
func WithName(name string) OpenOption {
	return func(c *openConfig) {
		c.name = name
	}
}

// Package is an opened resource package. Tables are immutable after Open;
// ReadRaw is safe for concurrent use when the source's ReadAt is.
type Package struct {
	name      string
	header    Header
	patch     bool
	deletions []hash.ResourceID
	entries   []*Entry
	byID      map[hash.ResourceID]*Entry

	src    io.ReaderAt
	size   int64
	closer io.Closer
}

// Open parses the header and tables of the package held by r.
func Open(r io.ReaderAt, size int64, opts ...OpenOption) (*Package, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Package{
		name: cfg.name,
		src:  r,
		size: size,
	}

	head, err := p.readTable(0, min(int64(HeaderSizeV2), size))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := p.header.UnmarshalBinary(head); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	p.patch = cfg.patch || p.header.PatchLevel > 0

	pos := int64(p.header.Size())
	if p.patch {
		if pos, err = p.readDeletions(pos); err != nil {
			return nil, fmt.Errorf("read deletion list: %w", err)
		}
	}

	offsets, err := p.readTable(pos, int64(p.header.OffsetTableSize))
	if err != nil {
		return nil, fmt.Errorf("read offset table: %w", err)
	}
	pos += int64(p.header.OffsetTableSize)

	metadata, err := p.readTable(pos, int64(p.header.MetadataTableSize))
	if err != nil {
		return nil, fmt.Errorf("read metadata table: %w", err)
	}

	if err := p.parseEntries(offsets, metadata); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenFile opens the package at path. The returned package owns the file;
// call Close when done.
func OpenFile(path string, opts ...OpenOption) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat package: %w", err)
	}

	opts = append([]OpenOption{WithName(filepath.Base(path))}, opts...)
	p, err := Open(f, info.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.closer = f
	return p, nil
}

// readTable reads exactly n bytes at off or fails with ErrTruncatedTable.
func (p *Package) readTable(off, n int64) ([]byte, error) {
	if off+n > p.size {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, source has %d",
			ErrTruncatedTable, n, off, p.size)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := p.src.ReadAt(buf, off); err != nil && !(errors.Is(err, io.EOF) && off+n == p.size) {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedTable, err)
	}
	return buf, nil
}

func (p *Package) readDeletions(pos int64) (int64, error) {
	countBuf, err := p.readTable(pos, 4)
	if err != nil {
		return 0, err
	}
	pos += 4

	count := int64(binary.LittleEndian.Uint32(countBuf))
	ids, err := p.readTable(pos, count*8)
	if err != nil {
		return 0, err
	}
	pos += count * 8

	p.deletions = make([]hash.ResourceID, count)
	for i := range p.deletions {
		p.deletions[i] = hash.ResourceID(binary.LittleEndian.Uint64(ids[i*8:]))
	}
	return pos, nil
}

func (p *Package) parseEntries(offsets, metadata []byte) error {
	n := int(p.header.EntryCount)
	p.entries = make([]*Entry, n)
	p.byID = make(map[hash.ResourceID]*Entry, n)

	var flags Flags
	if p.patch {
		flags = FlagPatch
	}

	pos := 0
	for i := range p.entries {
		e := &Entry{Flags: flags}
		e.decodeOffsetRow(offsets[i*OffsetEntrySize : (i+1)*OffsetEntrySize])

		used, err := e.decodeMetadata(metadata[pos:])
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		pos += used

		if e.DataOffset > uint64(p.size) {
			return fmt.Errorf("entry %d (%s): %w: data offset %d beyond source size %d",
				i, e.ID, ErrTruncatedTable, e.DataOffset, p.size)
		}

		p.entries[i] = e
		p.byID[e.ID] = e
	}

	if pos != len(metadata) {
		return fmt.Errorf("%w: metadata table declares %d bytes, records use %d",
			ErrMalformedHeader, len(metadata), pos)
	}
	return nil
}

// Name returns the package's name, usually its file name.
func (p *Package) Name() string { return p.name }

// Header returns the parsed header.
func (p *Package) Header() Header { return p.header }

// IsPatch reports whether the package carries a tombstone list.
func (p *Package) IsPatch() bool { return p.patch }

// Len returns the number of entries.
func (p *Package) Len() int { return len(p.entries) }

// Entries returns the entries in table order. The slice must not be modified.
func (p *Package) Entries() []*Entry { return p.entries }

// Deletions returns the ids this patch package removes.
func (p *Package) Deletions() []hash.ResourceID { return p.deletions }

// Tombstones returns one deletion entry per id in the tombstone list.
func (p *Package) Tombstones() []*Entry {
	out := make([]*Entry, len(p.deletions))
	for i, id := range p.deletions {
		out[i] = &Entry{ID: id, Flags: FlagPatch | FlagDeletion}
	}
	return out
}

// Entry returns the entry for id. When a package lists an id twice the
// later row wins.
func (p *Package) Entry(id hash.ResourceID) (*Entry, bool) {
	e, ok := p.byID[id]
	return e, ok
}

// ReadRaw returns the payload bytes of e exactly as stored.
func (p *Package) ReadRaw(e *Entry) ([]byte, error) {
	n := int64(e.PayloadSize())
	off := int64(e.DataOffset)
	if off+n > p.size {
		return nil, fmt.Errorf("%w: %s needs %d bytes at offset %d, source has %d",
			ErrTruncatedPayload, e.ID, n, off, p.size)
	}

	buf := make([]byte, n)
	read, err := p.src.ReadAt(buf, off)
	if int64(read) < n {
		return nil, fmt.Errorf("%w: %s: read %d of %d bytes: %v", ErrTruncatedPayload, e.ID, read, n, err)
	}
	return buf, nil
}

// MarshalTables re-serializes the header, tombstone list, offset table and
// metadata table. For a package parsed by Open the result is byte-identical
// to the source's leading bytes.
func (p *Package) MarshalTables() ([]byte, error) {
	return appendTables(nil, p.header, p.patch, p.deletions, p.entries), nil
}

// Close releases the file opened by OpenFile. It is a no-op for packages
// created with Open.
func (p *Package) Close() error {
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

// tablesSize returns the size of everything before the first payload.
func tablesSize(h Header, patch bool, deletions int, entries []*Entry) (int, uint32) {
	size := h.Size()
	if patch {
		size += 4 + deletions*8
	}
	size += len(entries) * OffsetEntrySize

	var metadata int
	for _, e := range entries {
		metadata += e.metadataSize()
	}
	return size + metadata, uint32(metadata)
}

func appendTables(buf []byte, h Header, patch bool, deletions []hash.ResourceID, entries []*Entry) []byte {
	head := make([]byte, h.Size())
	h.EncodeTo(head)
	buf = append(buf, head...)

	if patch {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(deletions)))
		for _, id := range deletions {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
		}
	}

	var row [OffsetEntrySize]byte
	for _, e := range entries {
		e.encodeOffsetRow(row[:])
		buf = append(buf, row[:]...)
	}
	for _, e := range entries {
		buf = e.appendMetadata(buf)
	}
	return buf
}
