package resource

import (
	"github.com/goopsie/glacierFileTools/pkg/hash"
	"github.com/goopsie/glacierFileTools/pkg/rpkg"
)

// Default values the engine's tools write for newly authored resources.
const (
	DefaultMetaOffset = 0x10000000
	encryptedSizeBit  = 0x80000000
)

// Meta is the tooling-facing metadata record of a resource: everything the
// package tables hold about it, with ids in their hexadecimal form.
type Meta struct {
	ID                  hash.ResourceID `yaml:"hash"`
	Path                string          `yaml:"path,omitempty"`
	Type                string          `yaml:"type"`
	Offset              uint64          `yaml:"offset"`
	PackedSize          uint32          `yaml:"size"`
	SizeFinal           uint32          `yaml:"size_final"`
	SizeInMemory        uint32          `yaml:"size_in_memory"`
	SizeInVideoMemory   uint32          `yaml:"size_in_video_memory"`
	ReferenceTableSize  uint32          `yaml:"reference_table_size"`
	ReferenceTableDummy uint32          `yaml:"reference_table_dummy"`
	References          []MetaReference `yaml:"references,omitempty"`
}

// MetaReference is one dependency of a Meta.
type MetaReference struct {
	ID   hash.ResourceID    `yaml:"hash"`
	Flag rpkg.ReferenceFlag `yaml:"flag"`
}

// Resolver names resource ids. *hash.Resolver implements it.
type Resolver interface {
	Resolve(id hash.ResourceID) (string, bool)
}

// MetaOf describes e. When names is non-nil and knows the id, Path is set.
func MetaOf(e *rpkg.Entry, names Resolver) Meta {
	m := Meta{
		ID:                  e.ID,
		Type:                e.Type.String(),
		Offset:              e.DataOffset,
		PackedSize:          e.CompressedSize,
		SizeFinal:           e.DecompressedSize,
		SizeInMemory:        e.SizeInMemory,
		SizeInVideoMemory:   e.SizeInVideoMemory,
		ReferenceTableSize:  uint32(len(e.ReferenceChunk())),
		ReferenceTableDummy: e.ReferenceTableDummy,
	}
	if e.Flags.Has(rpkg.FlagEncrypted) {
		m.PackedSize |= encryptedSizeBit
	}
	if names != nil {
		if path, ok := names.Resolve(e.ID); ok {
			m.Path = path
		}
	}
	for _, ref := range e.References {
		m.References = append(m.References, MetaReference{ID: ref.ID, Flag: ref.Flag})
	}
	return m
}

// NewMeta describes a newly authored resource of size bytes. name is
// either a 16-digit id or a path to hash.
func NewMeta(name string, size uint32, typ rpkg.TypeTag, refs []rpkg.Reference) Meta {
	m := Meta{
		ID:                 hash.IDOf(name),
		Type:               typ.String(),
		Offset:             DefaultMetaOffset,
		PackedSize:         encryptedSizeBit + size,
		SizeFinal:          size,
		SizeInMemory:       rpkg.NoMemorySize,
		SizeInVideoMemory:  rpkg.NoMemorySize,
		ReferenceTableSize: uint32(9*len(refs) + 4),
	}
	for _, ref := range refs {
		m.References = append(m.References, MetaReference{ID: ref.ID, Flag: ref.Flag})
	}
	return m
}

// Entry converts m back into a package entry. Only the size bits of
// PackedSize are used; the caller decides how the payload is stored.
func (m Meta) Entry() (rpkg.Entry, error) {
	typ, err := rpkg.ParseTypeTag(m.Type)
	if err != nil {
		return rpkg.Entry{}, err
	}

	e := rpkg.Entry{
		ID:                  m.ID,
		Type:                typ,
		DecompressedSize:    m.SizeFinal,
		DataOffset:          m.Offset,
		ReferenceTableDummy: m.ReferenceTableDummy,
		SizeInMemory:        m.SizeInMemory,
		SizeInVideoMemory:   m.SizeInVideoMemory,
	}
	if m.PackedSize&encryptedSizeBit != 0 {
		e.Flags |= rpkg.FlagEncrypted
	}
	if m.ReferenceTableSize > 0 {
		e.Flags |= rpkg.FlagReferences
		for _, ref := range m.References {
			e.References = append(e.References, rpkg.Reference{ID: ref.ID, Flag: ref.Flag})
		}
	}
	return e, nil
}
