package rpkg

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/goopsie/glacierFileTools/pkg/hash"
)

// TypeTag is a resource's four-character type code ("TEXT", "TEMP", ...).
// Packages store it reversed; TypeTag always holds it in reading order.
type TypeTag [4]byte

// Common type tags.
var (
	TypeTexture     = TypeTag{'T', 'E', 'X', 'T'}
	TypeTextureData = TypeTag{'T', 'E', 'X', 'D'}
	TypeLocr        = TypeTag{'L', 'O', 'C', 'R'}
	TypeTemplate    = TypeTag{'T', 'E', 'M', 'P'}
)

// ParseTypeTag parses a four-character type code.
func ParseTypeTag(s string) (TypeTag, error) {
	var t TypeTag
	if len(s) != 4 {
		return t, fmt.Errorf("type tag %q must be 4 characters", s)
	}
	copy(t[:], strings.ToUpper(s))
	return t, nil
}

func (t TypeTag) String() string {
	return string(t[:])
}

func (t TypeTag) reversed() [4]byte {
	return [4]byte{t[3], t[2], t[1], t[0]}
}

// Flags describes how an entry's payload is stored and how the entry takes
// part in a patch chain.
type Flags uint8

const (
	FlagCompressed Flags = 1 << iota
	FlagEncrypted
	FlagPatch
	FlagDeletion
	FlagReferences
)

// Has reports whether every flag in f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f Flags) String() string {
	names := []string{"compressed", "encrypted", "patch", "deletion", "references"}
	var set []string
	for i, name := range names {
		if f&(1<<i) != 0 {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}

// ReferenceFlag is the per-dependency flag byte of a reference table.
type ReferenceFlag uint8

// Reference is one dependency of a resource.
type Reference struct {
	ID   hash.ResourceID
	Flag ReferenceFlag
}

// Packed size bits of the offset table.
const (
	encryptedBit = 0x80000000
	sizeMask     = 0x7FFFFFFF
)

// Reference count word bits.
const (
	referenceCountMask = 0x3FFFFFFF
	referenceFlagsMask = 0xC0000000
)

// metadataRecordSize is the fixed part of a metadata table record.
const metadataRecordSize = 24

// Entry is one resource row of a package.
type Entry struct {
	ID               hash.ResourceID
	Type             TypeTag
	Flags            Flags
	CompressedSize   uint32 // 0 when stored uncompressed
	DecompressedSize uint32
	DataOffset       uint64
	References       []Reference

	// Carried verbatim so tables re-serialize byte for byte.
	ReferenceTableDummy uint32
	SizeInMemory        uint32
	SizeInVideoMemory   uint32
	ReferenceCountFlags uint32

	referenceChunk []byte
}

// PayloadSize returns the number of payload bytes stored in the package.
func (e *Entry) PayloadSize() uint32 {
	if e.CompressedSize != 0 {
		return e.CompressedSize
	}
	return e.DecompressedSize
}

// ReferenceChunk returns the raw reference chunk as stored, or nil when the
// entry has none.
func (e *Entry) ReferenceChunk() []byte {
	if e.referenceChunk != nil {
		return e.referenceChunk
	}
	if !e.Flags.Has(FlagReferences) {
		return nil
	}
	return EncodeReferences(e.References, e.ReferenceCountFlags)
}

func (e *Entry) packedSize() uint32 {
	packed := e.CompressedSize & sizeMask
	if e.Flags.Has(FlagEncrypted) {
		packed |= encryptedBit
	}
	return packed
}

// EncodeReferences encodes a reference chunk: a count word, one flag byte
// per reference, then one id per reference.
func EncodeReferences(refs []Reference, countFlags uint32) []byte {
	n := len(refs)
	buf := make([]byte, 4+n*9)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n)&referenceCountMask|countFlags&referenceFlagsMask)
	for i, ref := range refs {
		buf[4+i] = byte(ref.Flag)
		binary.LittleEndian.PutUint64(buf[4+n+i*8:], uint64(ref.ID))
	}
	return buf
}

// DecodeReferences parses a reference chunk. It returns the references and
// the flag bits carried in the count word.
func DecodeReferences(chunk []byte) ([]Reference, uint32, error) {
	if len(chunk) < 4 {
		return nil, 0, fmt.Errorf("%w: reference chunk of %d bytes", ErrTruncatedTable, len(chunk))
	}
	word := binary.LittleEndian.Uint32(chunk[0:4])
	n := int(word & referenceCountMask)
	if need := 4 + n*9; need > len(chunk) {
		return nil, 0, fmt.Errorf("%w: %d references need %d bytes, chunk has %d",
			ErrTruncatedTable, n, need, len(chunk))
	}

	refs := make([]Reference, n)
	for i := range refs {
		refs[i] = Reference{
			Flag: ReferenceFlag(chunk[4+i]),
			ID:   hash.ResourceID(binary.LittleEndian.Uint64(chunk[4+n+i*8:])),
		}
	}
	return refs, word & referenceFlagsMask, nil
}

// decodeOffsetRow fills the offset table fields of e.
func (e *Entry) decodeOffsetRow(row []byte) {
	e.ID = hash.ResourceID(binary.LittleEndian.Uint64(row[0:8]))
	e.DataOffset = binary.LittleEndian.Uint64(row[8:16])
	packed := binary.LittleEndian.Uint32(row[16:20])
	e.CompressedSize = packed & sizeMask
	if e.CompressedSize != 0 {
		e.Flags |= FlagCompressed
	}
	if packed&encryptedBit != 0 {
		e.Flags |= FlagEncrypted
	}
}

func (e *Entry) encodeOffsetRow(row []byte) {
	binary.LittleEndian.PutUint64(row[0:8], uint64(e.ID))
	binary.LittleEndian.PutUint64(row[8:16], e.DataOffset)
	binary.LittleEndian.PutUint32(row[16:20], e.packedSize())
}

// decodeMetadata parses one metadata record from data and returns the
// number of bytes consumed.
func (e *Entry) decodeMetadata(data []byte) (int, error) {
	if len(data) < metadataRecordSize {
		return 0, fmt.Errorf("%w: metadata record needs %d bytes, %d left",
			ErrTruncatedTable, metadataRecordSize, len(data))
	}

	e.Type = TypeTag{data[3], data[2], data[1], data[0]}
	chunkSize := int(binary.LittleEndian.Uint32(data[4:8]))
	e.ReferenceTableDummy = binary.LittleEndian.Uint32(data[8:12])
	e.DecompressedSize = binary.LittleEndian.Uint32(data[12:16])
	e.SizeInMemory = binary.LittleEndian.Uint32(data[16:20])
	e.SizeInVideoMemory = binary.LittleEndian.Uint32(data[20:24])

	if chunkSize == 0 {
		return metadataRecordSize, nil
	}
	if len(data)-metadataRecordSize < chunkSize {
		return 0, fmt.Errorf("%w: reference chunk needs %d bytes, %d left",
			ErrTruncatedTable, chunkSize, len(data)-metadataRecordSize)
	}

	chunk := data[metadataRecordSize : metadataRecordSize+chunkSize]
	refs, countFlags, err := DecodeReferences(chunk)
	if err != nil {
		return 0, err
	}
	e.Flags |= FlagReferences
	e.References = refs
	e.ReferenceCountFlags = countFlags
	e.referenceChunk = append([]byte(nil), chunk...)

	return metadataRecordSize + chunkSize, nil
}

func (e *Entry) metadataSize() int {
	return metadataRecordSize + len(e.ReferenceChunk())
}

func (e *Entry) appendMetadata(buf []byte) []byte {
	chunk := e.ReferenceChunk()

	var rec [metadataRecordSize]byte
	rt := e.Type.reversed()
	copy(rec[0:4], rt[:])
	binary.LittleEndian.PutUint32(rec[4:8], uint32(len(chunk)))
	binary.LittleEndian.PutUint32(rec[8:12], e.ReferenceTableDummy)
	binary.LittleEndian.PutUint32(rec[12:16], e.DecompressedSize)
	binary.LittleEndian.PutUint32(rec[16:20], e.SizeInMemory)
	binary.LittleEndian.PutUint32(rec[20:24], e.SizeInVideoMemory)

	buf = append(buf, rec[:]...)
	return append(buf, chunk...)
}
