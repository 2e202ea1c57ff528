package rpkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/glacierFileTools/pkg/codec"
	"github.com/goopsie/glacierFileTools/pkg/hash"
)

var (
	idA = hash.ResourceID(0x00000000000000a1)
	idB = hash.ResourceID(0x00000000000000b2)
	idC = hash.ResourceID(0x00000000000000c3)
)

func open(t *testing.T, data []byte, opts ...OpenOption) *Package {
	t.Helper()
	p, err := Open(bytes.NewReader(data), int64(len(data)), opts...)
	require.NoError(t, err)
	return p
}

func samplePackage(t *testing.T, opts ...BuilderOption) []byte {
	t.Helper()
	b := NewBuilder(opts...)
	require.NoError(t, b.Add(Resource{
		ID:   idA,
		Type: TypeTemplate,
		Data: bytes.Repeat([]byte("template data "), 64),
		References: []Reference{
			{ID: idB, Flag: 0x1f},
			{ID: idC, Flag: 0x80},
		},
		Compress: true,
	}))
	require.NoError(t, b.Add(Resource{
		ID:      idB,
		Type:    TypeTexture,
		Data:    []byte("0123456789abcdef"),
		Encrypt: true,
	}))
	require.NoError(t, b.Add(Resource{
		ID:   idC,
		Type: TypeLocr,
		Data: []byte("plain"),
	}))
	return b.Bytes()
}

func TestHeader(t *testing.T) {
	t.Run("V1Layout", func(t *testing.T) {
		h := Header{Magic: MagicV1, EntryCount: 2, OffsetTableSize: 40, MetadataTableSize: 48}
		data, err := h.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, HeaderSizeV1)
		assert.Equal(t, []byte("GKPR"), data[:4])

		var got Header
		require.NoError(t, got.UnmarshalBinary(data))
		assert.Equal(t, h, got)
	})

	t.Run("V2Layout", func(t *testing.T) {
		h := Header{
			Magic:             MagicV2,
			Unknown:           1,
			Chunk:             3,
			ChunkType:         1,
			PatchLevel:        2,
			LanguageTag:       [2]byte{'e', 'n'},
			EntryCount:        1,
			OffsetTableSize:   20,
			MetadataTableSize: 24,
		}
		data, err := h.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, HeaderSizeV2)

		var got Header
		require.NoError(t, got.UnmarshalBinary(data))
		assert.Equal(t, h, got)
		assert.Equal(t, Version2, got.Version())
	})

	t.Run("UnknownMagic", func(t *testing.T) {
		data := []byte("XXXX\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
		var h Header
		assert.ErrorIs(t, h.UnmarshalBinary(data), ErrMalformedHeader)
	})

	t.Run("OffsetTableMismatch", func(t *testing.T) {
		h := Header{Magic: MagicV1, EntryCount: 2, OffsetTableSize: 20}
		assert.ErrorIs(t, h.Validate(), ErrMalformedHeader)
	})

	t.Run("Short", func(t *testing.T) {
		var h Header
		assert.ErrorIs(t, h.UnmarshalBinary([]byte("GKPR\x01")), ErrTruncatedTable)
	})
}

func TestOpen(t *testing.T) {
	data := samplePackage(t)
	p := open(t, data)

	assert.False(t, p.IsPatch())
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, Version1, p.Header().Version())
	assert.Equal(t, HeaderSizeV1, p.Header().Size())

	a, ok := p.Entry(idA)
	require.True(t, ok)
	assert.Equal(t, TypeTemplate, a.Type)
	assert.True(t, a.Flags.Has(FlagCompressed|FlagReferences))
	assert.False(t, a.Flags.Has(FlagEncrypted))
	assert.NotZero(t, a.CompressedSize)
	assert.Equal(t, uint32(14*64), a.DecompressedSize)
	assert.Equal(t, []Reference{{ID: idB, Flag: 0x1f}, {ID: idC, Flag: 0x80}}, a.References)

	b, ok := p.Entry(idB)
	require.True(t, ok)
	assert.True(t, b.Flags.Has(FlagEncrypted))
	assert.False(t, b.Flags.Has(FlagCompressed))
	assert.Zero(t, b.CompressedSize)

	raw, err := p.ReadRaw(b)
	require.NoError(t, err)
	plain, err := codec.Decrypt(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), plain)

	c, ok := p.Entry(idC)
	require.True(t, ok)
	raw, err = p.ReadRaw(c)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), raw)

	_, ok = p.Entry(0x1234)
	assert.False(t, ok)
}

func TestMarshalTables(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []BuilderOption
		open []OpenOption
	}{
		{"V1", nil, nil},
		{"V2", []BuilderOption{WithVersion(Version2), WithChunk(4, 1, [2]byte{'f', 'r'})}, nil},
		{"V2Patch", []BuilderOption{WithVersion(Version2), WithPatchLevel(1)}, nil},
		{"V1Patch", []BuilderOption{WithPatchLevel(1)}, []OpenOption{AsPatch()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data := samplePackage(t, tc.opts...)
			p := open(t, data, tc.open...)

			tables, err := p.MarshalTables()
			require.NoError(t, err)

			first := p.Entries()[0].DataOffset
			assert.Equal(t, data[:first], tables)
		})
	}

	t.Run("PreservesRawFields", func(t *testing.T) {
		b := NewBuilder()
		b.AddRaw(Entry{
			ID:                  idA,
			Type:                TypeTextureData,
			DecompressedSize:    4,
			ReferenceTableDummy: 0xabcd,
			SizeInMemory:        100,
			SizeInVideoMemory:   200,
			Flags:               FlagReferences,
			References:          []Reference{{ID: idB, Flag: 1}},
			ReferenceCountFlags: 0xC0000000,
		}, []byte("data"))
		data := b.Bytes()

		p := open(t, data)
		e := p.Entries()[0]
		assert.Equal(t, uint32(0xabcd), e.ReferenceTableDummy)
		assert.Equal(t, uint32(100), e.SizeInMemory)
		assert.Equal(t, uint32(200), e.SizeInVideoMemory)
		assert.Equal(t, uint32(0xC0000000), e.ReferenceCountFlags)
		assert.Len(t, e.References, 1)

		tables, err := p.MarshalTables()
		require.NoError(t, err)
		assert.Equal(t, data[:e.DataOffset], tables)
	})
}

func TestPatch(t *testing.T) {
	b := NewBuilder(WithVersion(Version2), WithPatchLevel(3))
	require.NoError(t, b.Add(Resource{ID: idB, Type: TypeTemplate, Data: []byte("v2")}))
	require.NoError(t, b.Delete(idC))
	require.NoError(t, b.Delete(idA))

	p := open(t, b.Bytes())
	assert.True(t, p.IsPatch())
	assert.Equal(t, []hash.ResourceID{idC, idA}, p.Deletions())

	tomb := p.Tombstones()
	require.Len(t, tomb, 2)
	assert.True(t, tomb[0].Flags.Has(FlagDeletion|FlagPatch))

	e, ok := p.Entry(idB)
	require.True(t, ok)
	assert.True(t, e.Flags.Has(FlagPatch))

	t.Run("DeleteOnBase", func(t *testing.T) {
		assert.Error(t, NewBuilder().Delete(idA))
	})
}

func TestOpenErrors(t *testing.T) {
	data := samplePackage(t)

	t.Run("Empty", func(t *testing.T) {
		_, err := Open(bytes.NewReader(nil), 0)
		assert.ErrorIs(t, err, ErrTruncatedTable)
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte("ZZZZ"), data[4:]...)
		_, err := Open(bytes.NewReader(bad), int64(len(bad)))
		assert.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("TruncatedInsideTables", func(t *testing.T) {
		cut := data[:HeaderSizeV1+OffsetEntrySize+10]
		_, err := Open(bytes.NewReader(cut), int64(len(cut)))
		assert.ErrorIs(t, err, ErrTruncatedTable)
	})

	t.Run("MetadataSizeMismatch", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		// Claim four more metadata bytes than the records use.
		bad[12] += 4
		_, err := Open(bytes.NewReader(bad), int64(len(bad)))
		assert.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		cut := data[:len(data)-1]
		p, err := Open(bytes.NewReader(cut), int64(len(cut)))
		require.NoError(t, err)

		last := p.Entries()[p.Len()-1]
		_, err = p.ReadRaw(last)
		assert.ErrorIs(t, err, ErrTruncatedPayload)

		_, err = p.ReadRaw(p.Entries()[0])
		assert.NoError(t, err)
	})
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk0.rpkg")
	b := NewBuilder()
	require.NoError(t, b.Add(Resource{ID: idA, Type: TypeTemplate, Data: []byte("hello")}))
	require.NoError(t, b.WriteFile(path))

	p, err := OpenFile(path)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "chunk0.rpkg", p.Name())
	raw, err := p.ReadRaw(p.Entries()[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.rpkg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTypeTag(t *testing.T) {
	tag, err := ParseTypeTag("text")
	require.NoError(t, err)
	assert.Equal(t, TypeTexture, tag)
	assert.Equal(t, "TEXT", tag.String())

	_, err = ParseTypeTag("TEX")
	assert.Error(t, err)

	assert.Equal(t, "compressed|encrypted", (FlagCompressed | FlagEncrypted).String())
	assert.Equal(t, "none", Flags(0).String())
}

func TestDecodeReferences(t *testing.T) {
	refs := []Reference{{ID: idA, Flag: 2}, {ID: idC, Flag: 9}}
	chunk := EncodeReferences(refs, 0x40000000)

	got, flags, err := DecodeReferences(chunk)
	require.NoError(t, err)
	assert.Equal(t, refs, got)
	assert.Equal(t, uint32(0x40000000), flags)

	_, _, err = DecodeReferences(chunk[:len(chunk)-1])
	assert.ErrorIs(t, err, ErrTruncatedTable)
}
