package resource

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/goopsie/glacierFileTools/pkg/codec"
	"github.com/goopsie/glacierFileTools/pkg/hash"
	"github.com/goopsie/glacierFileTools/pkg/rpkg"
)

var (
	idA = hash.Compute("[assembly:/templates/a.template].pc_entitytype")
	idB = hash.Compute("[assembly:/templates/b.template].pc_entitytype")
)

var body = bytes.Repeat([]byte("glacier resource body "), 40)

func openPackage(t *testing.T, b *rpkg.Builder) *rpkg.Package {
	t.Helper()
	data := b.Bytes()
	p, err := rpkg.Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return p
}

func TestMaterialize(t *testing.T) {
	for _, tc := range []struct {
		name               string
		compress, encrypt  bool
		data               []byte
		wantCompressedFlag bool
	}{
		{"Stored", false, false, body, false},
		{"Compressed", true, false, body, true},
		{"Encrypted", false, true, codec.PadBlock(body), false},
		{"Incompressible", true, false, []byte("abc"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := rpkg.NewBuilder()
			require.NoError(t, b.Add(rpkg.Resource{
				ID:         idA,
				Type:       rpkg.TypeTemplate,
				Data:       tc.data,
				References: []rpkg.Reference{{ID: idB, Flag: 0x1f}},
				Compress:   tc.compress,
				Encrypt:    tc.encrypt,
			}))
			p := openPackage(t, b)
			e := p.Entries()[0]
			assert.Equal(t, tc.wantCompressedFlag, e.Flags.Has(rpkg.FlagCompressed))

			d, err := Materialize(p, e)
			require.NoError(t, err)
			assert.Equal(t, idA, d.ID)
			assert.Equal(t, rpkg.TypeTemplate, d.Type)
			assert.Equal(t, tc.data, d.Data)
			assert.Len(t, d.Data, int(e.DecompressedSize))
			assert.Equal(t, []rpkg.Reference{{ID: idB, Flag: 0x1f}}, d.References)
		})
	}
}

func TestDecodeEncryptedCompressed(t *testing.T) {
	compressed, err := codec.Compress(body)
	require.NoError(t, err)
	padded := len(compressed)%codec.BlockSize == 0

	// The engine enciphers the compressed bytes, so only block-aligned
	// compressed payloads can carry both flags.
	b := rpkg.NewBuilder()
	err = b.Add(rpkg.Resource{ID: idA, Type: rpkg.TypeTemplate, Data: body, Compress: true, Encrypt: true})
	if !padded {
		assert.ErrorIs(t, err, codec.ErrBlockAlignment)
		return
	}
	require.NoError(t, err)

	p := openPackage(t, b)
	d, err := Materialize(p, p.Entries()[0])
	require.NoError(t, err)
	assert.Equal(t, body, d.Data)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("CipherInputNotBlockMultiple", func(t *testing.T) {
		b := rpkg.NewBuilder()
		b.AddRaw(rpkg.Entry{
			ID:               idA,
			Type:             rpkg.TypeTemplate,
			Flags:            rpkg.FlagEncrypted,
			DecompressedSize: 13,
		}, []byte("thirteen byte"))
		p := openPackage(t, b)

		_, err := Materialize(p, p.Entries()[0])
		assert.ErrorIs(t, err, ErrInvalidCipherInput)
	})

	t.Run("DeclaredSizeTooLarge", func(t *testing.T) {
		compressed, err := codec.Compress(body)
		require.NoError(t, err)

		e := &rpkg.Entry{
			ID:               idA,
			Flags:            rpkg.FlagCompressed,
			CompressedSize:   uint32(len(compressed)),
			DecompressedSize: uint32(len(body) + 1),
		}
		_, err = Decode(compressed, e)
		assert.ErrorIs(t, err, ErrDecompressionMismatch)
	})

	t.Run("DeclaredSizeTooSmall", func(t *testing.T) {
		compressed, err := codec.Compress(body)
		require.NoError(t, err)

		e := &rpkg.Entry{
			ID:               idA,
			Flags:            rpkg.FlagCompressed,
			CompressedSize:   uint32(len(compressed)),
			DecompressedSize: uint32(len(body) - 1),
		}
		_, err = Decode(compressed, e)
		assert.ErrorIs(t, err, ErrDecompressionMismatch)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		b := rpkg.NewBuilder()
		require.NoError(t, b.Add(rpkg.Resource{ID: idA, Type: rpkg.TypeTemplate, Data: body, Compress: true}))
		data := b.Bytes()
		data = data[:len(data)-1]

		p, err := rpkg.Open(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		_, err = Materialize(p, p.Entries()[0])
		assert.ErrorIs(t, err, rpkg.ErrTruncatedPayload)
	})
}

func TestDecodeReferences(t *testing.T) {
	refs := []rpkg.Reference{{ID: idB, Flag: 0x1f}, {ID: idA, Flag: 0x80}}

	t.Run("FromReferenceChunk", func(t *testing.T) {
		e := &rpkg.Entry{ID: idA, Flags: rpkg.FlagReferences, DecompressedSize: uint32(len(body)), References: refs}
		d, err := Decode(body, e)
		require.NoError(t, err)
		assert.Equal(t, refs, d.References)
		assert.Equal(t, body, d.Data)
	})

	t.Run("NoChunk", func(t *testing.T) {
		e := &rpkg.Entry{ID: idA, DecompressedSize: uint32(len(body)), References: refs}
		d, err := Decode(body, e)
		require.NoError(t, err)
		assert.Empty(t, d.References)
	})
}

func TestDecodeDoesNotAlias(t *testing.T) {
	raw := []byte("stored")
	d, err := Decode(raw, &rpkg.Entry{ID: idA, DecompressedSize: 6})
	require.NoError(t, err)

	raw[0] = 'X'
	assert.Equal(t, []byte("stored"), d.Data)
}

func TestDecodeDeterministic(t *testing.T) {
	compressed, err := codec.Compress(body)
	require.NoError(t, err)
	e := &rpkg.Entry{
		ID:               idA,
		Flags:            rpkg.FlagCompressed,
		CompressedSize:   uint32(len(compressed)),
		DecompressedSize: uint32(len(body)),
	}

	first, err := Decode(compressed, e)
	require.NoError(t, err)
	second, err := Decode(compressed, e)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestMeta(t *testing.T) {
	b := rpkg.NewBuilder()
	require.NoError(t, b.Add(rpkg.Resource{
		ID:         idA,
		Type:       rpkg.TypeTemplate,
		Data:       codec.PadBlock(body),
		References: []rpkg.Reference{{ID: idB, Flag: 0x1f}},
		Encrypt:    true,
	}))
	p := openPackage(t, b)
	e := p.Entries()[0]

	names := hash.NewResolver()
	names.Insert(idA, "[assembly:/templates/a.template].pc_entitytype")

	m := MetaOf(e, names)
	assert.Equal(t, "[assembly:/templates/a.template].pc_entitytype", m.Path)
	assert.Equal(t, "TEMP", m.Type)
	assert.Equal(t, uint32(0x80000000), m.PackedSize)
	assert.Equal(t, uint32(4+9), m.ReferenceTableSize)
	assert.Equal(t, []MetaReference{{ID: idB, Flag: 0x1f}}, m.References)

	t.Run("YAML", func(t *testing.T) {
		out, err := yaml.Marshal(m)
		require.NoError(t, err)
		assert.Contains(t, string(out), idA.String())

		var back Meta
		require.NoError(t, yaml.Unmarshal(out, &back))
		assert.Equal(t, m, back)
	})

	t.Run("EntryRoundTrip", func(t *testing.T) {
		got, err := m.Entry()
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, e.Type, got.Type)
		assert.True(t, got.Flags.Has(rpkg.FlagEncrypted|rpkg.FlagReferences))
		assert.Equal(t, e.References, got.References)
	})

	t.Run("NewMeta", func(t *testing.T) {
		n := NewMeta("[assembly:/templates/b.template].pc_entitytype", 100, rpkg.TypeLocr, nil)
		assert.Equal(t, idB, n.ID)
		assert.Equal(t, uint32(0x80000000+100), n.PackedSize)
		assert.Equal(t, uint32(4), n.ReferenceTableSize)
		assert.Equal(t, uint64(DefaultMetaOffset), n.Offset)

		byID := NewMeta(strings.ToUpper(idB.String()), 100, rpkg.TypeLocr, nil)
		assert.Equal(t, idB, byID.ID)
	})
}
