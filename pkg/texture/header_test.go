package texture

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/glacierFileTools/pkg/codec"
)

type headerFields struct {
	kind       uint16
	texdMarker uint32
	flags      uint32
	width      uint16
	height     uint16
	format     Format
	mips       uint8
	dimensions uint8
	atlas      uint32

	// H3 only
	textureSize    uint32
	compressedSize uint32
	widthShift     uint8
	heightShift    uint8
	textMips       uint8
}

func buildHeader(version Version, f headerFields, pixels []byte) []byte {
	le := binary.LittleEndian
	var b []byte
	switch version {
	case H2016:
		b = make([]byte, headerSizeH2016)
		le.PutUint32(b[4:], f.texdMarker)
		le.PutUint32(b[8:], uint32(headerSizeH2016+len(pixels)))
		le.PutUint32(b[12:], f.flags)
		le.PutUint16(b[16:], f.width)
		le.PutUint16(b[18:], f.height)
		le.PutUint16(b[20:], uint16(f.format))
		b[22] = f.mips
		b[24] = 2
		b[25] = f.dimensions
		b[26] = 1
		le.PutUint32(b[83:], f.atlas)
	case H2:
		b = make([]byte, headerSizeH2)
		le.PutUint32(b[4:], uint32(headerSizeH2+len(pixels)))
		le.PutUint32(b[8:], f.flags)
		le.PutUint16(b[12:], f.width)
		le.PutUint16(b[14:], f.height)
		le.PutUint16(b[16:], uint16(f.format))
		b[18] = f.mips
		le.PutUint32(b[20:], f.texdMarker)
		le.PutUint32(b[136:], f.atlas)
	case H3:
		b = make([]byte, headerSizeH3)
		le.PutUint32(b[4:], uint32(headerSizeH3+len(pixels)))
		le.PutUint32(b[8:], f.flags)
		le.PutUint16(b[12:], f.width)
		le.PutUint16(b[14:], f.height)
		le.PutUint16(b[16:], uint16(f.format))
		b[18] = f.mips
		b[20] = 2
		le.PutUint16(b[22:], 1)
		le.PutUint32(b[24:], f.textureSize)
		le.PutUint32(b[80:], f.compressedSize)
		le.PutUint32(b[136:], f.atlas)
		b[145] = f.widthShift
		b[146] = f.heightShift
		b[147] = f.textMips
	}
	le.PutUint16(b[0:], headerMagic)
	le.PutUint16(b[2:], f.kind)
	return append(b, pixels...)
}

func pattern(n int) []byte {
	return bytes.Repeat([]byte{0x00, 0xF8, 0x1F, 0x00, 0xE4, 0xE4, 0xE4, 0xE4}, n/8)
}

func TestParseHeaderH2016(t *testing.T) {
	pixels := pattern(TotalSize(FormatBC1, 8, 8, 4, 1))

	t.Run("TexD", func(t *testing.T) {
		data := buildHeader(H2016, headerFields{kind: 1, texdMarker: texdMarker, flags: 7, width: 8, height: 8, format: FormatBC1, mips: 4}, pixels)
		h, err := ParseHeader(data, H2016, IsTexD())
		require.NoError(t, err)
		assert.Equal(t, KindNormal, h.Kind)
		assert.Equal(t, uint32(7), h.Flags)
		assert.Equal(t, uint32(len(data)), h.FileSize)
		assert.Equal(t, uint8(2), h.InterpretAs)
		assert.Equal(t, uint16(1), h.Interpolation)
		assert.Equal(t, Descriptor{Format: FormatBC1, Width: 8, Height: 8, MipCount: 4, Slices: 1}, h.Descriptor)
		assert.Equal(t, pixels, h.Pixels)
	})

	t.Run("LowResolutionCopy", func(t *testing.T) {
		low := pattern(MipSize(FormatBC1, 128, 128, 0))
		data := buildHeader(H2016, headerFields{width: 256, height: 256, format: FormatBC1, mips: 9}, low)
		h, err := ParseHeader(data, H2016)
		require.NoError(t, err)
		assert.Equal(t, 128, h.Descriptor.Width)
		assert.Equal(t, 128, h.Descriptor.Height)
		assert.Equal(t, 1, h.Descriptor.MipCount)
		assert.Len(t, h.Pixels, len(low))

		_, err = Decode(h.Pixels, h.Descriptor)
		require.NoError(t, err)
	})

	t.Run("Dimensions", func(t *testing.T) {
		data := buildHeader(H2016, headerFields{width: 8, height: 8, format: FormatBC1, dimensions: 1}, pixels)
		_, err := ParseHeader(data, H2016)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("Atlas", func(t *testing.T) {
		data := buildHeader(H2016, headerFields{width: 8, height: 8, format: FormatBC1, atlas: 16}, pixels)
		_, err := ParseHeader(data, H2016)
		assert.ErrorIs(t, err, ErrAtlasUnsupported)
	})
}

func TestParseHeaderH2(t *testing.T) {
	t.Run("Scaled", func(t *testing.T) {
		low := pattern(MipSize(FormatBC3, 128, 128, 0))
		data := buildHeader(H2, headerFields{texdMarker: texdMarker, width: 512, height: 512, format: FormatBC3, mips: 10}, low)
		h, err := ParseHeader(data, H2)
		require.NoError(t, err)
		assert.Equal(t, 128, h.Descriptor.Width)
		assert.Equal(t, 128, h.Descriptor.Height)
		assert.Equal(t, 1, h.Descriptor.MipCount)
	})

	t.Run("TexD", func(t *testing.T) {
		full := pattern(TotalSize(FormatBC3, 16, 16, 5, 1))
		data := buildHeader(H2, headerFields{texdMarker: texdMarker, width: 16, height: 16, format: FormatBC3, mips: 5}, full)
		h, err := ParseHeader(data, H2, IsTexD())
		require.NoError(t, err)
		assert.Equal(t, 16, h.Descriptor.Width)
		assert.Equal(t, 5, h.Descriptor.MipCount)
		assert.Equal(t, full, h.Pixels)
	})

	t.Run("Truncated", func(t *testing.T) {
		data := buildHeader(H2, headerFields{width: 16, height: 16, format: FormatBC3, mips: 1}, pattern(64))
		_, err := ParseHeader(data, H2)
		assert.ErrorIs(t, err, ErrTruncatedBlockData)
	})
}

func TestParseHeaderH3(t *testing.T) {
	t.Run("Stored", func(t *testing.T) {
		pixels := pattern(TotalSize(FormatBC1, 8, 8, 4, 1))
		n := uint32(len(pixels))
		data := buildHeader(H3, headerFields{width: 8, height: 8, format: FormatBC1, mips: 4, textureSize: n, compressedSize: n}, pixels)
		h, err := ParseHeader(data, H3)
		require.NoError(t, err)
		assert.Equal(t, 4, h.Descriptor.MipCount)
		assert.Equal(t, pixels, h.Pixels)
	})

	t.Run("CompressedText", func(t *testing.T) {
		text := pattern(TotalSize(FormatBC1, 16, 16, 2, 1))
		compressed, err := codec.Compress(text)
		require.NoError(t, err)

		data := buildHeader(H3, headerFields{
			width: 32, height: 32, format: FormatBC1, mips: 6,
			textureSize: 4096, compressedSize: 1024,
			widthShift: 1, heightShift: 1, textMips: 2,
		}, compressed)
		h, err := ParseHeader(data, H3)
		require.NoError(t, err)
		assert.Equal(t, Descriptor{Format: FormatBC1, Width: 16, Height: 16, MipCount: 2, Slices: 1}, h.Descriptor)
		assert.Equal(t, text, h.Pixels)
	})

	t.Run("TexD", func(t *testing.T) {
		full := pattern(TotalSize(FormatBC1, 16, 16, 1, 1))
		compressed, err := codec.Compress(full)
		require.NoError(t, err)

		data := buildHeader(H3, headerFields{
			width: 16, height: 16, format: FormatBC1, mips: 1,
			textureSize: uint32(len(full)), compressedSize: uint32(len(compressed)),
		}, nil)
		h, err := ParseHeader(data, H3, WithTexD(append(compressed, 0xAA, 0xBB)))
		require.NoError(t, err)
		assert.Equal(t, full, h.Pixels)
		assert.Equal(t, 16, h.Descriptor.Width)
	})

	t.Run("TexDShort", func(t *testing.T) {
		data := buildHeader(H3, headerFields{width: 16, height: 16, format: FormatBC1, textureSize: 128, compressedSize: 64}, nil)
		_, err := ParseHeader(data, H3, WithTexD(make([]byte, 10)))
		assert.ErrorIs(t, err, ErrTruncatedBlockData)
	})
}

func TestParseHeaderErrors(t *testing.T) {
	valid := buildHeader(H2, headerFields{width: 4, height: 4, format: FormatBC1}, pattern(8))

	t.Run("Short", func(t *testing.T) {
		_, err := ParseHeader(valid[:100], H2)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("Magic", func(t *testing.T) {
		bad := bytes.Clone(valid)
		bad[0] = 2
		_, err := ParseHeader(bad, H2)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("Kind", func(t *testing.T) {
		bad := bytes.Clone(valid)
		bad[2] = 4
		_, err := ParseHeader(bad, H2)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("Format", func(t *testing.T) {
		data := buildHeader(H2, headerFields{width: 4, height: 4, format: Format(0x77)}, pattern(8))
		_, err := ParseHeader(data, H2)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("Version", func(t *testing.T) {
		_, err := ParseHeader(valid, Version(9))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestDDS(t *testing.T) {
	d := Descriptor{Format: FormatBC7, Width: 16, Height: 8, MipCount: 3, Slices: 1}
	data := make([]byte, d.Size())

	var buf bytes.Buffer
	require.NoError(t, WriteDDS(&buf, d, data))
	out := buf.Bytes()
	require.Len(t, out, DDSHeaderSize+len(data))

	le := binary.LittleEndian
	assert.Equal(t, uint32(DDS_MAGIC), le.Uint32(out[0:4]))
	assert.Equal(t, uint32(8), le.Uint32(out[12:16]))
	assert.Equal(t, uint32(16), le.Uint32(out[16:20]))
	assert.Equal(t, uint32(4*2*16), le.Uint32(out[20:24]))
	assert.Equal(t, uint32(DXGI_FORMAT_BC7_UNORM), le.Uint32(out[128:132]))

	got, err := ReadDDSHeader(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, d, got)

	t.Run("SizeMismatch", func(t *testing.T) {
		err := WriteDDS(&bytes.Buffer{}, d, data[:10])
		assert.ErrorIs(t, err, ErrTruncatedBlockData)
	})

	t.Run("NotDDS", func(t *testing.T) {
		_, err := ReadDDSHeader(bytes.NewReader(make([]byte, DDSHeaderSize)))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestParseVersion(t *testing.T) {
	for _, v := range []Version{H2016, H2, H3} {
		got, err := ParseVersion(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	got, err := ParseVersion("h3")
	require.NoError(t, err)
	assert.Equal(t, H3, got)

	_, err = ParseVersion("hitman")
	assert.Error(t, err)
}
