package texture

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DXGI_FORMAT values of the formats the engine stores.
const (
	DXGI_FORMAT_UNKNOWN            = 0
	DXGI_FORMAT_R16G16B16A16_UNORM = 11
	DXGI_FORMAT_R8G8B8A8_UNORM     = 28
	DXGI_FORMAT_R8G8_UNORM         = 49
	DXGI_FORMAT_A8_UNORM           = 65
	DXGI_FORMAT_BC1_UNORM          = 71
	DXGI_FORMAT_BC3_UNORM          = 77
	DXGI_FORMAT_BC4_UNORM          = 80
	DXGI_FORMAT_BC5_UNORM          = 83
	DXGI_FORMAT_BC7_UNORM          = 98
)

// DDS header constants
const (
	DDS_MAGIC                    = 0x20534444 // "DDS "
	DDS_HEADER_SIZE              = 124
	DDS_HEADER_FLAGS_CAPS        = 0x1
	DDS_HEADER_FLAGS_HEIGHT      = 0x2
	DDS_HEADER_FLAGS_WIDTH       = 0x4
	DDS_HEADER_FLAGS_PITCH       = 0x8
	DDS_HEADER_FLAGS_PIXELFORMAT = 0x1000
	DDS_HEADER_FLAGS_MIPMAPCOUNT = 0x20000
	DDS_HEADER_FLAGS_LINEARSIZE  = 0x80000

	DDS_SURFACE_FLAGS_TEXTURE = 0x1000
	DDS_SURFACE_FLAGS_COMPLEX = 0x8
	DDS_SURFACE_FLAGS_MIPMAP  = 0x400000

	DDS_PIXELFORMAT_SIZE = 32
	DDS_FOURCC           = 0x4

	DX10_FOURCC = 0x30315844 // "DX10"

	// DDSHeaderSize is the size of the magic, the header and the DX10 extension.
	DDSHeaderSize = 4 + DDS_HEADER_SIZE + 20

	resourceDimensionTexture2D = 3
)

// DXGIFormat maps f to its DXGI_FORMAT value.
func DXGIFormat(f Format) uint32 {
	switch f {
	case FormatR16G16B16A16:
		return DXGI_FORMAT_R16G16B16A16_UNORM
	case FormatR8G8B8A8:
		return DXGI_FORMAT_R8G8B8A8_UNORM
	case FormatR8G8:
		return DXGI_FORMAT_R8G8_UNORM
	case FormatA8:
		return DXGI_FORMAT_A8_UNORM
	case FormatBC1:
		return DXGI_FORMAT_BC1_UNORM
	case FormatBC3:
		return DXGI_FORMAT_BC3_UNORM
	case FormatBC4:
		return DXGI_FORMAT_BC4_UNORM
	case FormatBC5:
		return DXGI_FORMAT_BC5_UNORM
	case FormatBC7:
		return DXGI_FORMAT_BC7_UNORM
	default:
		return DXGI_FORMAT_UNKNOWN
	}
}

func formatFromDXGI(v uint32) Format {
	for _, f := range []Format{
		FormatR16G16B16A16, FormatR8G8B8A8, FormatR8G8, FormatA8,
		FormatBC1, FormatBC3, FormatBC4, FormatBC5, FormatBC7,
	} {
		if DXGIFormat(f) == v {
			return f
		}
	}
	return FormatUnknown
}

// WriteDDS writes data, laid out as d describes, as a DDS file with a DX10
// header extension.
func WriteDDS(w io.Writer, d Descriptor, data []byte) error {
	if err := d.validate(); err != nil {
		return err
	}
	if len(data) != d.Size() {
		return fmt.Errorf("%w: %d bytes for %s %dx%d, want %d",
			ErrTruncatedBlockData, len(data), d.Format, d.Width, d.Height, d.Size())
	}

	if _, err := w.Write(createDDSHeader(d)); err != nil {
		return fmt.Errorf("write dds header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write dds data: %w", err)
	}
	return nil
}

// createDDSHeader creates a complete DDS header with DX10 extension.
func createDDSHeader(d Descriptor) []byte {
	header := make([]byte, DDSHeaderSize)
	le := binary.LittleEndian
	mips := uint32(d.mips())

	le.PutUint32(header[0:4], DDS_MAGIC)

	// DDS_HEADER starts at offset 4
	le.PutUint32(header[4:8], DDS_HEADER_SIZE)

	flags := uint32(DDS_HEADER_FLAGS_CAPS | DDS_HEADER_FLAGS_HEIGHT | DDS_HEADER_FLAGS_WIDTH |
		DDS_HEADER_FLAGS_PIXELFORMAT)
	pitch, slice := Pitch(d.Format, d.Width, d.Height)
	pitchOrLinear := uint32(pitch)
	if d.Format.Compressed() {
		flags |= DDS_HEADER_FLAGS_LINEARSIZE
		pitchOrLinear = uint32(slice)
	} else {
		flags |= DDS_HEADER_FLAGS_PITCH
	}
	if mips > 1 {
		flags |= DDS_HEADER_FLAGS_MIPMAPCOUNT
	}
	le.PutUint32(header[8:12], flags)
	le.PutUint32(header[12:16], uint32(d.Height))
	le.PutUint32(header[16:20], uint32(d.Width))
	le.PutUint32(header[20:24], pitchOrLinear)
	// dwDepth at 24 stays zero
	le.PutUint32(header[28:32], mips)
	// dwReserved1[11] at 32

	// DDS_PIXELFORMAT at 76
	le.PutUint32(header[76:80], DDS_PIXELFORMAT_SIZE)
	le.PutUint32(header[80:84], DDS_FOURCC)
	le.PutUint32(header[84:88], DX10_FOURCC)

	caps := uint32(DDS_SURFACE_FLAGS_TEXTURE)
	if mips > 1 {
		caps |= DDS_SURFACE_FLAGS_COMPLEX | DDS_SURFACE_FLAGS_MIPMAP
	}
	le.PutUint32(header[108:112], caps)

	// DX10 extension at 128
	le.PutUint32(header[128:132], DXGIFormat(d.Format))
	le.PutUint32(header[132:136], resourceDimensionTexture2D)
	le.PutUint32(header[140:144], uint32(d.slices()))

	return header
}

// ReadDDSHeader reads a DDS header with a DX10 extension and returns the
// descriptor of the data that follows it.
func ReadDDSHeader(r io.Reader) (Descriptor, error) {
	header := make([]byte, DDSHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Descriptor{}, fmt.Errorf("read dds header: %w", err)
	}

	le := binary.LittleEndian
	if le.Uint32(header[0:4]) != DDS_MAGIC || le.Uint32(header[4:8]) != DDS_HEADER_SIZE {
		return Descriptor{}, fmt.Errorf("%w: not a dds file", ErrInvalidHeader)
	}
	if le.Uint32(header[84:88]) != DX10_FOURCC {
		return Descriptor{}, fmt.Errorf("%w: dds file has no DX10 extension", ErrInvalidHeader)
	}

	dxgi := le.Uint32(header[128:132])
	f := formatFromDXGI(dxgi)
	if f == FormatUnknown {
		return Descriptor{}, fmt.Errorf("%w: dxgi format %d", ErrUnsupportedFormat, dxgi)
	}

	d := Descriptor{
		Format:   f,
		Width:    int(le.Uint32(header[16:20])),
		Height:   int(le.Uint32(header[12:16])),
		MipCount: max(1, int(le.Uint32(header[28:32]))),
		Slices:   max(1, int(le.Uint32(header[140:144]))),
	}
	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}
