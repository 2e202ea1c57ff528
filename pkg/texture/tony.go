package texture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"github.com/goopsie/glacierFileTools/pkg/codec"
)

// ErrInvalidTony is returned when a TONY container cannot be parsed.
var ErrInvalidTony = errors.New("invalid TONY container")

// TonyMagic opens every TONY container ("TONY" little-endian).
const TonyMagic = 0x594E4F54

const (
	tonyHeaderSize   = 29
	tonyMetadataSize = 9
)

// ColourType is the pixel layout of a TONY payload.
type ColourType uint8

const (
	ColourL8 ColourType = iota
	ColourRGB8
	ColourRGBA8
	ColourRGBA16
)

// BytesPerPixel returns the size of one pixel, or 0 for unknown types.
func (c ColourType) BytesPerPixel() int {
	switch c {
	case ColourL8:
		return 1
	case ColourRGB8:
		return 3
	case ColourRGBA8:
		return 4
	case ColourRGBA16:
		return 8
	default:
		return 0
	}
}

func (c ColourType) String() string {
	switch c {
	case ColourL8:
		return "L8"
	case ColourRGB8:
		return "RGB8"
	case ColourRGBA8:
		return "RGBA8"
	case ColourRGBA16:
		return "RGBA16"
	default:
		return fmt.Sprintf("ColourType(%d)", uint8(c))
	}
}

// Tony is the exported form of a texture: the top level of its first
// slice as uncompressed pixels, plus the header fields needed to rebuild
// the resource.
//
// Layout, little-endian: u32 magic, u8 colour type, u32 width, u32 height,
// u64 pixel size, u64 compressed size, the LZ4 block, then u8 version,
// u8 kind, u16 format, u32 flags and u8 interpret-as.
type Tony struct {
	ColourType ColourType
	Width      int
	Height     int
	Pixels     []byte

	Version     Version
	Kind        Kind
	Format      Format
	Flags       uint32
	InterpretAs uint8
}

// NewTony builds the container for a parsed texture. img is h decoded;
// when nil, the top level is decoded here.
func NewTony(h *Header, img *Image) (*Tony, error) {
	d := h.Descriptor
	t := &Tony{
		Width:       d.Width,
		Height:      d.Height,
		Version:     h.Version,
		Kind:        h.Kind,
		Format:      d.Format,
		Flags:       h.Flags,
		InterpretAs: h.InterpretAs,
	}

	n := d.Width * d.Height
	switch d.Format {
	case FormatR16G16B16A16, FormatR8G8B8A8, FormatA8, FormatR8G8:
		size := MipSize(d.Format, d.Width, d.Height, 0)
		if len(h.Pixels) < size {
			return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, have %d",
				ErrTruncatedBlockData, d.Format, d.Width, d.Height, size, len(h.Pixels))
		}
		src := h.Pixels[:size]
		switch d.Format {
		case FormatR16G16B16A16:
			t.ColourType, t.Pixels = ColourRGBA16, append([]byte(nil), src...)
		case FormatR8G8B8A8:
			t.ColourType, t.Pixels = ColourRGBA8, append([]byte(nil), src...)
		case FormatA8:
			t.ColourType, t.Pixels = ColourL8, append([]byte(nil), src...)
		default:
			t.ColourType = ColourRGB8
			t.Pixels = make([]byte, n*3)
			for i := 0; i < n; i++ {
				t.Pixels[i*3] = src[i*2]
				t.Pixels[i*3+1] = src[i*2+1]
				t.Pixels[i*3+2] = 0xFF
			}
		}
		return t, nil
	}

	if img == nil {
		top := d
		top.MipCount, top.Slices = 1, 1
		var err error
		if img, err = Decode(h.Pixels, top); err != nil {
			return nil, err
		}
	}
	if img.Width != d.Width || img.Height != d.Height || len(img.Mips) == 0 {
		return nil, fmt.Errorf("%w: image is %dx%d, header %dx%d",
			ErrInvalidDescriptor, img.Width, img.Height, d.Width, d.Height)
	}
	pix := img.Mips[0].Pix[:n*4]

	if d.Format == FormatBC4 {
		t.ColourType = ColourL8
		t.Pixels = make([]byte, n)
		for i := 0; i < n; i++ {
			t.Pixels[i] = pix[i*4]
		}
		return t, nil
	}
	t.ColourType, t.Pixels = ColourRGBA8, append([]byte(nil), pix...)
	return t, nil
}

// Serialize encodes t, compressing the pixels as one LZ4 block.
func (t *Tony) Serialize() ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if want := t.Width * t.Height * t.ColourType.BytesPerPixel(); len(t.Pixels) != want {
		return nil, fmt.Errorf("%w: %d pixel bytes for %s %dx%d, want %d",
			ErrInvalidTony, len(t.Pixels), t.ColourType, t.Width, t.Height, want)
	}
	block := codec.CompressBlock(t.Pixels)

	le := binary.LittleEndian
	buf := make([]byte, tonyHeaderSize, tonyHeaderSize+len(block)+tonyMetadataSize)
	le.PutUint32(buf[0:4], TonyMagic)
	buf[4] = byte(t.ColourType)
	le.PutUint32(buf[5:9], uint32(t.Width))
	le.PutUint32(buf[9:13], uint32(t.Height))
	le.PutUint64(buf[13:21], uint64(len(t.Pixels)))
	le.PutUint64(buf[21:29], uint64(len(block)))
	buf = append(buf, block...)

	var meta [tonyMetadataSize]byte
	meta[0] = byte(t.Version)
	meta[1] = byte(t.Kind)
	le.PutUint16(meta[2:4], uint16(t.Format))
	le.PutUint32(meta[4:8], t.Flags)
	meta[8] = t.InterpretAs
	return append(buf, meta[:]...), nil
}

// ParseTony decodes a container written by Serialize.
func ParseTony(data []byte) (*Tony, error) {
	if len(data) < tonyHeaderSize+tonyMetadataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidTony, len(data))
	}
	le := binary.LittleEndian
	if magic := le.Uint32(data[0:4]); magic != TonyMagic {
		return nil, fmt.Errorf("%w: magic %08x", ErrInvalidTony, magic)
	}

	t := &Tony{
		ColourType: ColourType(data[4]),
		Width:      int(le.Uint32(data[5:9])),
		Height:     int(le.Uint32(data[9:13])),
	}
	size := le.Uint64(data[13:21])
	compressed := le.Uint64(data[21:29])
	if err := t.validate(); err != nil {
		return nil, err
	}
	if want := uint64(t.Width * t.Height * t.ColourType.BytesPerPixel()); size != want {
		return nil, fmt.Errorf("%w: pixel size %d, want %d", ErrInvalidTony, size, want)
	}
	if compressed != uint64(len(data)-tonyHeaderSize-tonyMetadataSize) {
		return nil, fmt.Errorf("%w: compressed size %d does not fit %d bytes", ErrInvalidTony, compressed, len(data))
	}

	end := tonyHeaderSize + int(compressed)
	pixels, err := codec.Decompress(data[tonyHeaderSize:end], int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTony, err)
	}
	t.Pixels = pixels

	meta := data[end:]
	t.Version = Version(meta[0])
	t.Kind = Kind(meta[1])
	t.Format = Format(le.Uint16(meta[2:4]))
	t.Flags = le.Uint32(meta[4:8])
	t.InterpretAs = meta[8]
	return t, nil
}

func (t *Tony) validate() error {
	if t.ColourType.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: colour type %d", ErrInvalidTony, t.ColourType)
	}
	if t.Width < 1 || t.Height < 1 || t.Width > MaxDimension || t.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTony, t.Width, t.Height)
	}
	return nil
}

// Image returns the pixels as a standard library image. L8 and RGBA8
// images share t's buffer.
func (t *Tony) Image() image.Image {
	r := image.Rect(0, 0, t.Width, t.Height)
	switch t.ColourType {
	case ColourL8:
		return &image.Gray{Pix: t.Pixels, Stride: t.Width, Rect: r}
	case ColourRGBA16:
		// stored little-endian, image.NRGBA64 is big-endian
		out := image.NewNRGBA64(r)
		for i := 0; i+1 < len(t.Pixels); i += 2 {
			out.Pix[i], out.Pix[i+1] = t.Pixels[i+1], t.Pixels[i]
		}
		return out
	case ColourRGB8:
		out := image.NewNRGBA(r)
		for i := 0; i < t.Width*t.Height; i++ {
			copy(out.Pix[i*4:i*4+3], t.Pixels[i*3:i*3+3])
			out.Pix[i*4+3] = 0xFF
		}
		return out
	default:
		return &image.NRGBA{Pix: t.Pixels, Stride: t.Width * 4, Rect: r}
	}
}
