package texture

import (
	"fmt"
	"image"
)

// Descriptor describes the layout of a texture's pixel payload.
type Descriptor struct {
	Format   Format
	Width    int
	Height   int
	MipCount int
	Slices   int
}

func (d Descriptor) validate() error {
	if d.Format.BitsPerPixel() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, d.Format)
	}
	if d.Width < 1 || d.Height < 1 || d.Width > MaxDimension || d.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDescriptor, d.Width, d.Height)
	}
	if d.MipCount < 0 || d.MipCount > MaxMips || d.Slices < 0 || d.Slices > MaxDimension {
		return fmt.Errorf("%w: %d mips, %d slices", ErrInvalidDescriptor, d.MipCount, d.Slices)
	}
	return nil
}

func (d Descriptor) mips() int { return max(1, d.MipCount) }
func (d Descriptor) slices() int { return max(1, d.Slices) }

// Size returns the number of payload bytes d describes.
func (d Descriptor) Size() int {
	return TotalSize(d.Format, d.Width, d.Height, d.mips(), d.slices())
}

// Image is a decoded texture. Pixels are RGBA8 with straight alpha.
type Image struct {
	Width  int
	Height int
	Slices int
	Format Format
	Mips   []Mip
}

// Mip is one level of an Image. Pix holds Slices images of Width x Height
// pixels, one after the other, each row-major.
type Mip struct {
	Width  int
	Height int
	Pix    []byte
}

// SliceSize returns the byte size of one slice of m.
func (m Mip) SliceSize() int {
	return m.Width * m.Height * 4
}

// NRGBA returns slice s of m as an image sharing m's pixels.
func (m Mip) NRGBA(s int) *image.NRGBA {
	n := m.SliceSize()
	return &image.NRGBA{
		Pix:    m.Pix[s*n : (s+1)*n : (s+1)*n],
		Stride: m.Width * 4,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// NewImage returns a single-mip image of the given slices. All slices
// must have the bounds of the first.
func NewImage(slices ...image.Image) (*Image, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("%w: no slices", ErrInvalidDescriptor)
	}
	b := slices[0].Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDescriptor, w, h)
	}

	m := Mip{Width: w, Height: h, Pix: make([]byte, w*h*4*len(slices))}
	for s, src := range slices {
		if sb := src.Bounds(); sb.Dx() != w || sb.Dy() != h {
			return nil, fmt.Errorf("%w: slice %d is %dx%d, want %dx%d",
				ErrInvalidDescriptor, s, sb.Dx(), sb.Dy(), w, h)
		}
		copyImage(m.NRGBA(s), src)
	}
	return &Image{Width: w, Height: h, Slices: len(slices), Format: FormatR8G8B8A8, Mips: []Mip{m}}, nil
}

func copyImage(dst *image.NRGBA, src image.Image) {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			row := n.Pix[n.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], row)
		}
		return
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
}

type blockDecoder func(src []byte, out *block)

func blockDecoderFor(f Format) blockDecoder {
	switch f {
	case FormatBC1:
		return decodeBC1
	case FormatBC3:
		return decodeBC3
	case FormatBC4:
		return decodeBC4
	case FormatBC5:
		return decodeBC5
	case FormatBC7:
		return decodeBC7
	default:
		return nil
	}
}

// Decode expands raw into RGBA8 according to d. Mip levels are read in
// descending size order and array slices one after the other inside each
// level. Bytes past the described chain are ignored.
func Decode(raw []byte, d Descriptor) (*Image, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if need := d.Size(); len(raw) < need {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, have %d",
			ErrTruncatedBlockData, d.Format, d.Width, d.Height, need, len(raw))
	}

	img := &Image{
		Width:  d.Width,
		Height: d.Height,
		Slices: d.slices(),
		Format: d.Format,
		Mips:   make([]Mip, d.mips()),
	}

	off := 0
	for level := range img.Mips {
		w, h := MipDimensions(d.Width, d.Height, level)
		m := Mip{Width: w, Height: h, Pix: make([]byte, w*h*4*img.Slices)}
		size := MipSize(d.Format, d.Width, d.Height, level)
		for s := 0; s < img.Slices; s++ {
			decodeSurface(d.Format, raw[off:off+size], m.Pix[s*m.SliceSize():(s+1)*m.SliceSize()], w, h)
			off += size
		}
		img.Mips[level] = m
	}
	return img, nil
}

// decodeSurface decodes one w x h surface. src holds exactly the surface's bytes.
func decodeSurface(f Format, src, dst []byte, w, h int) {
	if dec := blockDecoderFor(f); dec != nil {
		decodeBlocks(dec, f.BlockSize(), src, dst, w, h)
		return
	}

	n := w * h
	switch f {
	case FormatR8G8B8A8:
		copy(dst, src[:n*4])
	case FormatR16G16B16A16:
		for i := 0; i < n*4; i++ {
			dst[i] = src[i*2+1]
		}
	case FormatR8G8:
		for i := 0; i < n; i++ {
			dst[i*4] = src[i*2]
			dst[i*4+1] = src[i*2+1]
			dst[i*4+2] = 0xFF
			dst[i*4+3] = 0xFF
		}
	case FormatA8:
		for i := 0; i < n; i++ {
			v := src[i]
			dst[i*4], dst[i*4+1], dst[i*4+2], dst[i*4+3] = v, v, v, 0xFF
		}
	}
}

func decodeBlocks(dec blockDecoder, blockSize int, src, dst []byte, w, h int) {
	bw, bh := max(1, (w+3)/4), max(1, (h+3)/4)
	var out block
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			i := (by*bw + bx) * blockSize
			dec(src[i:i+blockSize], &out)
			writeBlock(&out, dst, w, h, bx*4, by*4)
		}
	}
}

// writeBlock copies the part of a decoded block that lies inside the surface.
func writeBlock(b *block, dst []byte, w, h, x0, y0 int) {
	for y := 0; y < 4 && y0+y < h; y++ {
		cols := min(4, w-x0)
		row := ((y0+y)*w + x0) * 4
		copy(dst[row:row+cols*4], b[y*16:y*16+cols*4])
	}
}
