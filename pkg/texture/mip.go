package texture

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/transform"
)

// GenerateMips returns a copy of img whose chain is rebuilt from the top
// level with a box filter. count is clamped to the longest chain the
// dimensions allow.
func GenerateMips(img *Image, count int) (*Image, error) {
	if img == nil || len(img.Mips) == 0 {
		return nil, fmt.Errorf("%w: image has no mips", ErrInvalidDescriptor)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: mip count %d", ErrInvalidDescriptor, count)
	}
	count = min(count, MaxMipCount(max(img.Width, img.Height)))

	slices := max(1, img.Slices)
	top := img.Mips[0]
	if len(top.Pix) != top.SliceSize()*slices {
		return nil, fmt.Errorf("%w: top mip has %d bytes", ErrInvalidDescriptor, len(top.Pix))
	}

	out := &Image{
		Width:  img.Width,
		Height: img.Height,
		Slices: slices,
		Format: img.Format,
		Mips:   make([]Mip, count),
	}
	out.Mips[0] = Mip{Width: top.Width, Height: top.Height, Pix: append([]byte(nil), top.Pix...)}

	for level := 1; level < count; level++ {
		prev := out.Mips[level-1]
		w, h := MipDimensions(img.Width, img.Height, level)
		m := Mip{Width: w, Height: h, Pix: make([]byte, 0, w*h*4*slices)}
		for s := 0; s < slices; s++ {
			resized := transform.Resize(straight(prev.NRGBA(s)), w, h, transform.Box)
			m.Pix = append(m.Pix, resized.Pix...)
		}
		out.Mips[level] = m
	}
	return out, nil
}

// straight views n as an *image.RGBA without converting it, so the filter
// averages the stored channel values and alpha stays unassociated.
func straight(n *image.NRGBA) *image.RGBA {
	return &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
}
