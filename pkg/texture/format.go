// Package texture decodes and encodes the block-compressed pixel data of
// Glacier 2 texture resources.
//
// Payloads hold the mip chain largest level first; each level holds every
// array slice in turn. Decoded images are RGBA8. The texture header of each
// engine generation is parsed by ParseHeader, and WriteDDS wraps payloads
// in a DDS container for external tools.
package texture

import (
	"fmt"
	"math"
)

// Format is the engine's pixel format enumeration.
type Format uint16

const (
	FormatUnknown      Format = 0x00
	FormatR16G16B16A16 Format = 0x0A
	FormatR8G8B8A8     Format = 0x1C
	FormatR8G8         Format = 0x34 // two-channel normals
	FormatA8           Format = 0x42 // 8-bit grey, uncompressed
	FormatBC1          Format = 0x49 // DXT1
	FormatBC3          Format = 0x4F // DXT5
	FormatBC4          Format = 0x52
	FormatBC5          Format = 0x55
	FormatBC7          Format = 0x5A
)

// MaxDimension is the largest width, height or slice count a texture can
// declare; the header fields are 16 bits wide.
const MaxDimension = 1<<16 - 1

// MaxMips is the largest number of mip levels a texture header can describe.
const MaxMips = 14

// ParseFormat validates a raw format value.
func ParseFormat(v uint16) (Format, error) {
	f := Format(v)
	if f.BitsPerPixel() == 0 {
		return FormatUnknown, fmt.Errorf("%w: 0x%02X", ErrUnsupportedFormat, v)
	}
	return f, nil
}

func (f Format) String() string {
	switch f {
	case FormatR16G16B16A16:
		return "R16G16B16A16"
	case FormatR8G8B8A8:
		return "R8G8B8A8"
	case FormatR8G8:
		return "R8G8"
	case FormatA8:
		return "A8"
	case FormatBC1:
		return "BC1"
	case FormatBC3:
		return "BC3"
	case FormatBC4:
		return "BC4"
	case FormatBC5:
		return "BC5"
	case FormatBC7:
		return "BC7"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint16(f))
	}
}

// BitsPerPixel returns the storage cost of one pixel, or 0 for unknown formats.
func (f Format) BitsPerPixel() int {
	switch f {
	case FormatR16G16B16A16:
		return 64
	case FormatR8G8B8A8:
		return 32
	case FormatR8G8:
		return 16
	case FormatA8, FormatBC3, FormatBC5, FormatBC7:
		return 8
	case FormatBC1, FormatBC4:
		return 4
	default:
		return 0
	}
}

// Compressed reports whether f stores 4x4 pixel blocks.
func (f Format) Compressed() bool {
	return f.BlockSize() != 0
}

// BlockSize returns the size of one 4x4 block, or 0 for uncompressed formats.
func (f Format) BlockSize() int {
	switch f {
	case FormatBC1, FormatBC4:
		return 8
	case FormatBC3, FormatBC5, FormatBC7:
		return 16
	default:
		return 0
	}
}

// MipDimensions returns the size of mip level of a width x height texture.
func MipDimensions(width, height, level int) (int, int) {
	return max(1, width>>level), max(1, height>>level)
}

// Pitch returns the byte size of one row (of pixels or of blocks) and of
// one whole image of the given size.
func Pitch(f Format, width, height int) (pitch, slice int) {
	if bs := f.BlockSize(); bs != 0 {
		bw := max(1, (width+3)/4)
		bh := max(1, (height+3)/4)
		pitch = bw * bs
		return pitch, pitch * bh
	}
	pitch = (width*f.BitsPerPixel() + 7) / 8
	return pitch, pitch * height
}

// MipSize returns the byte size of one slice of mip level.
func MipSize(f Format, width, height, level int) int {
	w, h := MipDimensions(width, height, level)
	_, slice := Pitch(f, w, h)
	return slice
}

// TotalSize returns the byte size of mips levels of slices slices.
func TotalSize(f Format, width, height, mips, slices int) int {
	var size int
	for level := 0; level < mips; level++ {
		size += MipSize(f, width, height, level)
	}
	return size * max(1, slices)
}

// MaxMipCount returns the longest mip chain the engine stores for a texture
// of the given width.
func MaxMipCount(width int) int {
	if width < 1 {
		return 1
	}
	return min(1+int(math.Floor(math.Log2(float64(width)))), MaxMips)
}

// ScaleFactor returns the factor by which the engine shrinks the low
// resolution copy of a texture whose full size is width x height.
func ScaleFactor(width, height int) int {
	area := float64(width * height)
	if area < 1<<15 || area > 1<<24 {
		return 1
	}
	return 1 << int(math.Floor((math.Log2(area)-13)/2))
}
