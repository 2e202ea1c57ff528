package texture

import "encoding/binary"

// block is one decoded 4x4 block, RGBA8, row-major.
type block [16 * 4]byte

// expand565 unpacks an RGB565 colour to 8 bits per channel.
func expand565(c uint16) [3]int {
	r := int(c>>11) & 0x1F
	g := int(c>>5) & 0x3F
	b := int(c) & 0x1F
	return [3]int{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2}
}

// colorPalette builds the four BC1 palette entries. When fourColor is false
// the third entry is the midpoint and the fourth is transparent black.
func colorPalette(c0, c1 uint16, fourColor bool) [4][4]uint8 {
	e0, e1 := expand565(c0), expand565(c1)

	var p [4][4]uint8
	for ch := 0; ch < 3; ch++ {
		p[0][ch] = uint8(e0[ch])
		p[1][ch] = uint8(e1[ch])
		if fourColor {
			p[2][ch] = uint8((2*e0[ch] + e1[ch]) / 3)
			p[3][ch] = uint8((e0[ch] + 2*e1[ch]) / 3)
		} else {
			p[2][ch] = uint8((e0[ch] + e1[ch]) / 2)
		}
	}
	p[0][3], p[1][3], p[2][3] = 255, 255, 255
	if fourColor {
		p[3][3] = 255
	}
	return p
}

// decodeColorBlock decodes the 8-byte colour half of a BC1/BC3 block.
// BC3 colour blocks always use four colours.
func decodeColorBlock(src []byte, out *block, forceFourColor bool) {
	c0 := binary.LittleEndian.Uint16(src[0:2])
	c1 := binary.LittleEndian.Uint16(src[2:4])
	indices := binary.LittleEndian.Uint32(src[4:8])

	palette := colorPalette(c0, c1, forceFourColor || c0 > c1)
	for i := 0; i < 16; i++ {
		copy(out[i*4:i*4+4], palette[indices>>(2*i)&3][:])
	}
}

// alphaPalette builds the eight BC3/BC4 palette entries.
func alphaPalette(a0, a1 uint8) [8]uint8 {
	var p [8]uint8
	p[0], p[1] = a0, a1
	v0, v1 := int(a0), int(a1)
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			p[i+1] = uint8((v0*(7-i) + v1*i) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			p[i+1] = uint8((v0*(5-i) + v1*i) / 5)
		}
		p[6], p[7] = 0, 255
	}
	return p
}

// decodeAlphaBlock decodes an 8-byte BC3 alpha / BC4 channel block into
// one channel of out.
func decodeAlphaBlock(src []byte, out *block, channel int) {
	palette := alphaPalette(src[0], src[1])
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(src[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		out[i*4+channel] = palette[bits>>(3*i)&7]
	}
}

func decodeBC1(src []byte, out *block) {
	decodeColorBlock(src, out, false)
}

func decodeBC3(src []byte, out *block) {
	decodeColorBlock(src[8:16], out, true)
	decodeAlphaBlock(src[0:8], out, 3)
}

// decodeBC4 decodes a single-channel block as opaque grey.
func decodeBC4(src []byte, out *block) {
	decodeAlphaBlock(src, out, 0)
	for i := 0; i < 16; i++ {
		out[i*4+1] = out[i*4]
		out[i*4+2] = out[i*4]
		out[i*4+3] = 255
	}
}

// decodeBC5 decodes a two-channel normal map block. Blue is set to full
// intensity, as the engine's tools export it.
func decodeBC5(src []byte, out *block) {
	decodeAlphaBlock(src[0:8], out, 0)
	decodeAlphaBlock(src[8:16], out, 1)
	for i := 0; i < 16; i++ {
		out[i*4+2] = 255
		out[i*4+3] = 255
	}
}
