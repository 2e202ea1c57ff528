package texture

import "encoding/binary"

// bc7Mode describes the bit layout of one BC7 block mode.
type bc7Mode struct {
	subsets       int
	partitionBits int
	rotationBits  int
	selectorBits  int
	colorBits     int
	alphaBits     int
	endpointPBits int
	sharedPBits   int
	indexBits     int
	index2Bits    int
}

var bc7Modes = [8]bc7Mode{
	{subsets: 3, partitionBits: 4, colorBits: 4, endpointPBits: 1, indexBits: 3},
	{subsets: 2, partitionBits: 6, colorBits: 6, sharedPBits: 1, indexBits: 3},
	{subsets: 3, partitionBits: 6, colorBits: 5, indexBits: 2},
	{subsets: 2, partitionBits: 6, colorBits: 7, endpointPBits: 1, indexBits: 2},
	{subsets: 1, rotationBits: 2, selectorBits: 1, colorBits: 5, alphaBits: 6, indexBits: 2, index2Bits: 3},
	{subsets: 1, rotationBits: 2, colorBits: 7, alphaBits: 8, indexBits: 2, index2Bits: 2},
	{subsets: 1, colorBits: 7, alphaBits: 7, endpointPBits: 1, indexBits: 4},
	{subsets: 2, partitionBits: 6, colorBits: 5, alphaBits: 5, endpointPBits: 1, indexBits: 2},
}

var (
	bc7Weights2 = []int{0, 21, 43, 64}
	bc7Weights3 = []int{0, 9, 18, 27, 37, 46, 55, 64}
	bc7Weights4 = []int{0, 4, 9, 13, 17, 21, 26, 30, 34, 38, 43, 47, 51, 55, 60, 64}
)

func bc7Weights(bits int) []int {
	switch bits {
	case 2:
		return bc7Weights2
	case 3:
		return bc7Weights3
	default:
		return bc7Weights4
	}
}

// Subset masks for two-subset partitions: bit i set means pixel i belongs
// to subset 1.
var bc7Partition2 = [64]uint16{
	0xCCCC, 0x8888, 0xEEEE, 0xECC8, 0xC880, 0xFEEC, 0xFEC8, 0xEC80,
	0xC800, 0xFFEC, 0xFE80, 0xE800, 0xFFE8, 0xFF00, 0xFFF0, 0xF000,
	0xF710, 0x008E, 0x7100, 0x08CE, 0x008C, 0x7310, 0x3100, 0x8CCE,
	0x088C, 0x3110, 0x6666, 0x366C, 0x17E8, 0x0FF0, 0x718E, 0x399C,
	0xAAAA, 0xF0F0, 0x5A5A, 0x33CC, 0x3C3C, 0x55AA, 0x9696, 0xA55A,
	0x73CE, 0x13C8, 0x324C, 0x3BDC, 0x6996, 0xC33C, 0x9966, 0x0660,
	0x0272, 0x04E4, 0x4E40, 0x2720, 0xC936, 0x936C, 0x39C6, 0x639C,
	0x9336, 0x9CC6, 0x817E, 0xE718, 0xCCF0, 0x0FCC, 0x7744, 0xEE22,
}

// Subset numbers for three-subset partitions, two bits per pixel.
var bc7Partition3 = [64]uint32{
	0xAA685050, 0x6A5A5040, 0x5A5A4200, 0x5450A0A8, 0xA5A50000, 0xA0A05050, 0x5555A0A0, 0x5A5A5050,
	0xAA550000, 0xAA555500, 0xAAAA5500, 0x90909090, 0x94949494, 0xA4A4A4A4, 0xA9A59450, 0x2A0A4250,
	0xA5945040, 0x0A425054, 0xA5A5A500, 0x55A0A0A0, 0xA8A85454, 0x6A6A4040, 0xA4A45000, 0x1A1A0500,
	0x0050A4A4, 0xAAA59090, 0x14696914, 0x69691400, 0xA08585A0, 0xAA821414, 0x50A4A450, 0x6A5A0200,
	0xA9A58000, 0x5090A0A8, 0xA8A09050, 0x24242424, 0x00AA5500, 0x24924924, 0x24499224, 0x50A50A50,
	0x500AA550, 0xAAAA4444, 0x66660000, 0xA5A0A5A0, 0x50A050A0, 0x69286928, 0x44AAAA44, 0x66666600,
	0xAA444444, 0x54A854A8, 0x95809580, 0x96969600, 0xA85454A8, 0x80959580, 0xAA141414, 0x96960000,
	0xAAAA1414, 0xA05050A0, 0xA0A5A5A0, 0x96000000, 0x40804080, 0xA9A8A9A8, 0xAAAAAA44, 0x2A4A5254,
}

// Anchor pixels of the second (and third) subset. Pixel 0 anchors subset 0.
var bc7Anchor2 = [64]uint8{
	15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15,
	15, 2, 8, 2, 2, 8, 8, 15, 2, 8, 2, 2, 8, 8, 2, 2,
	15, 15, 6, 8, 2, 8, 15, 15, 2, 8, 2, 2, 2, 15, 15, 6,
	6, 2, 6, 8, 15, 15, 2, 2, 15, 15, 15, 15, 15, 2, 2, 15,
}

var bc7Anchor3a = [64]uint8{
	3, 3, 15, 15, 8, 3, 15, 15, 8, 8, 6, 6, 6, 5, 3, 3,
	3, 3, 8, 15, 3, 3, 6, 10, 5, 8, 8, 6, 8, 5, 15, 15,
	8, 15, 3, 5, 6, 10, 8, 15, 15, 3, 15, 5, 15, 15, 15, 15,
	3, 15, 5, 5, 5, 8, 5, 10, 5, 10, 8, 13, 15, 12, 3, 3,
}

var bc7Anchor3b = [64]uint8{
	15, 8, 8, 3, 15, 15, 3, 8, 15, 15, 15, 15, 15, 15, 15, 8,
	15, 8, 15, 3, 15, 8, 15, 8, 3, 15, 6, 10, 15, 15, 10, 8,
	15, 3, 15, 10, 10, 8, 9, 10, 6, 15, 8, 15, 3, 6, 6, 8,
	15, 3, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 3, 15, 15, 8,
}

type bitReader struct {
	lo, hi uint64
	pos    int
}

func (r *bitReader) read(n int) int {
	var v int
	for i := 0; i < n; i++ {
		var bit uint64
		if r.pos < 64 {
			bit = r.lo >> r.pos & 1
		} else {
			bit = r.hi >> (r.pos - 64) & 1
		}
		v |= int(bit) << i
		r.pos++
	}
	return v
}

func bc7Subset(subsets, partition, pixel int) int {
	switch subsets {
	case 2:
		return int(bc7Partition2[partition] >> pixel & 1)
	case 3:
		return int(bc7Partition3[partition] >> (2 * pixel) & 3)
	default:
		return 0
	}
}

func bc7IsAnchor(subsets, partition, pixel int) bool {
	switch {
	case pixel == 0:
		return true
	case subsets == 2:
		return pixel == int(bc7Anchor2[partition])
	case subsets == 3:
		return pixel == int(bc7Anchor3a[partition]) || pixel == int(bc7Anchor3b[partition])
	default:
		return false
	}
}

func bc7Interpolate(e0, e1, weight int) int {
	return ((64-weight)*e0 + weight*e1 + 32) >> 6
}

func unquantize(v, bits int) int {
	if bits >= 8 {
		return v
	}
	v <<= 8 - bits
	return v | v>>bits
}

// decodeBC7 decodes one 16-byte BC7 block. Reserved mode bytes decode to
// transparent black.
func decodeBC7(src []byte, out *block) {
	r := bitReader{
		lo: binary.LittleEndian.Uint64(src[0:8]),
		hi: binary.LittleEndian.Uint64(src[8:16]),
	}

	mode := 0
	for mode < 8 && r.read(1) == 0 {
		mode++
	}
	if mode == 8 {
		clear(out[:])
		return
	}
	m := bc7Modes[mode]

	partition := r.read(m.partitionBits)
	rotation := r.read(m.rotationBits)
	selector := r.read(m.selectorBits)

	// endpoints[subset][endpoint][channel]
	var endpoints [3][2][4]int
	for ch := 0; ch < 3; ch++ {
		for s := 0; s < m.subsets; s++ {
			endpoints[s][0][ch] = r.read(m.colorBits)
			endpoints[s][1][ch] = r.read(m.colorBits)
		}
	}
	if m.alphaBits > 0 {
		for s := 0; s < m.subsets; s++ {
			endpoints[s][0][3] = r.read(m.alphaBits)
			endpoints[s][1][3] = r.read(m.alphaBits)
		}
	}

	colorBits, alphaBits := m.colorBits, m.alphaBits
	switch {
	case m.endpointPBits > 0:
		for s := 0; s < m.subsets; s++ {
			for e := 0; e < 2; e++ {
				p := r.read(1)
				for ch := 0; ch < 4; ch++ {
					endpoints[s][e][ch] = endpoints[s][e][ch]<<1 | p
				}
			}
		}
		colorBits++
		if alphaBits > 0 {
			alphaBits++
		}
	case m.sharedPBits > 0:
		for s := 0; s < m.subsets; s++ {
			p := r.read(1)
			for e := 0; e < 2; e++ {
				for ch := 0; ch < 4; ch++ {
					endpoints[s][e][ch] = endpoints[s][e][ch]<<1 | p
				}
			}
		}
		colorBits++
	}

	for s := 0; s < m.subsets; s++ {
		for e := 0; e < 2; e++ {
			for ch := 0; ch < 3; ch++ {
				endpoints[s][e][ch] = unquantize(endpoints[s][e][ch], colorBits)
			}
			if alphaBits > 0 {
				endpoints[s][e][3] = unquantize(endpoints[s][e][3], alphaBits)
			} else {
				endpoints[s][e][3] = 255
			}
		}
	}

	var indices, indices2 [16]int
	for i := 0; i < 16; i++ {
		bits := m.indexBits
		if bc7IsAnchor(m.subsets, partition, i) {
			bits--
		}
		indices[i] = r.read(bits)
	}
	if m.index2Bits > 0 {
		for i := 0; i < 16; i++ {
			bits := m.index2Bits
			if i == 0 {
				bits--
			}
			indices2[i] = r.read(bits)
		}
	}

	for i := 0; i < 16; i++ {
		ep := &endpoints[bc7Subset(m.subsets, partition, i)]

		colorWeight := bc7Weights(m.indexBits)[indices[i]]
		alphaWeight := colorWeight
		if m.index2Bits > 0 {
			alphaWeight = bc7Weights(m.index2Bits)[indices2[i]]
			if selector == 1 {
				colorWeight = bc7Weights(m.index2Bits)[indices2[i]]
				alphaWeight = bc7Weights(m.indexBits)[indices[i]]
			}
		}

		var c [4]int
		for ch := 0; ch < 3; ch++ {
			c[ch] = bc7Interpolate(ep[0][ch], ep[1][ch], colorWeight)
		}
		c[3] = bc7Interpolate(ep[0][3], ep[1][3], alphaWeight)

		switch rotation {
		case 1:
			c[0], c[3] = c[3], c[0]
		case 2:
			c[1], c[3] = c[3], c[1]
		case 3:
			c[2], c[3] = c[3], c[2]
		}

		for ch := 0; ch < 4; ch++ {
			out[i*4+ch] = uint8(c[ch])
		}
	}
}
