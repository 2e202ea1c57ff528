package texture

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EncodeOption configures Encode.
type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	workers int
}

// WithWorkers bounds the number of goroutines Encode uses. n < 1 means
// GOMAXPROCS.
func WithWorkers(n int) EncodeOption {
	return func(c *encodeConfig) {
		c.workers = n
	}
}

// Encodable reports whether Encode can produce f.
func Encodable(f Format) bool {
	switch f {
	case FormatBC1, FormatBC3, FormatBC4, FormatBC5,
		FormatR8G8B8A8, FormatR8G8, FormatA8, FormatR16G16B16A16:
		return true
	default:
		return false
	}
}

// Encode stores every mip and slice of img in the target format, laid out
// the way Decode reads it.
//
// Block formats are lossy. Each block takes its colour endpoints from the
// extremes of the block's pixels projected on their principal axis, and
// each pixel the palette entry with the smallest squared Euclidean error.
// BC1 evaluates both the four-colour and the three-colour palette, alpha
// and BC4/BC5 channels both the eight-value and the six-value palette; the
// candidate with the lower total squared error is written. BC4 stores the
// red channel and BC5 the red and green channels.
//
// Block rows are encoded in parallel.
func Encode(img *Image, target Format, opts ...EncodeOption) ([]byte, error) {
	cfg := encodeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}

	if !Encodable(target) {
		return nil, fmt.Errorf("%w: cannot encode %s", ErrUnsupportedFormat, target)
	}
	if err := checkImage(img); err != nil {
		return nil, err
	}

	slices := max(1, img.Slices)
	out := make([]byte, TotalSize(target, img.Width, img.Height, len(img.Mips), slices))

	var g errgroup.Group
	g.SetLimit(cfg.workers)

	off := 0
	for level, m := range img.Mips {
		size := MipSize(target, img.Width, img.Height, level)
		for s := 0; s < slices; s++ {
			src := m.Pix[s*m.SliceSize() : (s+1)*m.SliceSize()]
			dst := out[off : off+size]
			off += size

			if !target.Compressed() {
				g.Go(func() error {
					encodeLinear(target, src, dst, m.Width*m.Height)
					return nil
				})
				continue
			}

			pitch, _ := Pitch(target, m.Width, m.Height)
			rows := max(1, (m.Height+3)/4)
			for by := 0; by < rows; by++ {
				row := dst[by*pitch : (by+1)*pitch]
				g.Go(func() error {
					encodeBlockRow(target, src, row, m.Width, m.Height, by)
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkImage(img *Image) error {
	if img == nil || len(img.Mips) == 0 {
		return fmt.Errorf("%w: image has no mips", ErrInvalidDescriptor)
	}
	if img.Width < 1 || img.Height < 1 || len(img.Mips) > MaxMips {
		return fmt.Errorf("%w: %dx%d with %d mips", ErrInvalidDescriptor, img.Width, img.Height, len(img.Mips))
	}
	slices := max(1, img.Slices)
	for level, m := range img.Mips {
		w, h := MipDimensions(img.Width, img.Height, level)
		if m.Width != w || m.Height != h {
			return fmt.Errorf("%w: mip %d is %dx%d, want %dx%d", ErrInvalidDescriptor, level, m.Width, m.Height, w, h)
		}
		if len(m.Pix) != m.SliceSize()*slices {
			return fmt.Errorf("%w: mip %d has %d bytes, want %d", ErrInvalidDescriptor, level, len(m.Pix), m.SliceSize()*slices)
		}
	}
	return nil
}

func encodeLinear(f Format, src, dst []byte, n int) {
	switch f {
	case FormatR8G8B8A8:
		copy(dst, src)
	case FormatR16G16B16A16:
		for i := 0; i < n*4; i++ {
			dst[i*2] = src[i]
			dst[i*2+1] = src[i]
		}
	case FormatR8G8:
		for i := 0; i < n; i++ {
			dst[i*2] = src[i*4]
			dst[i*2+1] = src[i*4+1]
		}
	case FormatA8:
		for i := 0; i < n; i++ {
			dst[i] = src[i*4]
		}
	}
}

func encodeBlockRow(f Format, src, dst []byte, w, h, by int) {
	bs := f.BlockSize()
	for bx := 0; bx*bs < len(dst); bx++ {
		px := readBlock(src, w, h, bx*4, by*4)
		out := dst[bx*bs : (bx+1)*bs]
		switch f {
		case FormatBC1:
			encodeColorBlock(&px, out, true)
		case FormatBC3:
			encodeAlphaBlock(&px, out[0:8], 3)
			encodeColorBlock(&px, out[8:16], false)
		case FormatBC4:
			encodeAlphaBlock(&px, out, 0)
		case FormatBC5:
			encodeAlphaBlock(&px, out[0:8], 0)
			encodeAlphaBlock(&px, out[8:16], 1)
		}
	}
}

// readBlock gathers the 4x4 block at x0, y0, repeating the last row and
// column for blocks that overhang the surface.
func readBlock(src []byte, w, h, x0, y0 int) block {
	var b block
	for y := 0; y < 4; y++ {
		sy := min(y0+y, h-1)
		for x := 0; x < 4; x++ {
			sx := min(x0+x, w-1)
			copy(b[(y*4+x)*4:(y*4+x)*4+4], src[(sy*w+sx)*4:])
		}
	}
	return b
}

// transparentAlpha is the alpha below which BC1 stores a pixel as transparent.
const transparentAlpha = 128

// encodeColorBlock writes the 8-byte colour half of a BC1/BC3 block. The
// three-colour palette is only considered when threeColor is set, and is
// required when the block holds transparent pixels.
func encodeColorBlock(px *block, dst []byte, threeColor bool) {
	var opaque [][3]float64
	transparent := false
	for i := 0; i < 16; i++ {
		if threeColor && px[i*4+3] < transparentAlpha {
			transparent = true
			continue
		}
		opaque = append(opaque, [3]float64{float64(px[i*4]), float64(px[i*4+1]), float64(px[i*4+2])})
	}

	if len(opaque) == 0 {
		binary.LittleEndian.PutUint16(dst[0:2], 0)
		binary.LittleEndian.PutUint16(dst[2:4], 0)
		binary.LittleEndian.PutUint32(dst[4:8], 0xFFFFFFFF)
		return
	}

	lo, hi := principalExtremes(opaque)
	a, b := quantize565(lo), quantize565(hi)
	if a > b {
		a, b = b, a
	}

	type candidate struct {
		c0, c1  uint16
		indices uint32
		sse     int
	}
	var best *candidate
	try := func(c0, c1 uint16, four bool) {
		indices, sse := colorIndices(px, colorPalette(c0, c1, four || !threeColor), four || !threeColor, threeColor)
		if best == nil || sse < best.sse {
			best = &candidate{c0, c1, indices, sse}
		}
	}

	if !threeColor {
		try(b, a, true)
	} else {
		if !transparent && b > a {
			try(b, a, true)
		}
		try(a, b, false)
	}

	binary.LittleEndian.PutUint16(dst[0:2], best.c0)
	binary.LittleEndian.PutUint16(dst[2:4], best.c1)
	binary.LittleEndian.PutUint32(dst[4:8], best.indices)
}

// colorIndices picks the palette entry of each pixel. In three-colour mode
// entry 3 is reserved for transparent pixels.
func colorIndices(px *block, palette [4][4]uint8, four, alphaAware bool) (uint32, int) {
	var indices uint32
	total := 0
	entries := 4
	if !four {
		entries = 3
	}
	for i := 0; i < 16; i++ {
		if !four && alphaAware && px[i*4+3] < transparentAlpha {
			indices |= 3 << (2 * i)
			continue
		}
		bestIdx, bestErr := 0, math.MaxInt
		for j := 0; j < entries; j++ {
			e := 0
			for ch := 0; ch < 3; ch++ {
				d := int(px[i*4+ch]) - int(palette[j][ch])
				e += d * d
			}
			if e < bestErr {
				bestIdx, bestErr = j, e
			}
		}
		indices |= uint32(bestIdx) << (2 * i)
		total += bestErr
	}
	return indices, total
}

// principalExtremes returns the two points of the set that lie furthest
// apart along its principal axis.
func principalExtremes(pts [][3]float64) (lo, hi [3]float64) {
	var mean [3]float64
	for _, p := range pts {
		for ch := 0; ch < 3; ch++ {
			mean[ch] += p[ch]
		}
	}
	for ch := 0; ch < 3; ch++ {
		mean[ch] /= float64(len(pts))
	}

	var cov [3][3]float64
	for _, p := range pts {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov[i][j] += (p[i] - mean[i]) * (p[j] - mean[j])
			}
		}
	}

	axis := principalAxis(&cov)

	minT, maxT := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		t := (p[0]-mean[0])*axis[0] + (p[1]-mean[1])*axis[1] + (p[2]-mean[2])*axis[2]
		if t < minT {
			minT, lo = t, p
		}
		if t > maxT {
			maxT, hi = t, p
		}
	}
	return lo, hi
}

// principalAxis runs a power iteration on cov. It starts from the
// covariance row with the largest norm, which is never orthogonal to the
// dominant eigenvector unless the covariance is zero, and falls back to the
// channel with the largest variance when the iteration collapses.
func principalAxis(cov *[3][3]float64) [3]float64 {
	var axis [3]float64
	best, widest := -1.0, 0
	for i := 0; i < 3; i++ {
		n := cov[i][0]*cov[i][0] + cov[i][1]*cov[i][1] + cov[i][2]*cov[i][2]
		if n > best {
			best, axis = n, cov[i]
		}
		if cov[i][i] > cov[widest][widest] {
			widest = i
		}
	}

	fallback := [3]float64{}
	fallback[widest] = 1
	if best <= 0 {
		return fallback
	}

	for iter := 0; iter < 8; iter++ {
		var next [3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				next[i] += cov[i][j] * axis[j]
			}
		}
		n := math.Sqrt(next[0]*next[0] + next[1]*next[1] + next[2]*next[2])
		if n == 0 || math.IsNaN(n) {
			return fallback
		}
		for i := 0; i < 3; i++ {
			axis[i] = next[i] / n
		}
	}
	return axis
}

func quantize565(c [3]float64) uint16 {
	q := func(v float64, bits int) uint16 {
		limit := float64(int(1)<<bits - 1)
		return uint16(math.Round(min(255, max(0, v)) * limit / 255))
	}
	return q(c[0], 5)<<11 | q(c[1], 6)<<5 | q(c[2], 5)
}

// encodeAlphaBlock writes an 8-byte BC3 alpha / BC4 channel block for one
// channel of px.
func encodeAlphaBlock(px *block, dst []byte, channel int) {
	var values [16]uint8
	mn, mx := uint8(255), uint8(0)
	inner := false
	innerMin, innerMax := uint8(255), uint8(0)
	for i := range values {
		v := px[i*4+channel]
		values[i] = v
		mn, mx = min(mn, v), max(mx, v)
		if v != 0 && v != 255 {
			inner = true
			innerMin, innerMax = min(innerMin, v), max(innerMax, v)
		}
	}

	bestA0, bestA1 := uint8(0), uint8(0)
	var bestBits uint64
	bestErr := math.MaxInt
	try := func(a0, a1 uint8) {
		bits, e := alphaIndices(&values, alphaPalette(a0, a1))
		if e < bestErr {
			bestA0, bestA1, bestBits, bestErr = a0, a1, bits, e
		}
	}

	if mx > mn {
		try(mx, mn)
	}
	if inner {
		try(innerMin, innerMax)
	} else {
		try(0, 0)
	}

	dst[0], dst[1] = bestA0, bestA1
	for i := 0; i < 6; i++ {
		dst[2+i] = uint8(bestBits >> (8 * i))
	}
}

func alphaIndices(values *[16]uint8, palette [8]uint8) (uint64, int) {
	var bits uint64
	total := 0
	for i, v := range values {
		bestIdx, bestErr := 0, math.MaxInt
		for j, p := range palette {
			d := int(v) - int(p)
			if d*d < bestErr {
				bestIdx, bestErr = j, d*d
			}
		}
		bits |= uint64(bestIdx) << (3 * i)
		total += bestErr
	}
	return bits, total
}
