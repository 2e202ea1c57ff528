package texture

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/goopsie/glacierFileTools/pkg/codec"
)

// Version selects the engine generation whose texture header layout to parse.
type Version uint8

const (
	H2016 Version = iota
	H2
	H3
)

func (v Version) String() string {
	switch v {
	case H2016:
		return "H2016"
	case H2:
		return "H2"
	case H3:
		return "H3"
	default:
		return fmt.Sprintf("Version(%d)", uint8(v))
	}
}

// ParseVersion parses a version name as written by String, in any case.
func ParseVersion(s string) (Version, error) {
	for _, v := range []Version{H2016, H2, H3} {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown texture version %q", s)
}

// Kind is the usage class stored in a texture header.
type Kind uint16

const (
	KindColour Kind = iota
	KindNormal
	KindHeight
	KindCompoundNormal
)

func (k Kind) String() string {
	switch k {
	case KindColour:
		return "colour"
	case KindNormal:
		return "normal"
	case KindHeight:
		return "height"
	case KindCompoundNormal:
		return "compound-normal"
	default:
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
}

// Header layout sizes, pixels follow immediately.
const (
	headerSizeH2016 = 91
	headerSizeH2    = 144
	headerSizeH3    = 152

	headerMagic = 1
	texdMarker  = 0x4000
)

// Header is a parsed texture resource header.
type Header struct {
	Version       Version
	Kind          Kind
	Flags         uint32
	FileSize      uint32
	InterpretAs   uint8
	Interpolation uint16
	DefaultMip    uint8

	// Descriptor describes Pixels. Its dimensions are those of the stored
	// image, which for low resolution copies is smaller than the header's.
	Descriptor Descriptor
	Pixels     []byte
}

// HeaderOption configures ParseHeader.
type HeaderOption func(*headerConfig)

type headerConfig struct {
	isTexD bool
	texd   []byte
}

// IsTexD marks an H2016 or H2 resource as the full resolution texture
// data rather than the low resolution copy.
func IsTexD() HeaderOption {
	return func(c *headerConfig) {
		c.isTexD = true
	}
}

// WithTexD supplies the H3 full resolution data resource belonging to the header.
func WithTexD(texd []byte) HeaderOption {
	return func(c *headerConfig) {
		c.texd = texd
	}
}

// ParseHeader parses a texture resource of the given engine version and
// returns the header with its pixel payload.
func ParseHeader(data []byte, version Version, opts ...HeaderOption) (*Header, error) {
	var cfg headerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var size int
	switch version {
	case H2016:
		size = headerSizeH2016
	case H2:
		size = headerSizeH2
	case H3:
		size = headerSizeH3
	default:
		return nil, fmt.Errorf("%w: unknown version %d", ErrInvalidHeader, version)
	}
	if len(data) < size {
		return nil, fmt.Errorf("%w: %s header needs %d bytes, have %d", ErrInvalidHeader, version, size, len(data))
	}

	le := binary.LittleEndian
	if magic := le.Uint16(data[0:2]); magic != headerMagic {
		return nil, fmt.Errorf("%w: magic %d", ErrInvalidHeader, magic)
	}
	kind := Kind(le.Uint16(data[2:4]))
	if kind > KindCompoundNormal {
		return nil, fmt.Errorf("%w: texture kind %d", ErrInvalidHeader, kind)
	}

	h := &Header{Version: version, Kind: kind}
	var err error
	switch version {
	case H2016:
		err = h.parseH2016(data, cfg)
	case H2:
		err = h.parseH2(data, cfg)
	default:
		err = h.parseH3(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s texture header: %w", version, err)
	}
	return h, nil
}

func (h *Header) parseH2016(data []byte, cfg headerConfig) error {
	le := binary.LittleEndian
	isTexD := le.Uint32(data[4:8]) == texdMarker && cfg.isTexD
	h.FileSize = le.Uint32(data[8:12])
	h.Flags = le.Uint32(data[12:16])
	w, hgt := int(le.Uint16(data[16:18])), int(le.Uint16(data[18:20]))
	format, err := ParseFormat(le.Uint16(data[20:22]))
	if err != nil {
		return err
	}
	mips := int(data[22])
	h.DefaultMip = data[23]
	h.InterpretAs = data[24]
	if data[25] != 0 {
		return fmt.Errorf("%w: dimensions %d", ErrInvalidHeader, data[25])
	}
	h.Interpolation = uint16(data[26])
	// 14 mip sizes at 27
	if atlas := le.Uint32(data[83:87]); atlas != 0 {
		return fmt.Errorf("%w: %d byte atlas", ErrAtlasUnsupported, atlas)
	}

	if !isTexD {
		sf := ScaleFactor(w, hgt)
		w, hgt = w/sf, hgt/sf
	}
	return h.setPixels(format, w, hgt, mips, data[headerSizeH2016:])
}

func (h *Header) parseH2(data []byte, cfg headerConfig) error {
	le := binary.LittleEndian
	h.FileSize = le.Uint32(data[4:8])
	h.Flags = le.Uint32(data[8:12])
	w, hgt := int(le.Uint16(data[12:14])), int(le.Uint16(data[14:16]))
	format, err := ParseFormat(le.Uint16(data[16:18]))
	if err != nil {
		return err
	}
	mips := int(data[18])
	h.DefaultMip = data[19]
	if le.Uint32(data[20:24]) == texdMarker && !cfg.isTexD {
		sf := ScaleFactor(w, hgt)
		w, hgt = w/sf, hgt/sf
	}
	// 14 mip sizes and 14 block sizes at 24
	if atlas := le.Uint32(data[136:140]); atlas != 0 {
		return fmt.Errorf("%w: %d byte atlas", ErrAtlasUnsupported, atlas)
	}
	return h.setPixels(format, w, hgt, mips, data[headerSizeH2:])
}

func (h *Header) parseH3(data []byte, cfg headerConfig) error {
	le := binary.LittleEndian
	h.FileSize = le.Uint32(data[4:8])
	h.Flags = le.Uint32(data[8:12])
	w, hgt := int(le.Uint16(data[12:14])), int(le.Uint16(data[14:16]))
	format, err := ParseFormat(le.Uint16(data[16:18]))
	if err != nil {
		return err
	}
	mips := int(data[18])
	h.DefaultMip = data[19]
	h.InterpretAs = data[20]
	h.Interpolation = le.Uint16(data[22:24])

	textureSize := int(le.Uint32(data[24:28]))
	compressedSize := int(le.Uint32(data[80:84]))
	if atlas := le.Uint32(data[136:140]); atlas != 0 {
		return fmt.Errorf("%w: %d byte atlas", ErrAtlasUnsupported, atlas)
	}
	widthSF, heightSF := scaleShift(data[145]), scaleShift(data[146])
	textMips := int(data[147])
	pixels := data[headerSizeH3:]

	switch {
	case cfg.texd != nil:
		if compressedSize > len(cfg.texd) {
			return fmt.Errorf("%w: texture data holds %d bytes, header declares %d",
				ErrTruncatedBlockData, len(cfg.texd), compressedSize)
		}
		out, err := codec.Decompress(cfg.texd[:compressedSize], textureSize)
		if err != nil {
			return fmt.Errorf("decompress texture data: %w", err)
		}
		return h.setPixels(format, w, hgt, mips, out)

	case textureSize != compressedSize:
		if widthSF != 0 && heightSF != 0 {
			w, hgt = w/widthSF, hgt/heightSF
		}
		textMips = max(1, textMips)
		if w < 1 || hgt < 1 {
			return fmt.Errorf("%w: %dx%d", ErrInvalidDescriptor, w, hgt)
		}
		out, err := codec.Decompress(pixels, TotalSize(format, w, hgt, textMips, 1))
		if err != nil {
			return fmt.Errorf("decompress texture: %w", err)
		}
		return h.setPixels(format, w, hgt, textMips, out)

	default:
		if textureSize > len(pixels) {
			return fmt.Errorf("%w: payload holds %d bytes, header declares %d",
				ErrTruncatedBlockData, len(pixels), textureSize)
		}
		return h.setPixels(format, w, hgt, mips, pixels[:textureSize])
	}
}

// scaleShift decodes an H3 scale exponent.
func scaleShift(n uint8) int {
	if n == 0 {
		return 0
	}
	return 2 << (n - 1)
}

// setPixels records the descriptor and the part of pixels it covers. A
// payload too short for the declared mip chain is described as its top
// level only.
func (h *Header) setPixels(format Format, w, hgt, mips int, pixels []byte) error {
	d := Descriptor{Format: format, Width: w, Height: hgt, MipCount: max(1, min(mips, MaxMips)), Slices: 1}
	if err := d.validate(); err != nil {
		return err
	}
	if len(pixels) < d.Size() {
		d.MipCount = 1
	}
	if need := d.Size(); len(pixels) < need {
		return fmt.Errorf("%w: %s %dx%d needs %d bytes, have %d",
			ErrTruncatedBlockData, format, w, hgt, need, len(pixels))
	}
	h.Descriptor = d
	h.Pixels = pixels[:d.Size():d.Size()]
	return nil
}
