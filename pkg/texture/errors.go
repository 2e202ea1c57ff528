package texture

import "errors"

var (
	// ErrUnsupportedFormat is returned for pixel formats the codec does not handle.
	ErrUnsupportedFormat = errors.New("unsupported texture format")

	// ErrTruncatedBlockData is returned when the input holds fewer bytes
	// than the descriptor's mip chain requires.
	ErrTruncatedBlockData = errors.New("truncated texture block data")

	// ErrInvalidDescriptor is returned for zero or inconsistent dimensions.
	ErrInvalidDescriptor = errors.New("invalid texture descriptor")

	// ErrInvalidHeader is returned when a texture resource header cannot be parsed.
	ErrInvalidHeader = errors.New("invalid texture header")

	// ErrAtlasUnsupported is returned for texture headers that carry an atlas.
	ErrAtlasUnsupported = errors.New("texture atlases are not supported")
)
