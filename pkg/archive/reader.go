package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/DataDog/zstd"

	"github.com/goopsie/glacierFileTools/pkg/codec"
)

// DefaultCompressionLevel is the default compression level for encoding.
const DefaultCompressionLevel = zstd.DefaultCompression

// ErrLengthMismatch is returned when the decompressed content is not the declared size.
var ErrLengthMismatch = errors.New("snapshot length mismatch")

// Reader decompresses the content of a snapshot.
type Reader struct {
	header    *Header
	zReader   io.ReadCloser
	headerBuf [HeaderSize]byte
}

// NewReader reads and validates the header from r and returns a reader for
// the decompressed content.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{
		header: &Header{},
	}

	if _, err := io.ReadFull(r, reader.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if err := reader.header.UnmarshalBinary(reader.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	reader.zReader = zstd.NewReader(io.LimitReader(r, int64(reader.header.CompressedLength)))
	return reader, nil
}

// Header returns the snapshot header.
func (r *Reader) Header() *Header {
	return r.header
}

// Read reads decompressed data into p.
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.zReader.Read(p)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.zReader.Close()
}

// ReadAll reads and verifies the entire decompressed content of a snapshot.
func ReadAll(r io.Reader) ([]byte, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	length := reader.header.Length
	if length == 0 {
		return []byte{}, nil
	}

	// Length comes from the file, so it only bounds the read.
	data, err := io.ReadAll(io.LimitReader(reader, int64(length)+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if uint64(len(data)) != length {
		return nil, fmt.Errorf("%w: read %d bytes, declared %d", ErrLengthMismatch, len(data), length)
	}

	if err := codec.VerifyChecksum(data, reader.header.Checksum); err != nil {
		return nil, fmt.Errorf("verify content: %w", err)
	}

	return data, nil
}
