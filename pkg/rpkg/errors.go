package rpkg

import "errors"

// Structural parse failures. Each one is fatal to the package being opened
// or, for ErrTruncatedPayload, to the single read.
var (
	// ErrMalformedHeader is returned for an unknown magic or inconsistent header fields.
	ErrMalformedHeader = errors.New("malformed package header")

	// ErrTruncatedTable is returned when the source ends inside the header or a table.
	ErrTruncatedTable = errors.New("truncated package table")

	// ErrTruncatedPayload is returned when fewer payload bytes are available than declared.
	ErrTruncatedPayload = errors.New("truncated resource payload")
)
