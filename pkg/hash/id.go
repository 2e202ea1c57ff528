// Package hash maps 64-bit Glacier 2 resource identifiers to the path
// strings they were derived from, and back.
//
// A resource id is the first eight bytes of the MD5 digest of the
// lowercased resource path with the most significant byte cleared. The
// function is one-way, so turning an id back into a path requires a table
// of known paths; ids missing from the table resolve to their fixed-width
// hexadecimal form.
package hash

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ResourceID is the 64-bit identifier of a resource.
type ResourceID uint64

// HexWidth is the width of the canonical hexadecimal form of a ResourceID.
const HexWidth = 16

// ErrInvalidID is returned when a string is not a valid resource id.
var ErrInvalidID = errors.New("invalid resource id")

// Compute derives the resource id of a path. Paths are case-insensitive.
func Compute(path string) ResourceID {
	sum := md5.Sum([]byte(strings.ToLower(path)))
	return ResourceID(binary.BigEndian.Uint64(sum[:8]) & 0x00FFFFFFFFFFFFFF)
}

// String returns the 16-digit lowercase hexadecimal form of the id.
func (id ResourceID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses a 16-digit hexadecimal id, optionally followed by a
// ".TYPE" suffix as used in hash lists ("00123456789ABCDE.TEXT").
func ParseID(s string) (ResourceID, error) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if len(s) != HexWidth {
		return 0, fmt.Errorf("%w: %q is not %d hex digits", ErrInvalidID, s, HexWidth)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ResourceID(v), nil
}

// IsValidHash reports whether s is already a canonical id rather than a path.
func IsValidHash(s string) bool {
	_, err := ParseID(s)
	return err == nil && !strings.Contains(s, ".")
}

// IDOf returns s parsed as an id when it is one, otherwise the id computed
// from s as a path.
func IDOf(s string) ResourceID {
	if IsValidHash(s) {
		id, _ := ParseID(s)
		return id
	}
	return Compute(s)
}

// MarshalText encodes the id in its canonical hexadecimal form.
func (id ResourceID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText accepts any form ParseID does.
func (id *ResourceID) UnmarshalText(text []byte) error {
	v, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
