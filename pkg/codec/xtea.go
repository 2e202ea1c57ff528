package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/xtea"
)

// BlockSize is the XTEA block size in bytes.
const BlockSize = xtea.BlockSize

// ErrBlockAlignment is returned when a cipher input is not a whole number of blocks.
var ErrBlockAlignment = errors.New("input length is not a multiple of the cipher block size")

// Key is the engine's fixed XTEA key, as four 32-bit words.
var Key = [4]uint32{0x53527737, 0x7506499E, 0xBD39AEE3, 0xA59E7268}

var cipher = mustCipher(Key)

func mustCipher(words [4]uint32) *xtea.Cipher {
	key := make([]byte, 16)
	for i, w := range words {
		binary.BigEndian.PutUint32(key[i*4:], w)
	}
	c, err := xtea.NewCipher(key)
	if err != nil {
		panic("codec: xtea key setup: " + err.Error())
	}
	return c
}

// Decrypt deciphers src with the fixed key. The engine stores both block
// halves little-endian; x/crypto reads them big-endian, so every word is
// swapped on the way in and out.
func Decrypt(src []byte) ([]byte, error) {
	return transform(src, cipher.Decrypt)
}

// Encrypt enciphers src with the fixed key. It never pads; use PadBlock first
// when the plaintext length is arbitrary.
func Encrypt(src []byte) ([]byte, error) {
	return transform(src, cipher.Encrypt)
}

func transform(src []byte, fn func(dst, src []byte)) ([]byte, error) {
	if len(src)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockAlignment, len(src))
	}

	out := make([]byte, len(src))
	var block [BlockSize]byte
	for off := 0; off < len(src); off += BlockSize {
		swapWords(block[:], src[off:off+BlockSize])
		fn(block[:], block[:])
		swapWords(out[off:off+BlockSize], block[:])
	}
	return out, nil
}

func swapWords(dst, src []byte) {
	binary.BigEndian.PutUint32(dst[0:4], binary.LittleEndian.Uint32(src[0:4]))
	binary.BigEndian.PutUint32(dst[4:8], binary.LittleEndian.Uint32(src[4:8]))
}

// PadBlock returns src zero-padded to a multiple of BlockSize.
func PadBlock(src []byte) []byte {
	rem := len(src) % BlockSize
	if rem == 0 {
		return append([]byte(nil), src...)
	}
	out := make([]byte, len(src)+BlockSize-rem)
	copy(out, src)
	return out
}
