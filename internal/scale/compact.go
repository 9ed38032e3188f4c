// Package scale implements the parts of the SCALE codec the probe needs:
// compact integers and length-prefixed vectors.
package scale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// ErrShortInput is returned when the input ends before a value is complete.
var ErrShortInput = errors.New("scale: input too short")

// AppendCompact appends the compact encoding of n to dst.
func AppendCompact(dst []byte, n uint64) []byte {
	switch {
	case n < 1<<6:
		return append(dst, byte(n)<<2)
	case n < 1<<14:
		return binary.LittleEndian.AppendUint16(dst, uint16(n)<<2|0b01)
	case n < 1<<30:
		return binary.LittleEndian.AppendUint32(dst, uint32(n)<<2|0b10)
	default:
		size := (bits.Len64(n) + 7) / 8
		if size < 4 {
			size = 4
		}
		dst = append(dst, byte(size-4)<<2|0b11)
		for i := 0; i < size; i++ {
			dst = append(dst, byte(n>>(8*i)))
		}
		return dst
	}
}

// EncodeCompact returns the compact encoding of n.
func EncodeCompact(n uint64) []byte {
	return AppendCompact(nil, n)
}

// DecodeCompact decodes a compact integer from the start of b and returns the
// value and the number of bytes consumed.
func DecodeCompact(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortInput
	}
	switch b[0] & 0b11 {
	case 0b00:
		return uint64(b[0] >> 2), 1, nil
	case 0b01:
		if len(b) < 2 {
			return 0, 0, ErrShortInput
		}
		return uint64(binary.LittleEndian.Uint16(b) >> 2), 2, nil
	case 0b10:
		if len(b) < 4 {
			return 0, 0, ErrShortInput
		}
		return uint64(binary.LittleEndian.Uint32(b) >> 2), 4, nil
	default:
		size := int(b[0]>>2) + 4
		if size > 8 {
			return 0, 0, fmt.Errorf("scale: compact integer of %d bytes overflows uint64", size)
		}
		if len(b) < 1+size {
			return 0, 0, ErrShortInput
		}
		var n uint64
		for i := 0; i < size; i++ {
			n |= uint64(b[1+i]) << (8 * i)
		}
		return n, 1 + size, nil
	}
}

// DecodeFixedVec decodes a compact-length-prefixed vector of fixed-size
// elements. Trailing bytes are an error.
func DecodeFixedVec(b []byte, size int) ([][]byte, error) {
	n, off, err := DecodeCompact(b)
	if err != nil {
		return nil, err
	}
	rest := b[off:]
	if uint64(len(rest)) != n*uint64(size) {
		return nil, fmt.Errorf("scale: vector of %d x %d bytes, have %d bytes", n, size, len(rest))
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		out = append(out, rest[i*uint64(size):(i+1)*uint64(size)])
	}
	return out, nil
}
