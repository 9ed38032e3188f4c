// Package hex provides utilities for encoding and decoding hexadecimal strings
// with the "0x" prefix used by Substrate JSON-RPC.
package hex

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Encode returns the hexadecimal encoding of src with "0x" prefix.
func Encode(src []byte) string {
	return "0x" + hex.EncodeToString(src)
}

// Decode decodes a hex string (with or without "0x" prefix) into bytes.
// Odd-length input is rejected: node payloads are always whole bytes.
func Decode(s string) ([]byte, error) {
	s = trimPrefix(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex: odd length %d", len(s))
	}
	return hex.DecodeString(s)
}

// MustDecode is like Decode but panics on error.
func MustDecode(s string) []byte {
	b, err := Decode(s)
	if err != nil {
		panic(fmt.Sprintf("hex: invalid hex string %q: %v", s, err))
	}
	return b
}

// EncodeUint64 encodes a uint64 as a "0x"-prefixed hex quantity.
func EncodeUint64(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

// DecodeUint64 parses a "0x"-prefixed hex quantity such as a block number.
func DecodeUint64(s string) (uint64, error) {
	s = trimPrefix(s)
	if s == "" {
		return 0, fmt.Errorf("hex: empty quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}

func trimPrefix(s string) string {
	s = strings.TrimPrefix(s, "0x")
	return strings.TrimPrefix(s, "0X")
}
