// Package storage builds Substrate storage keys and decodes storage values.
package storage

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/hedeqiang/chainprobe/internal/hex"
)

// ErrInvalidKey is returned for keys that cannot address a storage item.
var ErrInvalidKey = errors.New("storage: invalid key")

// Hasher names a storage map key hasher.
type Hasher string

// Supported map hashers.
const (
	Identity        Hasher = "identity"
	Twox64Concat    Hasher = "twox64concat"
	Blake2128Concat Hasher = "blake2_128concat"
)

// ParseHasher resolves a hasher name, case-insensitively.
func ParseHasher(name string) (Hasher, error) {
	h := Hasher(strings.ToLower(name))
	switch h {
	case Identity, Twox64Concat, Blake2128Concat:
		return h, nil
	}
	return "", errors.Wrapf(ErrInvalidKey, "unknown hasher %q", name)
}

// Hash applies the hasher to data.
func (h Hasher) Hash(data []byte) ([]byte, error) {
	switch h {
	case Identity:
		return append([]byte(nil), data...), nil
	case Twox64Concat:
		return append(twox64(data), data...), nil
	case Blake2128Concat:
		d, err := blake2b.New(16, nil)
		if err != nil {
			return nil, errors.Wrap(err, "storage: blake2b")
		}
		d.Write(data)
		return append(d.Sum(nil), data...), nil
	}
	return nil, errors.Wrapf(ErrInvalidKey, "unknown hasher %q", string(h))
}

// Key is a raw storage key.
type Key []byte

// PlainKey returns the key of a plain (non-map) storage item.
func PlainKey(pallet, item string) (Key, error) {
	if pallet == "" || item == "" {
		return nil, errors.Wrap(ErrInvalidKey, "pallet and item are required")
	}
	k := make(Key, 0, 32)
	k = append(k, Twox128([]byte(pallet))...)
	k = append(k, Twox128([]byte(item))...)
	return k, nil
}

// MapKey returns the key of one entry of a storage map.
func MapKey(pallet, item string, hasher Hasher, mapKey []byte) (Key, error) {
	k, err := PlainKey(pallet, item)
	if err != nil {
		return nil, err
	}
	hashed, err := hasher.Hash(mapKey)
	if err != nil {
		return nil, err
	}
	return append(k, hashed...), nil
}

// ParseKey parses a 0x-prefixed hex key.
func ParseKey(s string) (Key, error) {
	b, err := hex.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "%s: %v", s, err)
	}
	if len(b) == 0 {
		return nil, errors.Wrap(ErrInvalidKey, "empty key")
	}
	return Key(b), nil
}

// Hex returns the 0x-prefixed hex encoding of the key.
func (k Key) Hex() string {
	return hex.Encode(k)
}

func (k Key) String() string {
	return k.Hex()
}

// Twox128 is xxhash64 with seeds 0 and 1, concatenated little-endian.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := 0; seed < 2; seed++ {
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], d.Sum64())
	}
	return out
}

func twox64(data []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, xxhash.Sum64(data))
	return out
}
