package storage

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/hedeqiang/chainprobe/internal/hex"
)

// AccountIDLength is the size of an AccountId32 public key.
const AccountIDLength = 32

// DefaultSS58Prefix is the generic Substrate network prefix.
const DefaultSS58Prefix = 42

const (
	maxSS58Prefix  = 16383
	checksumLength = 2
)

var (
	ss58Preimage = []byte("SS58PRE")

	// ErrInvalidAddress is returned for malformed SS58 addresses.
	ErrInvalidAddress = errors.New("storage: invalid ss58 address")
)

// AccountID is a 32-byte account public key.
type AccountID [AccountIDLength]byte

// Hex returns the 0x-prefixed hex encoding of the public key.
func (a AccountID) Hex() string {
	return hex.Encode(a[:])
}

// SS58 renders the account as an SS58 address for the network prefix.
func (a AccountID) SS58(prefix uint16) (string, error) {
	ident, err := encodePrefix(prefix)
	if err != nil {
		return "", err
	}
	payload := append(ident, a[:]...)
	sum := ss58Checksum(payload)
	return base58.Encode(append(payload, sum[:checksumLength]...)), nil
}

// ParseSS58 decodes an SS58 address, returning the account and its
// network prefix.
func ParseSS58(address string) (AccountID, uint16, error) {
	var id AccountID

	raw := base58.Decode(address)
	if len(raw) == 0 {
		return id, 0, errors.Wrapf(ErrInvalidAddress, "%q: not base58", address)
	}

	prefix, n, err := decodePrefix(raw)
	if err != nil {
		return id, 0, err
	}
	if len(raw) != n+AccountIDLength+checksumLength {
		return id, 0, errors.Wrapf(ErrInvalidAddress, "%q: unexpected length %d", address, len(raw))
	}

	payload := raw[:n+AccountIDLength]
	sum := ss58Checksum(payload)
	if !bytes.Equal(sum[:checksumLength], raw[len(payload):]) {
		return id, 0, errors.Wrapf(ErrInvalidAddress, "%q: checksum mismatch", address)
	}

	copy(id[:], raw[n:])
	return id, prefix, nil
}

func encodePrefix(prefix uint16) ([]byte, error) {
	switch {
	case prefix < 64:
		return []byte{byte(prefix)}, nil
	case prefix <= maxSS58Prefix:
		first := byte((prefix&0xfc)>>2) | 0x40
		second := byte(prefix>>8) | byte(prefix&0x03)<<6
		return []byte{first, second}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidAddress, "prefix %d out of range", prefix)
	}
}

func decodePrefix(raw []byte) (uint16, int, error) {
	switch {
	case raw[0] < 64:
		return uint16(raw[0]), 1, nil
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, 0, errors.Wrap(ErrInvalidAddress, "truncated prefix")
		}
		lower := uint16(raw[0]<<2) | uint16(raw[1]>>6)
		upper := uint16(raw[1] & 0x3f)
		return lower | upper<<8, 2, nil
	default:
		return 0, 0, errors.Wrapf(ErrInvalidAddress, "reserved prefix byte %#x", raw[0])
	}
}

func ss58Checksum(payload []byte) [blake2b.Size]byte {
	return blake2b.Sum512(append(append([]byte(nil), ss58Preimage...), payload...))
}
