package storage

import (
	"github.com/pkg/errors"

	"github.com/hedeqiang/chainprobe/internal/hex"
	"github.com/hedeqiang/chainprobe/internal/scale"
)

// Value is a raw SCALE-encoded storage value.
type Value []byte

// Hex returns the 0x-prefixed hex encoding of the value.
func (v Value) Hex() string {
	return hex.Encode(v)
}

func (v Value) String() string {
	return v.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.Hex()), nil
}

// DecodeAccountIDs decodes a Vec<AccountId32> value, such as a member list.
func DecodeAccountIDs(v Value) ([]AccountID, error) {
	items, err := scale.DecodeFixedVec(v, AccountIDLength)
	if err != nil {
		return nil, errors.Wrap(err, "storage: decode account list")
	}
	ids := make([]AccountID, len(items))
	for i, item := range items {
		copy(ids[i][:], item)
	}
	return ids, nil
}
