package block

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	hexutil "github.com/hedeqiang/chainprobe/internal/hex"
)

// HexToHash converts a "0x"-prefixed hex string to a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != len(Hash{}) {
		return Hash{}, fmt.Errorf("invalid hash %q: want 32 bytes, got %d", s, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// Hex returns the "0x"-prefixed hex encoding of the hash.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	v, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// rpcHeader is the JSON-RPC representation of a header.
type rpcHeader struct {
	ParentHash     Hash   `json:"parentHash"`
	Number         string `json:"number"`
	StateRoot      Hash   `json:"stateRoot"`
	ExtrinsicsRoot Hash   `json:"extrinsicsRoot"`
	Digest         struct {
		Logs []string `json:"logs"`
	} `json:"digest"`
}

// MarshalJSON encodes the header in the node's wire format.
func (h Header) MarshalJSON() ([]byte, error) {
	var rh rpcHeader
	rh.ParentHash = h.ParentHash
	rh.Number = hexutil.EncodeUint64(h.Number)
	rh.StateRoot = h.StateRoot
	rh.ExtrinsicsRoot = h.ExtrinsicsRoot
	rh.Digest.Logs = make([]string, len(h.Digest))
	for i, item := range h.Digest {
		rh.Digest.Logs[i] = hexutil.Encode(item)
	}
	return json.Marshal(rh)
}

// UnmarshalJSON decodes a header from the node's wire format.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rh rpcHeader
	if err := json.Unmarshal(data, &rh); err != nil {
		return err
	}

	number, err := hexutil.DecodeUint64(rh.Number)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", rh.Number, err)
	}

	digest := make([][]byte, len(rh.Digest.Logs))
	for i, item := range rh.Digest.Logs {
		digest[i], err = hexutil.Decode(item)
		if err != nil {
			return fmt.Errorf("parse digest item %d: %w", i, err)
		}
	}

	*h = Header{
		ParentHash:     rh.ParentHash,
		Number:         number,
		StateRoot:      rh.StateRoot,
		ExtrinsicsRoot: rh.ExtrinsicsRoot,
		Digest:         digest,
	}
	return nil
}
