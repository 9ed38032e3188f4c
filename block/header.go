// Package block defines the block header data carried by new-head notifications.
package block

import (
	"golang.org/x/crypto/blake2b"

	"github.com/hedeqiang/chainprobe/internal/scale"
)

// Hash represents a 32-byte blake2b-256 hash.
type Hash [32]byte

// Header is a Substrate block header.
type Header struct {
	// ParentHash is the hash of the previous block.
	ParentHash Hash

	// Number is the block height.
	Number uint64

	// StateRoot is the state trie root after executing the block.
	StateRoot Hash

	// ExtrinsicsRoot is the trie root of the block's extrinsics.
	ExtrinsicsRoot Hash

	// Digest holds the SCALE-encoded digest items in node order.
	Digest [][]byte
}

// Encode returns the SCALE encoding of the header, the preimage of its hash.
func (h Header) Encode() []byte {
	size := 3*len(Hash{}) + 9 + 5
	for _, item := range h.Digest {
		size += len(item)
	}

	b := make([]byte, 0, size)
	b = append(b, h.ParentHash[:]...)
	b = scale.AppendCompact(b, h.Number)
	b = append(b, h.StateRoot[:]...)
	b = append(b, h.ExtrinsicsRoot[:]...)
	b = scale.AppendCompact(b, uint64(len(h.Digest)))
	for _, item := range h.Digest {
		b = append(b, item...)
	}
	return b
}

// Hash computes the block hash. Notifications do not carry it, so it is
// derived locally the same way the node does.
func (h Header) Hash() Hash {
	return blake2b.Sum256(h.Encode())
}
