// Package chain provides the node abstraction the probe talks to.
package chain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hedeqiang/chainprobe/block"
)

// ErrSubscriptionClosed is reported when a head stream ends without being
// unsubscribed, e.g. because the connection dropped.
var ErrSubscriptionClosed = errors.New("chain: subscription closed")

// Chain is the core abstraction for interacting with a node.
type Chain interface {
	// Endpoint returns the RPC address the chain was opened with.
	Endpoint() string

	// Chain returns the chain name (system_chain).
	Chain(ctx context.Context) (string, error)

	// Name returns the node implementation name (system_name).
	Name(ctx context.Context) (string, error)

	// Version returns the node implementation version (system_version).
	Version(ctx context.Context) (string, error)

	// Health returns the node's peer and sync status (system_health).
	Health(ctx context.Context) (Health, error)

	// RPCMethods lists the RPC methods the node exposes (rpc_methods).
	RPCMethods(ctx context.Context) ([]string, error)

	// Storage reads the raw value stored under key at the best block.
	// found is false when the node has no value for key.
	Storage(ctx context.Context, key []byte) (value []byte, found bool, err error)

	// SubscribeNewHeads establishes a push stream of new block headers.
	// Not all transports support subscriptions; returns an error if unsupported.
	SubscribeNewHeads(ctx context.Context) (HeadSubscription, error)

	// Close releases the underlying connection.
	Close() error
}

// HeadSubscription represents an active new-heads subscription.
type HeadSubscription interface {
	// Headers returns a channel that receives headers in arrival order.
	// The channel is closed when the subscription ends.
	Headers() <-chan block.Header

	// Err returns a channel that receives at most one terminal error.
	// The channel is closed when the subscription ends.
	Err() <-chan error

	// Unsubscribe terminates the subscription and closes all channels.
	Unsubscribe()
}

// Health is the node status reported by system_health.
type Health struct {
	Peers           int  `json:"peers" yaml:"peers"`
	IsSyncing       bool `json:"isSyncing" yaml:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers" yaml:"shouldHavePeers"`
}
