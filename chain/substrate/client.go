// Package substrate provides the Substrate implementation of the chain.Chain interface.
package substrate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/chainprobe/chain"
	"github.com/hedeqiang/chainprobe/internal/hex"
	"github.com/hedeqiang/chainprobe/transport"
)

// RPC methods used by the client.
const (
	MethodChain            = "system_chain"
	MethodName             = "system_name"
	MethodVersion          = "system_version"
	MethodHealth           = "system_health"
	MethodRPCMethods       = "rpc_methods"
	MethodGetStorage       = "state_getStorage"
	MethodSubscribeHeads   = "chain_subscribeNewHeads"
	MethodUnsubscribeHeads = "chain_unsubscribeNewHeads"
)

const defaultUnsubscribeTimeout = 10 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithUnsubscribeTimeout bounds the unsubscribe request sent when a head
// subscription is torn down.
func WithUnsubscribeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.unsubscribeTimeout = d
	}
}

// Client is a Substrate chain implementation.
type Client struct {
	endpoint           string
	transport          transport.Transport
	logger             zerolog.Logger
	unsubscribeTimeout time.Duration
}

var _ chain.Chain = (*Client)(nil)

// New creates a Substrate client on top of an established transport.
func New(endpoint string, t transport.Transport, opts ...Option) *Client {
	c := &Client{
		endpoint:           endpoint,
		transport:          t,
		logger:             zerolog.Nop(),
		unsubscribeTimeout: defaultUnsubscribeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the RPC address.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Chain returns the chain name.
func (c *Client) Chain(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodChain)
}

// Name returns the node implementation name.
func (c *Client) Name(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodName)
}

// Version returns the node implementation version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodVersion)
}

// Health returns the node health.
func (c *Client) Health(ctx context.Context) (chain.Health, error) {
	var h chain.Health
	if err := c.call(ctx, MethodHealth, &h); err != nil {
		return chain.Health{}, err
	}
	return h, nil
}

// RPCMethods lists the methods exposed by the node.
func (c *Client) RPCMethods(ctx context.Context) ([]string, error) {
	var reply struct {
		Version int      `json:"version"`
		Methods []string `json:"methods"`
	}
	if err := c.call(ctx, MethodRPCMethods, &reply); err != nil {
		return nil, err
	}
	return reply.Methods, nil
}

// Storage reads the value under key at the best block.
func (c *Client) Storage(ctx context.Context, key []byte) ([]byte, bool, error) {
	var value *string
	if err := c.call(ctx, MethodGetStorage, &value, hex.Encode(key)); err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}

	b, err := hex.Decode(*value)
	if err != nil {
		return nil, false, errors.Wrapf(err, "substrate: %s: parse value", MethodGetStorage)
	}
	return b, true, nil
}

// SubscribeNewHeads creates a new-heads subscription. Requires a WebSocket transport.
func (c *Client) SubscribeNewHeads(ctx context.Context) (chain.HeadSubscription, error) {
	sub, err := c.transport.Subscribe(ctx, MethodSubscribeHeads, MethodUnsubscribeHeads)
	if err != nil {
		return nil, errors.Wrapf(err, "substrate: %s", MethodSubscribeHeads)
	}
	return newHeadSubscription(sub, c.unsubscribeTimeout, c.logger), nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) callString(ctx context.Context, method string) (string, error) {
	var s string
	if err := c.call(ctx, method, &s); err != nil {
		return "", err
	}
	return s, nil
}

// call issues method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	result, err := c.transport.Call(ctx, method, params...)
	if err != nil {
		return errors.Wrapf(err, "substrate: %s", method)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return errors.Wrapf(err, "substrate: %s: parse result", method)
	}
	return nil
}
