// Package chainprobe is a short-lived diagnostic client for Substrate nodes.
//
// A Probe opens one RPC connection, issues read-only queries, samples new
// block headers and closes again.
//
// Usage:
//
//	p, err := chainprobe.Connect(ctx, chainprobe.DefaultEndpoint)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	name, _ := p.ChainName(ctx)
//	err = p.SampleNewHeads(ctx, 10, func(n int, h block.Header) {
//	    fmt.Printf("%s: last block #: %d, hash #: %s\n", name, h.Number, h.Hash())
//	})
package chainprobe

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/chainprobe/block"
	"github.com/hedeqiang/chainprobe/chain"
	"github.com/hedeqiang/chainprobe/chain/substrate"
	"github.com/hedeqiang/chainprobe/internal/syncutil"
	"github.com/hedeqiang/chainprobe/middleware"
	"github.com/hedeqiang/chainprobe/retry"
	"github.com/hedeqiang/chainprobe/storage"
	"github.com/hedeqiang/chainprobe/subscriber"
	"github.com/hedeqiang/chainprobe/transport"
)

// Probe is one RPC connection to a node.
type Probe struct {
	endpoint    string
	config      Config
	logger      zerolog.Logger
	retry       retry.Strategy
	middlewares []middleware.Middleware

	chain chain.Chain
	group *syncutil.Group

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Connect opens a connection to endpoint. WebSocket endpoints are dialed
// eagerly; HTTP endpoints are checked with a single system_health call.
// All failures are reported as *ConnectionError.
func Connect(ctx context.Context, endpoint string, opts ...Option) (*Probe, error) {
	p := &Probe{
		endpoint: endpoint,
		config:   DefaultConfig(),
		logger:   zerolog.Nop(),
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry == nil && p.config.DialRetries > 0 {
		p.retry = retry.Exponential(p.config.DialRetries)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Err: errors.Wrap(err, "parse endpoint")}
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, &ConnectionError{Endpoint: endpoint, Err: errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)}
	}

	var t transport.Transport
	err = retry.Do(ctx, p.retry, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			p.logger.Info().Str("endpoint", endpoint).Int("attempt", attempt).Msg("retrying connection")
		}
		var err error
		t, err = p.dial(ctx, u.Scheme)
		return err
	})
	if err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}

	t = middleware.Chain(t, p.middlewares...)
	p.chain = substrate.New(endpoint, t,
		substrate.WithLogger(p.logger),
		substrate.WithUnsubscribeTimeout(p.config.RequestTimeout),
	)
	p.group = syncutil.NewGroup(context.Background())

	p.logger.Debug().Str("endpoint", endpoint).Msg("connected")
	return p, nil
}

func (p *Probe) dial(ctx context.Context, scheme string) (transport.Transport, error) {
	ctx, cancel := withTimeout(ctx, p.config.DialTimeout)
	defer cancel()

	if scheme == "ws" || scheme == "wss" {
		return transport.DialWebSocket(ctx, p.endpoint,
			transport.WithLogger(p.logger),
			transport.WithKeepAlive(p.config.KeepAlive),
			transport.WithHandshakeTimeout(p.config.DialTimeout),
		)
	}

	h := transport.NewHTTP(p.endpoint)
	if _, err := h.Call(ctx, substrate.MethodHealth); err != nil {
		var rpcErr *transport.RPCError
		if !errors.As(err, &rpcErr) {
			return nil, err
		}
		// The node answered, so it is reachable.
		p.logger.Debug().Err(err).Msg("health check rejected")
	}
	return h, nil
}

// Endpoint returns the address the probe is connected to.
func (p *Probe) Endpoint() string {
	return p.endpoint
}

// ChainName returns the chain name reported by system_chain.
func (p *Probe) ChainName(ctx context.Context) (string, error) {
	var name string
	err := p.request(ctx, substrate.MethodChain, func(ctx context.Context) (err error) {
		name, err = p.chain.Chain(ctx)
		return err
	})
	return name, err
}

// NodeName returns the node implementation name reported by system_name.
func (p *Probe) NodeName(ctx context.Context) (string, error) {
	var name string
	err := p.request(ctx, substrate.MethodName, func(ctx context.Context) (err error) {
		name, err = p.chain.Name(ctx)
		return err
	})
	return name, err
}

// Version returns the node version reported by system_version.
func (p *Probe) Version(ctx context.Context) (string, error) {
	var version string
	err := p.request(ctx, substrate.MethodVersion, func(ctx context.Context) (err error) {
		version, err = p.chain.Version(ctx)
		return err
	})
	return version, err
}

// Health returns the node health reported by system_health.
func (p *Probe) Health(ctx context.Context) (chain.Health, error) {
	var h chain.Health
	err := p.request(ctx, substrate.MethodHealth, func(ctx context.Context) (err error) {
		h, err = p.chain.Health(ctx)
		return err
	})
	return h, err
}

// RPCMethods lists the RPC methods exposed by the node.
func (p *Probe) RPCMethods(ctx context.Context) ([]string, error) {
	var methods []string
	err := p.request(ctx, substrate.MethodRPCMethods, func(ctx context.Context) (err error) {
		methods, err = p.chain.RPCMethods(ctx)
		return err
	})
	return methods, err
}

// StorageValue reads the raw value stored under key. A key the node holds
// no value for is an error (ErrStorageNotFound), not an empty success.
func (p *Probe) StorageValue(ctx context.Context, key storage.Key) (storage.Value, error) {
	if len(key) == 0 {
		return nil, &RequestError{Method: substrate.MethodGetStorage, Err: ErrInvalidStorageKey}
	}

	var (
		value []byte
		found bool
	)
	err := p.request(ctx, substrate.MethodGetStorage, func(ctx context.Context) (err error) {
		value, found, err = p.chain.Storage(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RequestError{
			Method: substrate.MethodGetStorage,
			Err:    errors.Wrap(ErrStorageNotFound, key.Hex()),
		}
	}
	return storage.Value(value), nil
}

// SubscribeNewHeads calls fn for every new block header, in arrival order,
// from a single goroutine until the subscription is cancelled or the
// connection ends. fn may call Cancel.
func (p *Probe) SubscribeNewHeads(ctx context.Context, fn func(block.Header)) (*Subscription, error) {
	if fn == nil {
		return nil, &RequestError{Method: substrate.MethodSubscribeHeads, Err: ErrNilHandler}
	}
	return p.SubscribeNewHeadsTo(ctx, subscriber.NewCallback(fn))
}

// SampleNewHeads delivers exactly limit new headers to fn, numbered from 1,
// then cancels the subscription and returns nil. It returns early with the
// context error or the subscription error. fn is not running once
// SampleNewHeads returns.
func (p *Probe) SampleNewHeads(ctx context.Context, limit int, fn func(n int, h block.Header)) error {
	sampler, err := subscriber.NewSampler(limit, fn)
	if err != nil {
		return err
	}

	sub, err := p.SubscribeNewHeadsTo(ctx, sampler)
	if err != nil {
		return err
	}
	defer func() {
		sub.Cancel()
		<-sub.Done()
	}()

	select {
	case <-sampler.Done():
		return nil
	case <-sub.Done():
		select {
		case <-sampler.Done():
			return nil
		default:
		}
		p.logSampleEnd(sampler)
		if err := sub.Err(); err != nil {
			return err
		}
		return &SubscriptionError{Method: substrate.MethodSubscribeHeads, Err: ErrClosed}
	case <-ctx.Done():
		p.logSampleEnd(sampler)
		return errors.Wrap(ctx.Err(), "chainprobe: sample new heads")
	}
}

func (p *Probe) logSampleEnd(s *subscriber.Sampler) {
	p.logger.Debug().
		Int("received", s.Count()).
		Int("limit", s.Limit()).
		Msg("header sample ended early")
}

// Close cancels open subscriptions, waits for their delivery to stop and
// closes the connection. Close must not be called from a header callback.
func (p *Probe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := make([]*Subscription, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	_ = p.group.Stop()

	if err := p.chain.Close(); err != nil {
		return errors.Wrap(err, "chainprobe: close")
	}
	p.logger.Debug().Str("endpoint", p.endpoint).Msg("disconnected")
	return nil
}

// SubscribeNewHeadsTo delivers new block headers to sink, for example a
// subscriber.Channel. The sink is closed when the subscription ends.
func (p *Probe) SubscribeNewHeadsTo(ctx context.Context, sink subscriber.Subscriber) (*Subscription, error) {
	var heads chain.HeadSubscription
	err := p.request(ctx, substrate.MethodSubscribeHeads, func(ctx context.Context) (err error) {
		heads, err = p.chain.SubscribeNewHeads(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s := newSubscription(p, heads, sink)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		heads.Unsubscribe()
		return nil, &RequestError{Method: substrate.MethodSubscribeHeads, Err: ErrClosed}
	}
	p.subs[s] = struct{}{}
	p.mu.Unlock()

	p.group.Go(s.dispatch)
	return s, nil
}

func (p *Probe) forget(s *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, s)
}

// request runs one call under the request timeout and wraps its failure.
func (p *Probe) request(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return &RequestError{Method: method, Err: ErrClosed}
	}

	ctx, cancel := withTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return &RequestError{Method: method, Err: err}
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
