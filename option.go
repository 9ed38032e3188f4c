package chainprobe

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/chainprobe/middleware"
	"github.com/hedeqiang/chainprobe/retry"
)

// Option configures a Probe.
type Option func(*Probe)

// WithConfig replaces the whole connection configuration.
func WithConfig(cfg Config) Option {
	return func(p *Probe) {
		p.config = cfg
	}
}

// WithLogger sets the logger for the probe and its transport.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Probe) {
		p.logger = l
	}
}

// WithRequestTimeout bounds every request. Zero disables the timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Probe) {
		p.config.RequestTimeout = d
	}
}

// WithDialTimeout bounds connection establishment. Zero disables the timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Probe) {
		p.config.DialTimeout = d
	}
}

// WithKeepAlive sets the WebSocket ping period. Zero disables pings.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Probe) {
		p.config.KeepAlive = d
	}
}

// WithDialRetry sets the retry strategy for the initial dial. It takes
// precedence over Config.DialRetries.
func WithDialRetry(strategy retry.Strategy) Option {
	return func(p *Probe) {
		p.retry = strategy
	}
}

// WithMiddleware adds transport middleware. The first one is outermost.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(p *Probe) {
		p.middlewares = append(p.middlewares, mw...)
	}
}
