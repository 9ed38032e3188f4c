package chainprobe

import (
	"time"
)

// DefaultEndpoint is the RPC address of a local development node.
const DefaultEndpoint = "ws://localhost:9944"

// Config holds the connection settings of a Probe.
type Config struct {
	// RequestTimeout bounds every request. Zero disables the timeout.
	RequestTimeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// DialTimeout bounds connection establishment. Zero disables the timeout.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// KeepAlive is the WebSocket ping period. Zero disables pings.
	KeepAlive time.Duration `mapstructure:"keepalive" yaml:"keepalive"`

	// DialRetries is the number of extra dial attempts with exponential
	// backoff. Zero fails on the first error.
	DialRetries int `mapstructure:"dial_retries" yaml:"dial_retries"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		DialTimeout:    10 * time.Second,
		KeepAlive:      30 * time.Second,
		DialRetries:    0,
	}
}
