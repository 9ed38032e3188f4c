// Package middleware provides interceptors for node transports.
package middleware

import (
	"github.com/hedeqiang/chainprobe/transport"
)

// Middleware wraps a Transport, adding cross-cutting behavior (logging, metrics, etc.).
type Middleware interface {
	// Wrap returns a new Transport that decorates the given inner transport.
	Wrap(next transport.Transport) transport.Transport
}

// Func adapts an ordinary function to the Middleware interface.
type Func func(next transport.Transport) transport.Transport

// Wrap calls f(next).
func (f Func) Wrap(next transport.Transport) transport.Transport {
	return f(next)
}

// Chain composes multiple middlewares around a Transport, applying them
// in the order provided (first middleware is outermost).
func Chain(t transport.Transport, mws ...Middleware) transport.Transport {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i].Wrap(t)
	}
	return t
}
