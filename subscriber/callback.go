package subscriber

import (
	"sync"

	"github.com/hedeqiang/chainprobe/block"
)

// CallbackFunc is the function signature for header callbacks.
type CallbackFunc func(block.Header)

// Callback delivers headers by invoking a callback function.
type Callback struct {
	fn   CallbackFunc
	done chan struct{}
	once sync.Once
}

// NewCallback creates a callback-based subscriber.
func NewCallback(fn CallbackFunc) *Callback {
	return &Callback{
		fn:   fn,
		done: make(chan struct{}),
	}
}

// Send invokes the callback with the header. No-op if closed.
func (c *Callback) Send(h block.Header) {
	select {
	case <-c.done:
		return
	default:
	}
	c.fn(h)
}

// Close stops the subscriber. It is safe to call concurrently.
func (c *Callback) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
