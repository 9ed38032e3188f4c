package subscriber

import (
	"sync"

	"github.com/hedeqiang/chainprobe/block"
)

// Channel delivers headers through a Go channel.
type Channel struct {
	ch   chan block.Header
	done chan struct{}
	once sync.Once
}

// NewChannel creates a channel-based subscriber with the given buffer size.
func NewChannel(bufSize int) *Channel {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Channel{
		ch:   make(chan block.Header, bufSize),
		done: make(chan struct{}),
	}
}

// Headers returns the channel to read headers from. It is never closed;
// select on Done as well.
func (c *Channel) Headers() <-chan block.Header {
	return c.ch
}

// Done is closed once the subscriber is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Send delivers a header to the channel, waiting for buffer space until
// the subscriber is closed. Headers are never dropped while it is open.
func (c *Channel) Send(h block.Header) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.ch <- h:
	case <-c.done:
	}
}

// Close shuts down the subscriber.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
