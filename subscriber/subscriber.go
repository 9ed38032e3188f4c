// Package subscriber provides block header delivery patterns.
package subscriber

import (
	"github.com/hedeqiang/chainprobe/block"
)

// Subscriber receives block headers through a chosen delivery mechanism.
// Send is called from a single goroutine, in arrival order.
type Subscriber interface {
	// Send delivers a header to this subscriber.
	Send(h block.Header)

	// Close terminates the subscriber and releases resources.
	Close()
}
