package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// Subscription is a live push stream registered on a WebSocket transport.
type Subscription struct {
	ws          *WebSocket
	method      string
	unsubMethod string

	// id and rawID are assigned by the read loop when the subscribe
	// response arrives.
	id    string
	rawID json.RawMessage

	messages chan []byte
	done     chan struct{}
	once     sync.Once
	err      error
}

func newSubscription(ws *WebSocket, method, unsubMethod string) *Subscription {
	return &Subscription{
		ws:          ws,
		method:      method,
		unsubMethod: unsubMethod,
		messages:    make(chan []byte, subscriptionBuffer),
		done:        make(chan struct{}),
	}
}

// ID returns the node-assigned subscription id.
func (s *Subscription) ID() string {
	s.ws.mu.Lock()
	defer s.ws.mu.Unlock()
	return s.id
}

// Messages returns the channel of notification payloads (the "result"
// member of each notification). It is never closed; select on Done too.
func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended: nil after Unsubscribe, the
// connection error otherwise. Only meaningful once Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Unsubscribe stops delivery and asks the node to drop the subscription.
// Calls after the first are no-ops.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if !s.finish(nil) {
		return nil
	}
	s.ws.removeSub(s)

	s.ws.mu.Lock()
	rawID := s.rawID
	s.ws.mu.Unlock()

	if _, err := s.ws.Call(ctx, s.unsubMethod, rawID); err != nil {
		return errors.Wrapf(err, "transport/ws: %s", s.unsubMethod)
	}
	return nil
}

// deliver hands a notification to the consumer, waiting for buffer space
// unless the subscription or connection ends first.
func (s *Subscription) deliver(msg []byte) {
	select {
	case s.messages <- msg:
	case <-s.done:
	case <-s.ws.closed:
	}
}

func (s *Subscription) finish(err error) bool {
	first := false
	s.once.Do(func() {
		s.err = err
		close(s.done)
		first = true
	})
	return first
}
