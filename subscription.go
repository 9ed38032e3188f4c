package chainprobe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hedeqiang/chainprobe/block"
	"github.com/hedeqiang/chainprobe/chain"
	"github.com/hedeqiang/chainprobe/chain/substrate"
	"github.com/hedeqiang/chainprobe/subscriber"
)

// Subscription is a live new-heads registration owned by a Probe.
type Subscription struct {
	probe *Probe
	heads chain.HeadSubscription
	sink  subscriber.Subscriber

	// deliverMu is held for the whole of each callback.
	deliverMu  sync.Mutex
	inCallback atomic.Bool
	cancelled  atomic.Bool
	cancelOnce sync.Once

	done chan struct{}
	err  error
}

func newSubscription(p *Probe, heads chain.HeadSubscription, sink subscriber.Subscriber) *Subscription {
	return &Subscription{
		probe: p,
		heads: heads,
		sink:  sink,
		done:  make(chan struct{}),
	}
}

// Cancel stops header delivery and unsubscribes from the node. Once Cancel
// returns no further callback begins. It is idempotent and may be called
// from inside the callback.
//
// A callback that is already running when Cancel is called from another
// goroutine may still be in progress when Cancel returns. Receive from Done
// to wait until it has returned.
func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
	s.cancelOnce.Do(func() {
		s.heads.Unsubscribe()
		s.sink.Close()
		s.probe.forget(s)
	})

	// Wait out a callback that passed the cancelled check just before it
	// was set, unless we are that callback.
	if !s.inCallback.Load() {
		s.deliverMu.Lock()
		s.deliverMu.Unlock()
	}
}

// Done is closed once delivery has stopped, after Cancel or when the
// stream is interrupted. No callback is running once Done is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns nil after Cancel and a *SubscriptionError when the stream was
// interrupted. Only meaningful once Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) dispatch(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case h, ok := <-s.heads.Headers():
			if !ok {
				s.stop()
				return nil
			}
			s.deliver(h)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Subscription) deliver(h block.Header) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.cancelled.Load() {
		return
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)

	s.sink.Send(h)
}

// stop records why the head stream ended.
func (s *Subscription) stop() {
	if err, ok := <-s.heads.Err(); ok && err != nil && !s.cancelled.Load() {
		s.err = &SubscriptionError{Method: substrate.MethodSubscribeHeads, Err: err}
		s.probe.logger.Warn().Err(err).Msg("new heads subscription interrupted")
	}
	s.sink.Close()
	s.probe.forget(s)
}
