package substrate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/chainprobe/block"
	"github.com/hedeqiang/chainprobe/chain"
	"github.com/hedeqiang/chainprobe/transport"
)

// headSubscription decodes chain_newHead notifications into headers.
type headSubscription struct {
	sub     *transport.Subscription
	timeout time.Duration
	logger  zerolog.Logger

	headers chan block.Header
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func newHeadSubscription(sub *transport.Subscription, timeout time.Duration, logger zerolog.Logger) *headSubscription {
	s := &headSubscription{
		sub:     sub,
		timeout: timeout,
		logger:  logger,
		headers: make(chan block.Header),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go s.consume()
	return s
}

// Headers returns the channel of incoming headers.
func (s *headSubscription) Headers() <-chan block.Header {
	return s.headers
}

// Err returns the error channel.
func (s *headSubscription) Err() <-chan error {
	return s.errs
}

// Unsubscribe terminates the subscription.
func (s *headSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)

		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		if err := s.sub.Unsubscribe(ctx); err != nil {
			s.logger.Debug().Err(err).Str("subscription", s.sub.ID()).Msg("unsubscribe failed")
		}
	})
}

func (s *headSubscription) consume() {
	defer close(s.headers)
	defer close(s.errs)

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.sub.Messages():
			if !s.forward(msg) {
				return
			}
		case <-s.sub.Done():
			// Headers that arrived before the stream ended are still delivered.
			for len(s.sub.Messages()) > 0 {
				if !s.forward(<-s.sub.Messages()) {
					return
				}
			}
			if err := s.sub.Err(); err != nil {
				s.fail(fmt.Errorf("%w: %w", chain.ErrSubscriptionClosed, err))
			}
			return
		}
	}
}

// forward decodes msg and hands the header to the consumer. It reports
// false when the subscription should stop.
func (s *headSubscription) forward(msg []byte) bool {
	var h block.Header
	if err := json.Unmarshal(msg, &h); err != nil {
		s.fail(errors.Wrap(err, "substrate: decode header"))
		go s.Unsubscribe()
		return false
	}

	select {
	case s.headers <- h:
		return true
	case <-s.done:
		return false
	}
}

func (s *headSubscription) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
