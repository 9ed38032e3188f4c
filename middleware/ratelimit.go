package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hedeqiang/chainprobe/transport"
)

// RateLimit spaces out calls so that at most one request starts per interval.
// Callers wait for their slot instead of being rejected.
type RateLimit struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewRateLimit creates a rate-limiting middleware that starts at most one
// request per the given interval.
func NewRateLimit(interval time.Duration) *RateLimit {
	return &RateLimit{
		interval: interval,
	}
}

// Wrap decorates the transport with rate limiting.
func (r *RateLimit) Wrap(next transport.Transport) transport.Transport {
	return &limitedTransport{next: next, limit: r}
}

// wait blocks until the caller's slot or until ctx is done.
func (r *RateLimit) wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	slot := r.next
	if slot.Before(now) {
		slot = now
	}
	r.next = slot.Add(r.interval)
	r.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "middleware: rate limit wait")
	}
}

type limitedTransport struct {
	next  transport.Transport
	limit *RateLimit
}

func (t *limitedTransport) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	if err := t.limit.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Call(ctx, method, params...)
}

func (t *limitedTransport) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*transport.Subscription, error) {
	if err := t.limit.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Subscribe(ctx, method, unsubscribeMethod, params...)
}

func (t *limitedTransport) Close() error {
	return t.next.Close()
}
