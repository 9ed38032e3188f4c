// Package retry provides retry strategies for dialing a node.
package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Strategy defines a retry policy.
type Strategy interface {
	// Next returns the delay before the next retry attempt.
	// Returns false if no more retries should be attempted.
	Next(attempt int) (delay time.Duration, ok bool)
}

// Never is a Strategy that never retries.
var Never Strategy = never{}

type never struct{}

func (never) Next(int) (time.Duration, bool) { return 0, false }

// Do executes fn, retrying according to the given strategy on non-nil errors.
// It respects context cancellation and returns the last error from fn once
// the strategy gives up. A nil strategy means no retries.
func Do(ctx context.Context, s Strategy, fn func(ctx context.Context, attempt int) error) error {
	if s == nil {
		s = Never
	}

	var attempt int
	for {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		attempt++
		delay, ok := s.Next(attempt)
		if !ok {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "retry: gave up after %d attempts: %v", attempt, err)
		case <-timer.C:
		}
	}
}
