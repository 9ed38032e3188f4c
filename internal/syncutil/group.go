// Package syncutil provides concurrency utilities.
package syncutil

import (
	"context"
	"sync"
)

// Group manages a set of goroutines that should be started and stopped together.
// The first goroutine to fail cancels the group.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errOnce sync.Once
	err     error
}

// NewGroup creates a new Group derived from the given context.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the group's context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go launches a goroutine within the group.
// The function receives the group context and should return when the context is cancelled.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(g.ctx); err != nil {
			g.errOnce.Do(func() {
				g.err = err
				g.cancel()
			})
		}
	}()
}

// Wait blocks until every goroutine has returned and reports the first error.
func (g *Group) Wait() error {
	g.wg.Wait()
	return g.err
}

// Stop cancels the group context, waits for all goroutines to finish and
// reports the first error.
func (g *Group) Stop() error {
	g.cancel()
	return g.Wait()
}
