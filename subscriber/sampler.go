package subscriber

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hedeqiang/chainprobe/block"
)

// ErrInvalidLimit is returned for a sample size below one.
var ErrInvalidLimit = errors.New("subscriber: sample limit must be positive")

// SampleFunc receives the n-th sampled header, starting at 1.
type SampleFunc func(n int, h block.Header)

// Sampler passes the first limit headers to fn and then reports Done.
// Headers past the limit are ignored.
type Sampler struct {
	fn    SampleFunc
	limit int

	mu    sync.Mutex
	count int

	done chan struct{}
	once sync.Once
}

// NewSampler creates a sampler for limit headers.
func NewSampler(limit int, fn SampleFunc) (*Sampler, error) {
	if limit < 1 {
		return nil, errors.Wrapf(ErrInvalidLimit, "got %d", limit)
	}
	return &Sampler{
		fn:    fn,
		limit: limit,
		done:  make(chan struct{}),
	}, nil
}

// Send counts the header and hands it to fn while the sample is open.
// Done is closed after fn returns for the last header.
func (s *Sampler) Send(h block.Header) {
	s.mu.Lock()
	if s.count >= s.limit {
		s.mu.Unlock()
		return
	}
	s.count++
	n := s.count
	s.mu.Unlock()

	s.fn(n, h)
	if n == s.limit {
		s.Close()
	}
}

// Count returns how many headers were sampled so far.
func (s *Sampler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Limit returns the sample size.
func (s *Sampler) Limit() int {
	return s.limit
}

// Done is closed when the sample is complete or the sampler is closed.
func (s *Sampler) Done() <-chan struct{} {
	return s.done
}

// Close ends the sample early.
func (s *Sampler) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}
