package panel

import (
	"context"
	"sync"
)

// RefreshSignal is a change counter with one writer and any number of
// readers. Its value means nothing beyond "changed since last observed".
type RefreshSignal struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

// NewRefreshSignal creates a signal at value zero.
func NewRefreshSignal() *RefreshSignal {
	return &RefreshSignal{changed: make(chan struct{})}
}

// Bump advances the counter and wakes every waiter.
func (s *RefreshSignal) Bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value++
	close(s.changed)
	s.changed = make(chan struct{})
	return s.value
}

// Value returns the current counter.
func (s *RefreshSignal) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Wait blocks until the counter differs from last and returns the new value.
// Several bumps that happen before the waiter runs are observed once.
func (s *RefreshSignal) Wait(ctx context.Context, last uint64) (uint64, error) {
	for {
		s.mu.Lock()
		if s.value != last {
			v := s.value
			s.mu.Unlock()
			return v, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}
