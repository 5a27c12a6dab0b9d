// Package ready provides Signal, a single-slot wake primitive shared between
// the file watcher and the push sessions. Bursts of Arm calls coalesce into
// one pending notification that any number of waiters can observe.
package ready

import (
	"context"
	"sync"
)

// Signal is a latch with two states, armed and idle.
//
// Every idle→armed transition starts a new generation. Consumers remember
// the last generation they handled and pass it back to Wait, so an arming
// cleared by a faster consumer is still delivered to the slower ones. Clear
// only resets the latch if the given generation is still the current one.
type Signal struct {
	mu    sync.Mutex
	armed bool
	gen   uint64
	ch    chan struct{} // closed when the latch becomes armed
}

// NewSignal returns an idle Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Arm sets the latch and wakes all current waiters. Arming an already armed
// latch is a no-op.
func (s *Signal) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return
	}

	s.armed = true
	s.gen++
	close(s.ch)
}

// Mark returns the generation a new consumer starts from. An arming that is
// still pending is delivered to the new consumer; cleared ones are not.
func (s *Signal) Mark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return s.gen - 1
	}

	return s.gen
}

// Wait blocks until the latch has been armed with a generation newer than
// after, or ctx is done. It does not clear the latch. The returned generation
// is handed to Clear once the caller has consumed the notification and
// becomes the caller's next after value.
func (s *Signal) Wait(ctx context.Context, after uint64) (uint64, error) {
	s.mu.Lock()
	if s.gen > after {
		gen := s.gen
		s.mu.Unlock()

		return gen, nil
	}

	ch := s.ch
	next := s.gen + 1
	s.mu.Unlock()

	select {
	case <-ch:
		return next, nil
	case <-ctx.Done():
		return after, ctx.Err()
	}
}

// Clear resets the latch to idle if gen is the current armed generation.
func (s *Signal) Clear(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed || s.gen != gen {
		return
	}

	s.armed = false
	s.ch = make(chan struct{})
}

// Armed reports whether the latch is currently armed.
func (s *Signal) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.armed
}

// Generation returns the number of idle→armed transitions so far.
func (s *Signal) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen
}
