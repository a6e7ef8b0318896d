package dispatch

import (
	"context"
	"sync"
	"time"
)

// signal is a single-shot completion. Resolving twice is a no-op, so the
// normal path and teardown may race freely.
type signal[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
}

func newSignal[T any]() *signal[T] {
	return &signal[T]{done: make(chan struct{})}
}

// resolve stores v and wakes waiters. Reports whether this call resolved it.
func (s *signal[T]) resolve(v T) bool {
	resolved := false
	s.once.Do(func() {
		s.val = v
		close(s.done)
		resolved = true
	})
	return resolved
}

// wait blocks until resolved. A cancelled ctx yields fallback.
func (s *signal[T]) wait(ctx context.Context, fallback T) T {
	select {
	case <-s.done:
		return s.val
	case <-ctx.Done():
		return fallback
	}
}

// waitingMessage correlates a frame forwarded to the surface with its ack.
type waitingMessage struct {
	id        string
	startTime time.Time
	sig       *signal[struct{}]
}

// fullHandleGate holds kernel processing until the surface reports msg id
// fully handled.
type fullHandleGate struct {
	id  string
	sig *signal[struct{}]
}
