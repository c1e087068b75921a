package progress

import (
	"context"
	"sync"
)

// Stream is an unbounded in-memory queue between the pipeline and a single
// consumer. Emit never blocks. After Detach or a terminal event further
// emits are dropped.
type Stream struct {
	mu       sync.Mutex
	queue    []Event
	notify   chan struct{}
	closed   bool
	detached bool
}

func NewStream() *Stream {
	return &Stream{notify: make(chan struct{}, 1)}
}

func (s *Stream) Emit(e Event) {
	s.mu.Lock()
	if s.closed || s.detached {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	if e.Terminal() {
		s.closed = true
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Detach marks the consumer as gone and releases queued events.
func (s *Stream) Detach() {
	s.mu.Lock()
	s.detached = true
	s.queue = nil
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Detached reports whether the consumer went away.
func (s *Stream) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

// Next blocks until an event is available. It returns false once the
// terminal event has been consumed, the stream was detached, or ctx is done.
func (s *Stream) Next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if s.detached {
			s.mu.Unlock()
			return Event{}, false
		}
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, true
		}
		if s.closed {
			s.mu.Unlock()
			return Event{}, false
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, false
		}
	}
}
