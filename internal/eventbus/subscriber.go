package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// subscriber owns one bounded ring buffer. When the buffer is full, send
// drops the oldest queued event and marks the subscriber for a resync
// notice, delivered ahead of the next event it successfully enqueues.
type subscriber struct {
	id string
	ch chan Event

	mu      sync.Mutex
	dropped bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, ringCapacity),
	}
}

func (s *subscriber) send(ev Event) {
	s.mu.Lock()
	needsResync := s.dropped
	s.dropped = false
	s.mu.Unlock()

	if needsResync {
		s.enqueue(Event{ID: uuid.NewString(), Kind: Resync})
	}
	s.enqueue(ev)
}

func (s *subscriber) enqueue(ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	// Ring is full: drop the oldest entry and mark for resync before
	// enqueueing the new one.
	select {
	case <-s.ch:
	default:
	}
	s.mu.Lock()
	s.dropped = true
	s.mu.Unlock()

	select {
	case s.ch <- ev:
	default:
		// Another goroutine drained concurrently and refilled the buffer;
		// this event is dropped too, and the resync flag already covers it.
	}
}
