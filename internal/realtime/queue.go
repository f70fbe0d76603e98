package realtime

import "sync"

// EventQueue is the bounded, in-order hand-off between a transport's
// callbacks and the session's single consumer. Push blocks while the queue is
// full, until the consumer catches up or the queue is closed.
type EventQueue struct {
	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	err     error
	pushing sync.WaitGroup
}

// NewEventQueue creates a queue holding up to size pending events
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = 1
	}
	return &EventQueue{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Events returns the receive side; it is closed once the queue closes
func (q *EventQueue) Events() <-chan Event {
	return q.events
}

// Push enqueues ev. Returns false if the queue closed first.
func (q *EventQueue) Push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pushing.Add(1)
	q.mu.Unlock()
	defer q.pushing.Done()

	select {
	case q.events <- ev:
		return true
	case <-q.done:
		return false
	}
}

// Close stops accepting events and closes the channel after in-flight
// pushes return. A non-nil err is kept as the failure reason. Safe to call
// more than once; only the first call has effect.
func (q *EventQueue) Close(err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.err = err
	q.mu.Unlock()

	close(q.done)
	q.pushing.Wait()
	close(q.events)
}

// Err returns the reason the queue was closed with, if any
func (q *EventQueue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Closed reports whether Close has been called
func (q *EventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
