package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/correlate/internal/ir"
)

// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
var ErrQueueClosed = errors.New("event queue closed")

// eventQueue is a thread-safe FIFO queue of external events.
//
// The queue is unbounded: the bus callback must never block or drop an
// event while the engine is catching up.
//
// Enqueue is called from bus goroutines while the Run loop dequeues.
// The signal channel enables context-aware waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []ir.Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]ir.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(ev ir.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, ev)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Dequeue removes and returns the front event, blocking until one is
// available. Returns ctx.Err() on cancellation and ErrQueueClosed once the
// queue is closed and empty. Cancellation wins over pending events.
func (q *eventQueue) Dequeue(ctx context.Context) (ir.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ir.Event{}, err
		}

		if ev, ok := q.TryDequeue(); ok {
			return ev, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ir.Event{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return ir.Event{}, ctx.Err()
		case <-q.signal:
			// Loop back to TryDequeue. A closed signal channel fires
			// immediately and the closed check above ends the loop.
		}
	}
}

// TryDequeue attempts to dequeue without blocking.
// Returns (ir.Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (ir.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return ir.Event{}, false
	}

	ev := q.events[0]

	// Clear the slot so the backing array does not pin the payload.
	q.events[0] = ir.Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return ev, true
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
