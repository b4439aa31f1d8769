package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping each processed event.
//
// Sequence numbers order transitions in traces and logs; wall-clock time
// is never used for ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though only the Run goroutine advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
