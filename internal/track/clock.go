package track

import "sync/atomic"

// Clock issues monotonically increasing cycle sequence numbers.
//
// Every refetch cycle is stamped with a number from the controller's
// clock. The numbers order cycles in logs and let tests assert delivery
// order without wall-clock timing.
//
// Thread-safety: safe for concurrent use (atomic operations). In
// practice triggers fire inside the writer's critical section, so one
// goroutine calls Next at a time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
