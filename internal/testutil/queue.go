package testutil

import "sync"

// ManualQueue is an executor whose scheduled functions run only when
// the test pumps them.
//
// It satisfies track.Executor. Unlike track.SerialQueue there is no
// background goroutine: work scheduled with Async sits in the queue
// until RunNext or Drain is called. This lets tests place liveness
// checks, cancellations, and racing writes deterministically between
// scheduling and delivery.
//
// Thread-safety: all methods are safe for concurrent use. Functions
// run outside the internal lock, so they may schedule further work.
type ManualQueue struct {
	mu  sync.Mutex
	fns []func()
}

// NewManualQueue creates an empty ManualQueue.
func NewManualQueue() *ManualQueue {
	return &ManualQueue{}
}

// Async appends fn to the queue without running it.
func (q *ManualQueue) Async(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
}

// Len returns the number of scheduled functions not yet run.
func (q *ManualQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

// RunNext runs the oldest scheduled function.
// Returns false if the queue was empty.
func (q *ManualQueue) RunNext() bool {
	q.mu.Lock()
	if len(q.fns) == 0 {
		q.mu.Unlock()
		return false
	}
	fn := q.fns[0]
	q.fns[0] = nil
	q.fns = q.fns[1:]
	q.mu.Unlock()

	fn()
	return true
}

// Drain runs scheduled functions in order until none remain, including
// any scheduled by the functions themselves. Returns how many ran.
func (q *ManualQueue) Drain() int {
	n := 0
	for q.RunNext() {
		n++
	}
	return n
}
