package track

import "sync"

// Executor is an execution context that runs scheduled functions
// asynchronously.
//
// Implementations must run scheduled functions one at a time, in
// submission order. The delivery guarantees of this package (atomic
// batches, delivery order equals trigger order) assume that discipline;
// a pool that runs functions concurrently breaks them.
//
// Consumers supply an Executor for callback delivery when constructing
// a Controller. There is no hidden default.
type Executor interface {
	// Async schedules fn to run later. It must not run fn inline.
	Async(fn func())
}

// SerialQueue is an unbounded FIFO Executor backed by one goroutine.
//
// The queue is unbounded so that triggers firing inside the writer's
// critical section can enqueue without ever blocking the writer.
//
// Thread-safety: Async and Close may be called from any goroutine.
type SerialQueue struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	signal chan struct{} // signals work availability (buffered, size 1)
	done   chan struct{} // closed when the goroutine has drained and exited
}

// NewSerialQueue creates a SerialQueue and starts its goroutine.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		fns:    make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Async appends fn to the queue. Functions scheduled after Close are
// silently dropped.
func (q *SerialQueue) Async(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.fns = append(q.fns, fn)

	// Non-blocking send - a buffer of one coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of functions waiting to run.
func (q *SerialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

// Close stops accepting new work. Functions already queued still run;
// the goroutine exits once the queue is empty. Idempotent.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // wakes the goroutine so it can drain and exit
}

// Done returns a channel that is closed once the queue has been closed
// and fully drained. Useful for shutdown sequencing in tests and CLIs.
func (q *SerialQueue) Done() <-chan struct{} {
	return q.done
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for {
		fn, ok := q.next()
		if ok {
			fn()
			continue
		}

		q.mu.Lock()
		if q.closed && len(q.fns) == 0 {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		// After Close the signal channel is closed and this receive
		// returns immediately, looping back to drain.
		<-q.signal
	}
}

func (q *SerialQueue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.fns) == 0 {
		return nil, false
	}

	fn := q.fns[0]

	// Nil out the slot so the closure and everything it captures
	// (snapshots, change batches) can be collected while the backing
	// array lives on.
	q.fns[0] = nil

	if len(q.fns) == 1 {
		q.fns = q.fns[:0]
	} else {
		q.fns = q.fns[1:]
	}

	return fn, true
}
