package track

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vhbit/querywatch/internal/diff"
	"github.com/vhbit/querywatch/internal/rowset"
)

// Controller tracks one query against a database and delivers change
// batches to a consumer delegate.
//
// CRITICAL: delivery order equals trigger order. Commits are totally
// ordered by the database's writer; each commit that overlaps the
// query's region enqueues exactly one processing continuation onto the
// subscription's FIFO before its snapshot read completes. Continuations
// therefore process, and batches deliver, in commit order - even when a
// later commit's snapshot read finishes before an earlier one's.
//
// Thread-safety model:
//   - New, Track, Start, SetQuery, Stop, Rows: safe from any goroutine
//   - delegate callbacks and the error handler: consumer executor only
//   - triggers: writer's critical section only (driven by the database)
//
// The configured delegate, identity predicate, alongside fetch, and
// error handler are frozen once Start is called; the cycle pipeline
// reads them without locking.
type Controller struct {
	db       Database
	executor Executor
	log      *slog.Logger
	clock    *Clock
	registry *registry

	sameRow   diff.SameRowFunc
	alongside func(rowset.Reader) (any, error)
	errFn     func(error)

	willChange func()
	change     func(diff.Change)
	didChange  func(any)

	mu      sync.Mutex
	query   rowset.Query
	fifo    *SerialQueue
	current *observer
	started bool
	stopped bool
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithSameRow sets the identity predicate used to merge delete/insert
// pairs into moves and updates. The predicate need only be reflexive
// and symmetric. Default: no predicate, so every changed row surfaces
// as a delete/insert pair.
func WithSameRow(fn diff.SameRowFunc) Option {
	return func(c *Controller) {
		c.sameRow = fn
	}
}

// WithKey is shorthand for WithSameRow(diff.ByKey(columns...)).
func WithKey(columns ...string) Option {
	return func(c *Controller) {
		c.sameRow = diff.ByKey(columns...)
	}
}

// WithAlongside sets a side read computed on the same snapshot as each
// refetch, outside the writer's critical section. Its result reaches
// the delegate through DidChange.
func WithAlongside(fn func(rowset.Reader) (any, error)) Option {
	return func(c *Controller) {
		c.alongside = fn
	}
}

// WithErrorHandler sets the hook invoked on the consumer's executor
// when a refetch cycle fails. Without a handler, failures are only
// logged.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) {
		c.errFn = fn
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Controller tracking query against db, delivering
// callbacks on the given executor.
//
// The executor is mandatory and must run scheduled functions one at a
// time in submission order. There is no default execution context;
// panics with a MisuseError when db or delivery is nil.
func New(db Database, query rowset.Query, delivery Executor, opts ...Option) *Controller {
	if db == nil {
		panic(&MisuseError{Op: "new controller", Reason: "database is required"})
	}
	if delivery == nil {
		panic(&MisuseError{Op: "new controller", Reason: "delivery executor is required"})
	}

	c := &Controller{
		db:       db,
		executor: delivery,
		log:      slog.Default(),
		clock:    NewClock(),
		registry: newRegistry(),
		query:    query,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Track registers the consumer delegate. Capabilities are discovered by
// type assertion: WillChangeHandler, ChangeHandler, DidChangeHandler.
// Absent capabilities are no-ops. A nil delegate registers nothing.
//
// Must be called before Start; panics with a MisuseError afterwards.
func (c *Controller) Track(delegate any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		panic(&MisuseError{Op: "track", Reason: "delegate must be registered before Start"})
	}

	if h, ok := delegate.(WillChangeHandler); ok {
		c.willChange = h.WillChange
	}
	if h, ok := delegate.(ChangeHandler); ok {
		c.change = h.HandleChange
	}
	if h, ok := delegate.(DidChangeHandler); ok {
		c.didChange = h.DidChange
	}
}

// Start prepares the query's region, performs the initial fetch, and
// arms the commit subscription. The initial fetch produces no delegate
// callbacks; read the result with Rows.
//
// Returns a PrepareError when the region cannot be computed or the
// initial fetch fails; the subscription never starts. Panics with a
// MisuseError on a second Start or after Stop.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		panic(&MisuseError{Op: "start", Reason: "controller is stopped"})
	}
	if c.started {
		panic(&MisuseError{Op: "start", Reason: "already started"})
	}

	region, err := c.db.Region(c.query)
	if err != nil {
		return &PrepareError{Query: c.query, Err: err}
	}

	obs := newObserver(c.query, region)
	c.fifo = NewSerialQueue()

	// Fetch, install, and subscribe in one critical section so no
	// commit can slip between the baseline and the subscription.
	err = c.db.Write(func(w rowset.Writer) error {
		rows, err := w.Rows(c.query)
		if err != nil {
			return fmt.Errorf("initial fetch: %w", err)
		}
		obs.setItems(rows)
		c.registry.add(obs)
		obs.cancel = c.db.Observe(obs.region, func() { c.trigger(obs.id) })
		return nil
	})
	if err != nil {
		c.invalidateObserver(obs)
		c.fifo.Close()
		c.fifo = nil
		return &PrepareError{Query: c.query, Err: err}
	}

	c.current = obs
	c.started = true
	c.log.Info("tracking started",
		"observer", obs.id,
		"query", obs.query.SQL,
		"region", obs.region.String(),
	)
	return nil
}

// SetQuery replaces the tracked query.
//
// Before Start it merely swaps the pending query. Afterwards it
// prepares the new region (on failure the old query stays active and a
// PrepareError is returned), then atomically retires the old observer
// and installs a new one. The transition is processed as a regular
// cycle on the subscription's FIFO, behind any in-flight cycles, so
// the consumer sees one batch turning the old query's rows into the
// new query's rows. Panics with a MisuseError after Stop.
func (c *Controller) SetQuery(next rowset.Query) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		panic(&MisuseError{Op: "set query", Reason: "controller is stopped"})
	}
	if !c.started {
		c.query = next
		return nil
	}

	region, err := c.db.Region(next)
	if err != nil {
		return &PrepareError{Query: next, Err: err}
	}

	old := c.current
	obs := newObserver(next, region)

	err = c.db.Write(func(w rowset.Writer) error {
		// No further old-query triggers. Cycles already enqueued keep
		// processing and delivering; the transition queues behind them.
		if old.cancel != nil {
			old.cancel()
		}

		c.registry.add(obs)
		obs.cancel = c.db.Observe(obs.region, func() { c.trigger(obs.id) })

		seq := c.clock.Next()
		gate := make(chan cycleResult, 1)
		q := obs.query
		c.db.ConcurrentRead(func(r rowset.Reader, err error) {
			gate <- c.fetchOn(q, r, err)
		})
		c.fifo.Async(func() { c.transition(old.id, obs.id, seq, gate) })

		c.log.Debug("query transition triggered",
			"observer", obs.id, "retiring", old.id, "cycle", seq)
		return nil
	})
	if err != nil {
		c.invalidateObserver(obs)
		return &PrepareError{Query: next, Err: err}
	}

	c.query = next
	c.current = obs
	c.log.Info("query replaced",
		"observer", obs.id,
		"query", obs.query.SQL,
		"region", obs.region.String(),
	)
	return nil
}

// Stop invalidates the subscription: every live observer is retired,
// commit subscriptions are cancelled, and the FIFO drains and exits.
// Cycles in flight are dropped at their next liveness checkpoint, so
// no delegate callback fires after Stop returns observers to the dead
// state. Idempotent; safe from any goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	// Sweep every live observer, not just the current one: a pending
	// query transition may still hold an already-retiring observer.
	for _, o := range c.registry.all() {
		c.invalidateObserver(o)
	}
	if c.fifo != nil {
		c.fifo.Close()
	}
	c.log.Info("tracking stopped")
}

// Rows returns the last processed result set.
//
// Callers must treat the returned slice as read-only. Panics with a
// MisuseError before the first fetch (Start has not succeeded).
func (c *Controller) Rows() rowset.Rows {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		panic(&MisuseError{Op: "rows", Reason: "no result set fetched yet; call Start first"})
	}
	return c.current.snapshotItems()
}

// Query returns the currently tracked query.
func (c *Controller) Query() rowset.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Flush blocks until every cycle triggered before the call has been
// processed and its delegate callbacks, if any, have run. It queues a
// marker behind the pending continuations and, from there, behind the
// pending deliveries.
//
// The delivery executor must be running on its own (a SerialQueue is;
// a manually pumped test executor is not). Returns immediately before
// Start or after Stop.
func (c *Controller) Flush() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	fifo := c.fifo
	c.mu.Unlock()

	done := make(chan struct{})
	fifo.Async(func() {
		c.executor.Async(func() { close(done) })
	})

	select {
	case <-done:
	case <-fifo.Done():
		// Stop raced the marker; dropped deliveries were for dead
		// observers.
	}
}

// Sync schedules fn on the delivery executor with the result set
// current at that point in the delivery stream. The marker queues
// behind pending continuations and deliveries exactly like Flush, so
// every batch delivered before fn runs is already folded into the rows
// fn receives, and every batch delivered after transforms them. It is
// how a late consumer joins the stream without missing or
// double-applying a batch.
//
// fn runs on the delivery executor and must treat the rows as
// read-only. The marker is dropped without running fn before Start,
// after Stop, or when the observer retires while it is in flight.
func (c *Controller) Sync(fn func(rows rowset.Rows)) {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	fifo := c.fifo
	id := c.current.id
	c.mu.Unlock()

	fifo.Async(func() {
		o, ok := c.registry.lookup(id)
		if !ok {
			return
		}
		rows := o.snapshotItems()
		c.executor.Async(func() {
			if _, ok := c.registry.lookup(id); !ok {
				return
			}
			fn(rows)
		})
	})
}

// invalidateObserver performs the one-way transition: flag, commit
// subscription teardown, registry removal. Idempotent.
func (c *Controller) invalidateObserver(o *observer) {
	if !o.invalidated.CompareAndSwap(false, true) {
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	c.registry.remove(o.id)
	c.log.Debug("observer invalidated", "observer", o.id)
}

// cycleResult is what a refetch cycle's gate carries: the materialized
// rows and alongside value, or the failure.
type cycleResult struct {
	rows      rowset.Rows
	alongside any
	err       error
}

// fetchOn materializes the tracked rows and the alongside value from a
// snapshot reader. Runs outside the writer's critical section.
func (c *Controller) fetchOn(q rowset.Query, r rowset.Reader, err error) cycleResult {
	if err != nil {
		return cycleResult{err: err}
	}
	rows, err := r.Rows(q)
	if err != nil {
		return cycleResult{err: fmt.Errorf("fetch %q: %w", q.SQL, err)}
	}
	var alongside any
	if c.alongside != nil {
		alongside, err = c.alongside(r)
		if err != nil {
			return cycleResult{err: fmt.Errorf("fetch alongside: %w", err)}
		}
	}
	return cycleResult{rows: rows, alongside: alongside}
}

// trigger starts one refetch cycle for the observer. Runs inside the
// writer's critical section, immediately after a qualifying commit.
//
// CRITICAL: the continuation is enqueued before the snapshot read
// completes. The FIFO position, fixed here while the writer is held,
// is what pins delivery order to commit order.
func (c *Controller) trigger(id string) {
	o, ok := c.registry.lookup(id)
	if !ok {
		return
	}

	seq := c.clock.Next()
	gate := make(chan cycleResult, 1) // one-shot, never blocks the reader
	q := o.query
	c.db.ConcurrentRead(func(r rowset.Reader, err error) {
		gate <- c.fetchOn(q, r, err)
	})
	c.fifo.Async(func() { c.process(id, seq, gate) })

	c.log.Debug("refetch cycle triggered", "observer", id, "cycle", seq)
}

// process runs one cycle on the subscription's FIFO goroutine: wait for
// the snapshot, re-validate liveness, diff, assign the result set, and
// hand a non-empty batch to the delivery executor.
func (c *Controller) process(id string, seq int64, gate <-chan cycleResult) {
	res := <-gate // suspends this subscription only, never the writer

	// First liveness checkpoint: before materialized rows are diffed.
	o, ok := c.registry.lookup(id)
	if !ok {
		c.log.Debug("cycle dropped: observer invalidated", "observer", id, "cycle", seq)
		return
	}

	if res.err != nil {
		c.forwardError(id, seq, res.err)
		return
	}

	prev := o.snapshotItems()
	batch := diff.Changes(prev, res.rows, c.sameRow)
	o.setItems(res.rows)

	c.log.Debug("cycle processed",
		"observer", id, "cycle", seq, "rows", len(res.rows), "changes", len(batch))

	if len(batch) == 0 {
		return
	}
	c.deliver(id, seq, batch, res.alongside)
}

// transition is the continuation for a query replacement: it retires
// the old observer, hands its result set to the new one as the diff
// baseline, and otherwise behaves like a regular cycle. Because it
// runs on the same FIFO as the old observer's cycles, the baseline it
// inherits is final.
func (c *Controller) transition(oldID, newID string, seq int64, gate <-chan cycleResult) {
	res := <-gate

	var baseline rowset.Rows
	if old, ok := c.registry.lookup(oldID); ok {
		baseline = old.snapshotItems()
		c.invalidateObserver(old)
	}

	o, ok := c.registry.lookup(newID)
	if !ok {
		c.log.Debug("transition dropped: observer invalidated", "observer", newID, "cycle", seq)
		return
	}

	// Inherit the baseline even when the fetch failed, so the next
	// successful cycle diffs against what the consumer last saw.
	o.setItems(baseline)

	if res.err != nil {
		c.forwardError(newID, seq, res.err)
		return
	}

	batch := diff.Changes(baseline, res.rows, c.sameRow)
	o.setItems(res.rows)

	c.log.Debug("query transition processed",
		"observer", newID, "cycle", seq, "rows", len(res.rows), "changes", len(batch))

	if len(batch) == 0 {
		return
	}
	c.deliver(newID, seq, batch, res.alongside)
}

// deliver schedules one atomic batch on the consumer's executor:
// WillChange, each change in standardized order, DidChange. The second
// liveness checkpoint runs strictly before the first callback; once
// that passes, the whole batch is delivered.
func (c *Controller) deliver(id string, seq int64, batch diff.Batch, alongside any) {
	c.executor.Async(func() {
		if _, ok := c.registry.lookup(id); !ok {
			c.log.Debug("delivery dropped: observer invalidated", "observer", id, "cycle", seq)
			return
		}

		if c.willChange != nil {
			c.willChange()
		}
		if c.change != nil {
			for _, change := range batch {
				c.change(change)
			}
		}
		if c.didChange != nil {
			c.didChange(alongside)
		}
	})
}

// forwardError routes a failed cycle to the error handler on the
// consumer's executor. The result set is left untouched.
func (c *Controller) forwardError(id string, seq int64, err error) {
	rerr := &ReadError{Err: err}
	c.log.Warn("refetch cycle failed", "observer", id, "cycle", seq, "error", err)

	if c.errFn == nil {
		return
	}
	c.executor.Async(func() {
		if _, ok := c.registry.lookup(id); !ok {
			return
		}
		c.errFn(rerr)
	})
}
