package track

import (
	"github.com/vhbit/querywatch/internal/diff"
	"github.com/vhbit/querywatch/internal/rowset"
)

// Database is the engine collaborator a Controller tracks against.
// *store.DB satisfies it; tests substitute scripted fakes.
type Database interface {
	// Region computes the set of (table, column) pairs the query reads.
	// It is called once per Start or SetQuery; failure means the query
	// cannot be tracked.
	Region(q rowset.Query) (rowset.Region, error)

	// Write runs fn with exclusive write access. All writes are totally
	// ordered by this method.
	Write(fn func(rowset.Writer) error) error

	// ConcurrentRead captures a snapshot containing every write
	// committed so far and returns as soon as the snapshot is
	// established. fn then runs asynchronously with a reader on that
	// snapshot, or with the establishment error. Must be called from
	// within Write or an Observe callback, both of which run in the
	// writer's critical section.
	ConcurrentRead(fn func(r rowset.Reader, err error))

	// Observe registers onCommit to run, still inside the writer's
	// critical section, after every commit that touches a table in
	// region. Commit order is callback order. The returned cancel is
	// idempotent.
	Observe(region rowset.Region, onCommit func()) (cancel func())
}

// WillChangeHandler is implemented by delegates that want notification
// immediately before a change batch is applied.
type WillChangeHandler interface {
	WillChange()
}

// ChangeHandler is implemented by delegates that consume individual
// changes. Calls arrive in standardized batch order: insertions,
// deletions and moves first, then updates.
type ChangeHandler interface {
	HandleChange(change diff.Change)
}

// DidChangeHandler is implemented by delegates that want notification
// after a batch, together with the value fetched alongside the rows on
// the same snapshot (nil unless WithAlongside was configured).
type DidChangeHandler interface {
	DidChange(alongside any)
}
