package track

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vhbit/querywatch/internal/rowset"
)

// observer is one tracked query binding: a query, the region it reads,
// its commit subscription, and the last processed result set.
//
// An observer is Active from installation until invalidated. The
// transition is terminal, one-way, and idempotent: once invalidated it
// neither triggers new cycles nor accepts delivery of cycles already in
// flight (enforced via the registry checkpoints).
type observer struct {
	id     string
	query  rowset.Query
	region rowset.Region

	invalidated atomic.Bool
	cancel      func() // commit subscription teardown, set during installation

	mu    sync.Mutex
	items rowset.Rows
}

func newObserver(q rowset.Query, region rowset.Region) *observer {
	return &observer{
		id:     uuid.Must(uuid.NewV7()).String(),
		query:  q,
		region: region,
	}
}

// snapshotItems returns the last processed result set.
func (o *observer) snapshotItems() rowset.Rows {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items
}

// setItems replaces the result set wholesale. Called only from the
// subscription's FIFO goroutine (and once at installation, before any
// trigger can fire).
func (o *observer) setItems(rows rowset.Rows) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = rows
}
