package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vhbit/querywatch/internal/diff"
	"github.com/vhbit/querywatch/internal/rowset"
	"github.com/vhbit/querywatch/internal/store"
	"github.com/vhbit/querywatch/internal/testutil"
	"github.com/vhbit/querywatch/internal/track"
)

// Run executes a scenario against a fresh database and returns the
// recorded trace.
//
// Each scenario gets its own on-disk database in a temp directory,
// removed when Run returns. Setup statements run before tracking
// starts; each step's writes commit in one transaction, and the run
// flushes the subscription after every step so delivered batches are
// attributed to the step whose commit produced them. Batch sequence
// numbers come from a per-run deterministic clock, so the same
// scenario yields an identical trace on every run.
//
// Run returns an error only when the scenario cannot execute (bad SQL,
// untrackable query). Expect and assertion failures are recorded in
// the result instead.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "querywatch-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	db, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario database: %w", err)
	}
	defer db.Close()

	for i, stmt := range scenario.Setup {
		err := db.Write(func(w rowset.Writer) error {
			return w.Exec(stmt)
		})
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	result := NewResult()
	rec := newRecorder()

	opts := []track.Option{
		track.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		track.WithErrorHandler(func(err error) {
			result.AddError(fmt.Sprintf("refetch cycle failed: %v", err))
		}),
	}
	if len(scenario.Identity) > 0 {
		opts = append(opts, track.WithKey(scenario.Identity...))
	}
	if scenario.Alongside != "" {
		side := rowset.NewQuery(scenario.Alongside)
		opts = append(opts, track.WithAlongside(func(r rowset.Reader) (any, error) {
			return r.Value(side)
		}))
	}

	delivery := track.NewSerialQueue()
	defer delivery.Close()

	c := track.New(db, rowset.NewQuery(scenario.Query), delivery, opts...)
	c.Track(rec)
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start tracking: %w", err)
	}
	defer c.Stop()

	for _, step := range scenario.Steps {
		err := db.Write(func(w rowset.Writer) error {
			for _, stmt := range step.Writes {
				if err := w.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Label, err)
		}

		// Every cycle the commit triggered is enqueued before Write
		// returns; Flush waits for its processing and delivery, so
		// whatever the recorder holds now belongs to this step.
		c.Flush()
		delivered := rec.take(step.Label)
		result.Batches = append(result.Batches, delivered...)

		switch step.Expect {
		case ExpectChanges:
			if len(delivered) == 0 {
				result.AddError(fmt.Sprintf("step %q: expected changes, none were delivered", step.Label))
			}
		case ExpectNone:
			if len(delivered) > 0 {
				result.AddError(fmt.Sprintf("step %q: expected no changes, got %d batch(es)", step.Label, len(delivered)))
			}
		}
	}

	result.FinalRows = c.Rows()
	evaluateAssertions(result, scenario.Assertions)
	return result, nil
}

// recorder is the delegate registered with the controller. Its
// callbacks run on the delivery executor; take hands finished batches
// to the scenario loop after each flush.
type recorder struct {
	mu      sync.Mutex
	clock   *testutil.DeterministicClock
	current *BatchTrace
	done    []BatchTrace
}

func newRecorder() *recorder {
	return &recorder{clock: testutil.NewDeterministicClock()}
}

func (r *recorder) WillChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &BatchTrace{
		Seq:     r.clock.Next(),
		Changes: []map[string]any{},
	}
}

func (r *recorder) HandleChange(change diff.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Changes = append(r.current.Changes, change.Map())
}

func (r *recorder) DidChange(alongside any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Alongside = alongside
	r.done = append(r.done, *r.current)
	r.current = nil
}

// take labels the batches finished since the last call and returns
// them.
func (r *recorder) take(label string) []BatchTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BatchTrace, len(r.done))
	for i, b := range r.done {
		b.Step = label
		out[i] = b
	}
	r.done = r.done[:0]
	return out
}
