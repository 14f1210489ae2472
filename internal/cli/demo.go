package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/spf13/cobra"

	"github.com/vhbit/querywatch/internal/rowset"
	"github.com/vhbit/querywatch/internal/store"
	"github.com/vhbit/querywatch/internal/track"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Database string
	Writes   int
	Interval time.Duration
	Seed     int64
}

const demoQuery = "SELECT id, name, team, score FROM players ORDER BY score DESC, id"

// demoPlayer is the fake-data template for generated rows.
type demoPlayer struct {
	Name string `faker:"first_name"`
	Team string `faker:"oneof: red, blue, gold"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted leaderboard against a tracked query",
		Long: `Run a scripted churn against a tracked leaderboard.

The demo creates a players table (in a temporary database unless --db
points somewhere), tracks the score ranking, and applies a seeded mix
of inserts, score changes, and deletes. Every commit that reshapes the
ranking streams a change batch, exactly as watch would print it: moves
when a score change reorders players, updates when a value changes in
place, nothing when a write leaves the ranking untouched.

The write script is deterministic for a given --seed; generated names
are not.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: a temporary file)")
	cmd.Flags().IntVar(&opts.Writes, "writes", 12, "number of writes to apply")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 400*time.Millisecond, "pause between writes")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "random seed for the write script")

	return cmd
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	path := opts.Database
	if path == "" {
		dir, err := os.MkdirTemp("", "querywatch-demo-*")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create scratch directory", err)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "demo.db")
	}

	db, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	err = db.Write(func(w rowset.Writer) error {
		return w.Exec(`CREATE TABLE IF NOT EXISTS players (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			team TEXT NOT NULL,
			score INTEGER NOT NULL
		)`)
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create demo table", err)
	}

	printer := newBatchPrinter(cmd.OutOrStdout(), opts.Format)

	delivery := track.NewSerialQueue()
	defer delivery.Close()

	side := rowset.NewQuery("SELECT COUNT(*) FROM players")
	c := track.New(db, rowset.NewQuery(demoQuery), delivery,
		track.WithKey("id"),
		track.WithAlongside(func(r rowset.Reader) (any, error) { return r.Value(side) }),
		track.WithErrorHandler(printer.cycleError),
	)
	c.Track(printer)
	if err := c.Start(); err != nil {
		return WrapExitError(ExitFailure, "query cannot be tracked", err)
	}
	defer c.Stop()

	printer.snapshot(c.Rows())

	// Continue from whatever the table already holds.
	script := newDemoScript(opts.Seed, c.Rows())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	applied := 0
loop:
	for i := 0; i < opts.Writes; i++ {
		if opts.Interval > 0 {
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(opts.Interval):
			}
		} else if ctx.Err() != nil {
			break
		}

		stmt, args, err := script.next()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to generate demo write", err)
		}
		slog.Debug("applying write", "sql", stmt, "args", args)
		err = db.Write(func(w rowset.Writer) error {
			return w.Exec(stmt, args...)
		})
		if err != nil {
			return WrapExitError(ExitFailure, "demo write failed", err)
		}
		applied++
	}

	c.Flush()

	if opts.Format == "json" {
		fmt.Fprintln(cmd.OutOrStdout(), canonical(map[string]any{
			"type":    "summary",
			"writes":  applied,
			"batches": printer.batches,
			"changes": printer.changes,
		}))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "demo complete: %d write(s), %d batch(es), %d change(s)\n",
		applied, printer.batches, printer.changes)
	return nil
}

// demoScript generates the write churn: inserts with fake identities,
// score bumps, and the occasional elimination. The op sequence and all
// numeric values come from the seeded generator.
type demoScript struct {
	rng    *rand.Rand
	ids    []int64
	nextID int64
}

func newDemoScript(seed int64, rows rowset.Rows) *demoScript {
	s := &demoScript{
		rng:    rand.New(rand.NewSource(seed)),
		nextID: 1,
	}
	for _, row := range rows {
		v, ok := row.Value("id")
		if !ok {
			continue
		}
		id, ok := v.(int64)
		if !ok {
			continue
		}
		s.ids = append(s.ids, id)
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return s
}

func (s *demoScript) next() (stmt string, args []any, err error) {
	roll := s.rng.Intn(10)
	switch {
	case len(s.ids) == 0 || roll < 4:
		var p demoPlayer
		if err := faker.FakeData(&p); err != nil {
			return "", nil, fmt.Errorf("fake player: %w", err)
		}
		id := s.nextID
		s.nextID++
		s.ids = append(s.ids, id)
		return "INSERT INTO players (id, name, team, score) VALUES (?, ?, ?, ?)",
			[]any{id, p.Name, p.Team, s.rng.Intn(100)}, nil
	case roll < 8:
		id := s.ids[s.rng.Intn(len(s.ids))]
		delta := s.rng.Intn(41) - 20
		return "UPDATE players SET score = score + ? WHERE id = ?", []any{delta, id}, nil
	default:
		i := s.rng.Intn(len(s.ids))
		id := s.ids[i]
		s.ids = append(s.ids[:i], s.ids[i+1:]...)
		return "DELETE FROM players WHERE id = ?", []any{id}, nil
	}
}
