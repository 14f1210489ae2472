package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vhbit/querywatch/internal/diff"
	"github.com/vhbit/querywatch/internal/rowset"
	"github.com/vhbit/querywatch/internal/store"
	"github.com/vhbit/querywatch/internal/track"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database  string
	Key       []string
	Alongside string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <query>",
		Short: "Track a query and stream its change batches",
		Long: `Track a SELECT query and print a change batch for every commit
that reshapes its result set.

Commit notification is in-process: watch applies writes itself, reading
SQL statements line by line from stdin (blank lines and -- comments are
skipped). Each line commits as one write transaction. The stream ends
on stdin EOF or on SIGINT/SIGTERM, after pending batches are flushed.

Examples:
  querywatch watch --db app.db 'SELECT id, name FROM players ORDER BY id' < writes.sql
  echo "UPDATE players SET score = 9 WHERE id = 1" | querywatch watch --db app.db \
    --key id 'SELECT id, score FROM players ORDER BY score DESC'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVar(&opts.Key, "key", nil, "identity columns for move/update merging")
	cmd.Flags().StringVar(&opts.Alongside, "alongside", "", "single-value query fetched on each batch's snapshot")

	return cmd
}

func runWatch(opts *WatchOptions, query string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	db, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	printer := newBatchPrinter(cmd.OutOrStdout(), opts.Format)

	trackOpts := []track.Option{
		track.WithErrorHandler(printer.cycleError),
	}
	if len(opts.Key) > 0 {
		trackOpts = append(trackOpts, track.WithKey(opts.Key...))
	}
	if opts.Alongside != "" {
		side := rowset.NewQuery(opts.Alongside)
		trackOpts = append(trackOpts, track.WithAlongside(func(r rowset.Reader) (any, error) {
			return r.Value(side)
		}))
	}

	delivery := track.NewSerialQueue()
	defer delivery.Close()

	c := track.New(db, rowset.NewQuery(query), delivery, trackOpts...)
	c.Track(printer)
	if err := c.Start(); err != nil {
		return WrapExitError(ExitFailure, "query cannot be tracked", err)
	}
	defer c.Stop()

	printer.snapshot(c.Rows())

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

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("stdin read failed", "error", err)
		}
	}()

	for {
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			c.Flush()
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			break
		}

		stmt := strings.TrimSpace(line)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		slog.Debug("applying write", "sql", stmt)
		err := db.Write(func(w rowset.Writer) error {
			return w.Exec(stmt)
		})
		if err != nil {
			slog.Error("write failed", "sql", stmt, "error", err)
		}
	}

	c.Flush()
	return nil
}

// batchPrinter renders the tracked stream: the initial snapshot, one
// block (text) or line (json) per delivered batch, and cycle errors.
//
// Delegate callbacks run on the delivery executor, one at a time. The
// command goroutine writes through the printer only before the first
// write (snapshot) and reads its counters only after a Flush, so no
// locking is needed.
type batchPrinter struct {
	w       io.Writer
	format  string
	pending []diff.Change
	seq     int64
	batches int
	changes int
}

func newBatchPrinter(w io.Writer, format string) *batchPrinter {
	return &batchPrinter{w: w, format: format}
}

func (p *batchPrinter) WillChange() {
	p.pending = p.pending[:0]
}

func (p *batchPrinter) HandleChange(change diff.Change) {
	p.pending = append(p.pending, change)
}

func (p *batchPrinter) DidChange(alongside any) {
	p.seq++
	p.batches++
	p.changes += len(p.pending)

	if p.format == "json" {
		changes := make([]any, len(p.pending))
		for i, c := range p.pending {
			changes[i] = c.Map()
		}
		m := map[string]any{
			"type":    "changes",
			"seq":     p.seq,
			"changes": changes,
		}
		if alongside != nil {
			m["alongside"] = alongside
		}
		fmt.Fprintln(p.w, canonical(m))
		return
	}

	header := fmt.Sprintf("batch %d: %d change(s)", p.seq, len(p.pending))
	if alongside != nil {
		header += fmt.Sprintf(" [alongside %s]", canonical(alongside))
	}
	fmt.Fprintln(p.w, header)
	for _, c := range p.pending {
		line := fmt.Sprintf("  %s %s", c, canonical(c.Row))
		if c.Op == diff.Move || c.Op == diff.Update {
			line += fmt.Sprintf(" old %s", canonical(c.Old))
		}
		fmt.Fprintln(p.w, line)
	}
}

// snapshot prints the initial result set. Called before any write can
// trigger a delivery.
func (p *batchPrinter) snapshot(rows rowset.Rows) {
	if p.format == "json" {
		fmt.Fprintln(p.w, canonical(map[string]any{
			"type": "snapshot",
			"rows": rows,
		}))
		return
	}
	fmt.Fprintf(p.w, "snapshot: %d row(s)\n", len(rows))
	for _, row := range rows {
		fmt.Fprintf(p.w, "  %s\n", canonical(row))
	}
}

// cycleError reports a failed refetch cycle. Runs on the delivery
// executor like the batch callbacks.
func (p *batchPrinter) cycleError(err error) {
	if p.format == "json" {
		fmt.Fprintln(p.w, canonical(map[string]any{
			"type":  "error",
			"error": err.Error(),
		}))
		return
	}
	fmt.Fprintf(p.w, "cycle error: %v\n", err)
}

// canonical renders v as canonical JSON, falling back to %v for values
// outside the SQL type domain.
func canonical(v any) string {
	data, err := rowset.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
