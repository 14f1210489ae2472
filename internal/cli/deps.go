package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vhbit/querywatch/internal/rowset"
	"github.com/vhbit/querywatch/internal/store"
)

// DepsOptions holds flags for the deps command.
type DepsOptions struct {
	*RootOptions
	Database string
}

// NewDepsCommand creates the deps command.
func NewDepsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DepsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deps <query>",
		Short: "Show the tables and columns a query reads",
		Long: `Prepare a SELECT query and print the region it reads: every table
and column access the database observes during preparation. An empty
column list means the whole table (aggregates and star selects).

Commits are filtered against this region, so deps shows exactly which
writes can trigger a refetch for the query.

Examples:
  querywatch deps --db app.db 'SELECT id, name FROM players ORDER BY id'
  querywatch deps --db app.db 'SELECT COUNT(*) FROM players' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runDeps(opts *DepsOptions, query string, cmd *cobra.Command) error {
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

	region, err := db.Region(rowset.NewQuery(query))
	if err != nil {
		return WrapExitError(ExitFailure, "query cannot be tracked", err)
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		tables := make(map[string]any, len(region))
		for _, t := range region.Tables() {
			cols, _ := region.Columns(t)
			tables[t] = cols
		}
		return out.Success(tables)
	}
	return out.Success(region.String())
}
