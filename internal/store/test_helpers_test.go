package store

import (
	"path/filepath"
	"testing"

	"github.com/vhbit/querywatch/internal/rowset"
)

// createTestDB opens a fresh store on a temp file.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createPlayersTable creates the table most tests write to.
func createPlayersTable(t *testing.T, db *DB) {
	t.Helper()
	mustExec(t, db, `CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score INTEGER NOT NULL DEFAULT 0)`)
}

// mustExec runs one statement in its own write transaction.
func mustExec(t *testing.T, db *DB, sql string, args ...any) {
	t.Helper()
	err := db.Write(func(w rowset.Writer) error {
		return w.Exec(sql, args...)
	})
	if err != nil {
		t.Fatalf("Write(%q) failed: %v", sql, err)
	}
}

// queryRows runs a query inside a throwaway write transaction and
// returns the materialized rows.
func queryRows(t *testing.T, db *DB, sql string, args ...any) rowset.Rows {
	t.Helper()
	var rows rowset.Rows
	err := db.Write(func(w rowset.Writer) error {
		var err error
		rows, err = w.Rows(rowset.NewQuery(sql, args...))
		return err
	})
	if err != nil {
		t.Fatalf("query %q failed: %v", sql, err)
	}
	return rows
}
