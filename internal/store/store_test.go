package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if got := db.Path(); got != path {
		t.Errorf("Path() = %q, want %q", got, path)
	}
}

func TestOpen_RejectsMemoryDatabase(t *testing.T) {
	paths := []string{
		":memory:",
		"file::memory:?cache=shared",
		"file:test.db?mode=memory",
	}

	for _, path := range paths {
		db, err := Open(path)
		if err == nil {
			db.Close()
			t.Errorf("Open(%q) succeeded, want error", path)
			continue
		}
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does", "not", "exist", "test.db")

	db, err := Open(path)
	if err == nil {
		db.Close()
		t.Fatal("Open() succeeded, want error for missing directory")
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	db := createTestDB(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"synchronous":  "1", // NORMAL
	}

	for name, want := range checks {
		if err := db.verifyPragma(name, want); err != nil {
			t.Errorf("pragma check failed: %v", err)
		}
	}
}

func TestOpen_ExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	createPlayersTable(t, db)
	mustExec(t, db, `INSERT INTO players (name, score) VALUES ('alice', 10)`)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer reopened.Close()

	rows := queryRows(t, reopened, `SELECT name FROM players`)
	if len(rows) != 1 || rows[0].Values[0] != "alice" {
		t.Errorf("reopened database rows = %v, want the row written before Close", rows)
	}
}

func TestClose_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}
