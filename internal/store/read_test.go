package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/vhbit/querywatch/internal/rowset"
)

func TestConcurrentRead_SeesCommitBeingObserved(t *testing.T) {
	db := createTestDB(t)
	createPlayersTable(t, db)

	region := rowset.NewRegion()
	region.AddTable("players")

	got := make(chan rowset.Rows, 1)
	cancel := db.Observe(region, func() {
		db.ConcurrentRead(func(r rowset.Reader, err error) {
			if err != nil {
				t.Errorf("ConcurrentRead failed: %v", err)
				got <- nil
				return
			}
			rows, err := r.Rows(rowset.NewQuery(`SELECT name FROM players ORDER BY id`))
			if err != nil {
				t.Errorf("Rows failed: %v", err)
				got <- nil
				return
			}
			got <- rows
		})
	})
	defer cancel()

	mustExec(t, db, `INSERT INTO players (name, score) VALUES ('alice', 1)`)

	rows := <-got
	if len(rows) != 1 || rows[0].Values[0] != "alice" {
		t.Errorf("snapshot rows = %v, want [alice]", rows)
	}
}

func TestConcurrentRead_SnapshotExcludesLaterCommits(t *testing.T) {
	db := createTestDB(t)
	createPlayersTable(t, db)

	region := rowset.NewRegion()
	region.AddTable("players")

	// Hold the snapshot read until a second commit has landed, then
	// materialize. The rows must reflect the first commit only: the
	// snapshot was pinned inside the first commit's critical section.
	var calls int
	release := make(chan struct{})
	got := make(chan rowset.Rows, 2)
	cancel := db.Observe(region, func() {
		calls++
		if calls > 1 {
			return
		}
		db.ConcurrentRead(func(r rowset.Reader, err error) {
			if err != nil {
				t.Errorf("ConcurrentRead failed: %v", err)
				got <- nil
				return
			}
			<-release
			rows, err := r.Rows(rowset.NewQuery(`SELECT name FROM players ORDER BY id`))
			if err != nil {
				t.Errorf("Rows failed: %v", err)
				got <- nil
				return
			}
			got <- rows
		})
	})
	defer cancel()

	mustExec(t, db, `INSERT INTO players (name, score) VALUES ('alice', 1)`)
	mustExec(t, db, `INSERT INTO players (name, score) VALUES ('bob', 2)`)
	close(release)

	rows := <-got
	if len(rows) != 1 || rows[0].Values[0] != "alice" {
		t.Errorf("pinned snapshot rows = %v, want [alice] only", rows)
	}
}

func TestConcurrentRead_InsideWriteExcludesUncommitted(t *testing.T) {
	db := createTestDB(t)
	createPlayersTable(t, db)

	got := make(chan rowset.Rows, 1)
	err := db.Write(func(w rowset.Writer) error {
		if err := w.Exec(`INSERT INTO players (name, score) VALUES ('alice', 1)`); err != nil {
			return err
		}
		db.ConcurrentRead(func(r rowset.Reader, err error) {
			if err != nil {
				t.Errorf("ConcurrentRead failed: %v", err)
				got <- nil
				return
			}
			rows, err := r.Rows(rowset.NewQuery(`SELECT name FROM players`))
			if err != nil {
				t.Errorf("Rows failed: %v", err)
				got <- nil
				return
			}
			got <- rows
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	if rows := <-got; len(rows) != 0 {
		t.Errorf("snapshot saw %d uncommitted rows, want 0", len(rows))
	}
}

func TestConcurrentRead_ReportsEstablishmentError(t *testing.T) {
	db := createTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	errs := make(chan error, 1)
	db.ConcurrentRead(func(r rowset.Reader, err error) {
		errs <- err
	})

	if err := <-errs; err == nil {
		t.Error("ConcurrentRead on a closed store reported no error")
	}
}

func TestValue_FirstColumnOfFirstRow(t *testing.T) {
	db := createTestDB(t)
	createPlayersTable(t, db)
	mustExec(t, db, `INSERT INTO players (name, score) VALUES ('alice', 10), ('bob', 20)`)

	err := db.Write(func(w rowset.Writer) error {
		v, err := w.Value(rowset.NewQuery(`SELECT score FROM players ORDER BY score DESC`))
		if err != nil {
			return err
		}
		if v != int64(20) {
			t.Errorf("Value() = %v, want 20", v)
		}

		v, err = w.Value(rowset.NewQuery(`SELECT name FROM players WHERE score > ?`, 100))
		if err != nil {
			return err
		}
		if v != nil {
			t.Errorf("Value() on empty result = %v, want nil", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
}

func TestRows_TypeFidelity(t *testing.T) {
	db := createTestDB(t)
	mustExec(t, db, `CREATE TABLE mixed (i INTEGER, r REAL, s TEXT, b BLOB, n TEXT, ts TIMESTAMP)`)

	when := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	mustExec(t, db, `INSERT INTO mixed VALUES (?, ?, ?, ?, NULL, ?)`,
		int64(42), 3.5, "hello", []byte{0x01, 0x02}, when)

	rows := queryRows(t, db, `SELECT i, r, s, b, n, ts FROM mixed`)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	values := rows[0].Values
	if values[0] != int64(42) {
		t.Errorf("INTEGER = %T %v, want int64 42", values[0], values[0])
	}
	if values[1] != 3.5 {
		t.Errorf("REAL = %T %v, want float64 3.5", values[1], values[1])
	}
	if values[2] != "hello" {
		t.Errorf("TEXT = %T %v, want string hello", values[2], values[2])
	}
	if b, ok := values[3].([]byte); !ok || !bytes.Equal(b, []byte{0x01, 0x02}) {
		t.Errorf("BLOB = %T %v, want [1 2]", values[3], values[3])
	}
	if values[4] != nil {
		t.Errorf("NULL = %T %v, want nil", values[4], values[4])
	}
	ts, ok := values[5].(time.Time)
	if !ok || !ts.Equal(when) {
		t.Errorf("TIMESTAMP = %T %v, want %v", values[5], values[5], when)
	}
}

func TestRows_ColumnsMatchQuery(t *testing.T) {
	db := createTestDB(t)
	createPlayersTable(t, db)
	mustExec(t, db, `INSERT INTO players (name, score) VALUES ('alice', 1)`)

	rows := queryRows(t, db, `SELECT score AS points, name FROM players`)
	wantCols := []string{"points", "name"}
	for i, col := range wantCols {
		if rows[0].Columns[i] != col {
			t.Errorf("column %d = %q, want %q", i, rows[0].Columns[i], col)
		}
	}
}
