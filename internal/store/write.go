package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/vhbit/querywatch/internal/rowset"
)

// Write runs fn inside the write transaction. Writes are totally
// ordered: the transaction begins immediately, fn sees its own
// statements, and a non-nil error from fn rolls everything back.
//
// After a successful commit that wrote rows, every observer whose
// region overlaps the touched tables is notified in registration
// order, still inside the critical section. The next Write cannot
// begin until all callbacks have returned, so commit order and
// callback order agree.
func (db *DB) Write(fn func(w rowset.Writer) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	clear(db.touched)

	tx, err := db.writeConn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	if err := fn(txWriter{txReader{src: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write transaction: %w", err)
	}

	if len(db.touched) == 0 {
		// Nothing written (reads only, or DDL, which the update hook
		// does not report). No result set can have changed.
		return nil
	}

	tables := make([]string, 0, len(db.touched))
	for t := range db.touched {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	db.notifyCommit(tables)
	return nil
}

// notifyCommit runs the callback of every observer whose region
// overlaps the written tables. Called with writeMu held; callbacks run
// inside the critical section so they may pin snapshots via
// ConcurrentRead before the next commit.
func (db *DB) notifyCommit(tables []string) {
	db.subMu.Lock()
	subs := make([]subscriber, len(db.subs))
	copy(subs, db.subs)
	db.subMu.Unlock()

	for _, sub := range subs {
		if sub.region.Overlaps(tables) {
			sub.notify()
		}
	}
}

// Observe registers onCommit to run after every commit that writes a
// table in region. The returned cancel is idempotent and safe from any
// goroutine; a callback that is already running is not interrupted.
func (db *DB) Observe(region rowset.Region, onCommit func()) (cancel func()) {
	db.subMu.Lock()
	db.subSeq++
	id := db.subSeq
	db.subs = append(db.subs, subscriber{id: id, region: region, notify: onCommit})
	db.subMu.Unlock()

	return func() {
		db.subMu.Lock()
		defer db.subMu.Unlock()
		for i, sub := range db.subs {
			if sub.id == id {
				db.subs = append(db.subs[:i], db.subs[i+1:]...)
				return
			}
		}
	}
}

// txWriter adapts the write transaction to rowset.Writer. Statements
// run on the hooked connection, so the update hook records every table
// they touch.
type txWriter struct {
	txReader
}

func (w txWriter) Exec(sql string, args ...any) error {
	if _, err := w.src.Exec(sql, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}
