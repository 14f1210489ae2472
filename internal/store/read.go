package store

import (
	"database/sql"
	"fmt"

	"github.com/vhbit/querywatch/internal/rowset"
)

// ConcurrentRead pins a read snapshot, then runs fn against it on its
// own goroutine. It returns as soon as the snapshot is established.
//
// The caller runs inside the write critical section, so blocking until
// the snapshot exists guarantees it contains every commit up to and
// including the one being observed, and nothing later: the next commit
// cannot start until the caller's critical section ends. Row
// materialization happens after ConcurrentRead returns and never
// delays the writer.
//
// fn is always invoked exactly once, with a reader or with the
// establishment error.
func (db *DB) ConcurrentRead(fn func(r rowset.Reader, err error)) {
	ready := make(chan struct{})
	go func() {
		tx, err := db.readers.Begin()
		if err != nil {
			close(ready)
			fn(nil, fmt.Errorf("failed to begin snapshot read: %w", err))
			return
		}
		// BEGIN is deferred: the snapshot is taken at the first read.
		// Touch the schema so it is taken now, while the writer waits.
		var n int
		if err := tx.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
			tx.Rollback()
			close(ready)
			fn(nil, fmt.Errorf("failed to establish snapshot: %w", err))
			return
		}
		close(ready)
		fn(txReader{src: tx}, nil)
		tx.Rollback()
	}()
	<-ready
}

// txReader adapts a transaction to rowset.Reader. Repeated queries see
// the transaction's view: the pinned snapshot for isolated reads, the
// in-progress transaction for writers.
type txReader struct {
	src *sql.Tx
}

func (r txReader) Rows(q rowset.Query) (rowset.Rows, error) {
	rows, err := r.src.Query(q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return collectRows(rows)
}

func (r txReader) Value(q rowset.Query) (any, error) {
	set, err := r.Rows(q)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 || len(set[0].Values) == 0 {
		return nil, nil
	}
	return set[0].Values[0], nil
}

// collectRows materializes a result set. Scanning into *any makes the
// driver values caller-owned, byte slices included, so rows stay valid
// after the transaction ends.
func collectRows(rows *sql.Rows) (rowset.Rows, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out rowset.Rows
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, rowset.NewRow(cols, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
