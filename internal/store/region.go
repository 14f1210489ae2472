package store

import (
	"context"
	"fmt"

	"github.com/vhbit/querywatch/internal/rowset"
)

// Authorizer codes from sqlite3.h that the driver does not re-export.
// https://www.sqlite.org/c3ref/c_alter_table.html
const (
	authOK   = 0  // SQLITE_OK: allow the action
	authRead = 20 // SQLITE_READ: arg1 is the table, arg2 the column
)

// Region compiles the query on the analyzer connection and returns the
// (table, column) pairs it reads, as reported by the authorizer during
// prepare. Arguments are not bound, so placeholders are fine.
//
// A read reported without a column name means the statement accesses
// the table as a whole (aggregates do this); the region then records
// the whole table, widening away any per-column reads.
//
// Statements that write are rejected: only read-only queries can be
// tracked.
func (db *DB) Region(q rowset.Query) (rowset.Region, error) {
	db.analyzeMu.Lock()
	defer db.analyzeMu.Unlock()

	db.reads = db.reads[:0]
	db.wrote = ""
	db.collecting = true
	stmt, err := db.analyzeConn.PrepareContext(context.Background(), q.SQL)
	db.collecting = false
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	stmt.Close()

	if db.wrote != "" {
		return nil, fmt.Errorf("query is not read-only: it writes table %q", db.wrote)
	}

	whole := make(map[string]struct{})
	for _, rd := range db.reads {
		if rd.column == "" {
			whole[rd.table] = struct{}{}
		}
	}

	region := rowset.NewRegion()
	for _, rd := range db.reads {
		if _, ok := whole[rd.table]; ok {
			region.AddTable(rd.table)
			continue
		}
		region.Add(rd.table, rd.column)
	}
	return region, nil
}
