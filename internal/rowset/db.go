package rowset

// Reader runs queries against one consistent view of the database.
//
// Inside a write transaction the view is the transaction itself; inside
// an isolated read it is the snapshot the read was pinned to. Either
// way, repeated queries through the same Reader see the same data.
type Reader interface {
	// Rows executes the query and materializes every result row.
	Rows(q Query) (Rows, error)

	// Value executes the query and returns the first column of the
	// first row, or nil if the query returns no rows. Convenience for
	// single-value side queries fetched alongside a tracked result.
	Value(q Query) (any, error)
}

// Writer executes statements inside the serialized write transaction.
// It can also read - the write transaction sees its own changes.
type Writer interface {
	Reader

	// Exec runs a statement. Affected tables are tracked by the store
	// for commit notification.
	Exec(sql string, args ...any) error
}
