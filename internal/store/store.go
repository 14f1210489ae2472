package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/vhbit/querywatch/internal/rowset"
)

// DB is a tracked SQLite database. It owns three handles to one file:
//
//   - write: a pool of exactly one connection, checked out for the
//     lifetime of the DB so the update hook stays attached. Every
//     write flows through it, serialized by writeMu.
//   - readers: a read-only pool used by ConcurrentRead to pin WAL
//     snapshots.
//   - analyze: one pinned read-only connection whose authorizer
//     reports the (table, column) pairs a statement reads.
//
// The database is configured with:
//   - WAL mode, so snapshot reads proceed while the writer works
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
type DB struct {
	path string

	write     *sql.DB
	writeConn *sql.Conn
	writeMu   sync.Mutex
	// touched collects the tables written by the current transaction.
	// The update hook appends to it while a statement runs on the
	// write connection, which only happens under writeMu.
	touched map[string]struct{}

	readers *sql.DB

	analyze     *sql.DB
	analyzeConn *sql.Conn
	analyzeMu   sync.Mutex
	// collecting, reads and wrote are the authorizer's scratchpad.
	// They are only touched while analyzeMu is held: the authorizer
	// callback runs on the goroutine that is preparing a statement.
	collecting bool
	reads      []tableRead
	wrote      string

	subMu  sync.Mutex
	subSeq int64
	subs   []subscriber

	closed bool // under writeMu
}

// subscriber is one Observe registration.
type subscriber struct {
	id     int64
	region rowset.Region
	notify func()
}

// tableRead is one SQLITE_READ report from the authorizer.
// An empty column means the statement accesses the table as a whole.
type tableRead struct {
	table  string
	column string
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas automatically. The schema is the caller's
// business; run DDL through Write.
//
// In-memory databases are rejected: each of the three handles would
// open its own private empty database, so snapshots and notifications
// could never agree.
func Open(path string) (*DB, error) {
	if isMemory(path) {
		return nil, fmt.Errorf("in-memory database %q is not supported: each connection would see its own empty database", path)
	}

	db := &DB{
		path:    path,
		touched: make(map[string]struct{}),
	}

	if err := db.openWriter(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.openAnalyzer(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.openReaders(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" ||
		strings.Contains(path, ":memory:") ||
		strings.Contains(path, "mode=memory")
}

// openWriter opens the write handle, pins its single connection,
// applies pragmas and installs the update hook on it.
//
// _txlock=immediate makes every transaction a write transaction from
// BEGIN, so two racing writers fail over to the busy handler instead
// of deadlocking on lock upgrade.
func (db *DB) openWriter() error {
	writer, err := sql.Open("sqlite3", "file:"+db.path+"?_txlock=immediate")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)
	db.write = writer

	conn, err := writer.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db.writeConn = conn

	if err := applyPragmas(conn); err != nil {
		return err
	}

	err = conn.Raw(func(driverConn any) error {
		raw, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		raw.RegisterUpdateHook(func(op int, database, table string, rowid int64) {
			db.touched[table] = struct{}{}
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to install update hook: %w", err)
	}
	return nil
}

// openAnalyzer opens the read-only analyzer handle, pins its single
// connection and installs the authorizer on it. The authorizer is a
// no-op outside Region calls.
func (db *DB) openAnalyzer() error {
	analyze, err := sql.Open("sqlite3", "file:"+db.path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open analyzer: %w", err)
	}
	analyze.SetMaxOpenConns(1)
	analyze.SetMaxIdleConns(1)
	analyze.SetConnMaxLifetime(0)
	db.analyze = analyze

	conn, err := analyze.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to connect analyzer: %w", err)
	}
	db.analyzeConn = conn

	err = conn.Raw(func(driverConn any) error {
		raw, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		raw.RegisterAuthorizer(func(action int, arg1, arg2, arg3 string) int {
			if db.collecting {
				switch action {
				case authRead:
					db.reads = append(db.reads, tableRead{table: arg1, column: arg2})
				case sqlite3.SQLITE_INSERT, sqlite3.SQLITE_UPDATE, sqlite3.SQLITE_DELETE:
					db.wrote = arg1
				}
			}
			return authOK
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to install authorizer: %w", err)
	}
	return nil
}

// openReaders opens the read-only snapshot pool.
func (db *DB) openReaders() error {
	readers, err := sql.Open("sqlite3", "file:"+db.path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open reader pool: %w", err)
	}
	if err := readers.Ping(); err != nil {
		readers.Close()
		return fmt.Errorf("failed to connect reader pool: %w", err)
	}
	db.readers = readers
	return nil
}

// applyPragmas sets required SQLite configuration on the pinned write
// connection.
func applyPragmas(conn *sql.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Path returns the database file path the DB was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close releases all three handles. Stop controllers observing the
// store first: Close does not wait for in-flight snapshot reads, their
// queries fail once the reader pool shuts down. Calls after the first
// are no-ops; handles stay set so late Write or ConcurrentRead calls
// degrade to errors rather than panics.
func (db *DB) Close() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if db.analyzeConn != nil {
		keep(db.analyzeConn.Close())
	}
	if db.analyze != nil {
		keep(db.analyze.Close())
	}
	if db.readers != nil {
		keep(db.readers.Close())
	}
	if db.writeConn != nil {
		keep(db.writeConn.Close())
	}
	if db.write != nil {
		keep(db.write.Close())
	}
	return firstErr
}

// verifyPragma checks that a pragma is set to the expected value on
// the write connection. Used for testing.
func (db *DB) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := db.writeConn.QueryRowContext(context.Background(), query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
