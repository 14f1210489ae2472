// Package store provides the SQLite engine behind live query
// tracking.
//
// A DB owns three handles to one database file:
//   - a single write connection with an update hook, so every commit
//     knows which tables it wrote
//   - a read-only pool that pins WAL snapshots for isolated reads
//   - a pinned analyzer connection whose authorizer reports the
//     (table, column) pairs a query reads
//
// # Write Protocol
//
// Write serializes all mutations through one connection and one
// transaction at a time. After a commit, observers registered with
// Observe are notified in commit order, before the next write can
// begin. An observer callback that needs consistent data calls
// ConcurrentRead, which pins a snapshot of the database as of that
// commit and materializes rows without holding up the writer.
//
// Commit notification relies on the SQLite update hook and is
// therefore per-process: writes made through another handle to the
// same file are durable but unobserved. Route writes through the DB
// that owns the observers.
//
// # Database Configuration
//
//   - WAL mode: snapshot reads proceed during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
