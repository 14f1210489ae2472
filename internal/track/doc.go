// Package track implements live observation of a SQL query's result set.
//
// A Controller binds one query to a database, refetches the result after
// every commit that may affect it, and delivers the minimal set of
// structural changes (insert/delete/move/update) to a consumer delegate.
//
// ARCHITECTURE:
//
// Refetch Cycle Pipeline:
//  1. A commit touching the query's region fires the observer's trigger
//     inside the writer's critical section.
//  2. The trigger captures a database snapshot (ConcurrentRead) and
//     immediately enqueues a processing continuation onto the
//     subscription's FIFO queue - before the snapshot read completes.
//  3. The continuation blocks on a one-shot gate until its own snapshot
//     has materialized, diffs the rows against the previous result set,
//     and assigns the new result set.
//  4. Non-empty change batches are handed to the consumer's executor as
//     one atomic closure: WillChange, one call per change, DidChange.
//
// Because continuations enter the FIFO in commit order and each waits
// only on its own gate, deliveries happen in trigger order even when a
// later trigger's snapshot read finishes first. Completion-time races
// never become delivery-order races.
//
// Liveness:
// Scheduled continuations and delivery closures never hold the observer.
// They carry its id and look it up in the controller's registry at two
// checkpoints: before diffing, and again before the first callback of a
// batch. Invalidation (Stop, query replacement) removes the id, which
// makes all in-flight work for that observer inert. Invalidation is
// one-way and idempotent.
//
// Shared state:
// An observer's result set has exactly one writer, the subscription's
// FIFO goroutine. Everything else reads it through accessors.
package track
