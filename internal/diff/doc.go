// Package diff computes the minimal set of structural changes between
// two ordered result sets.
//
// The computation is pure and runs in two phases:
//
// Phase 1 builds a minimal edit script (insertions and deletions only)
// by dynamic programming over full row equality. Rows that compare equal
// are silent no-ops: an untouched row whose index shifts because of
// surrounding edits produces no change of its own.
//
// Phase 2 standardizes the script: a deletion and an insertion that
// denote the same logical row (per the caller's identity predicate) are
// merged into one move (positions differ) or update (positions equal),
// carrying the previous values of the columns that changed. Updates are
// relocated to the end of the batch so consumers can settle positions
// before applying field-level changes.
//
// The tie-break in phase 1 (deletion over insertion over substitution,
// compared on predecessor script length) decides which of several
// equally short scripts is produced, and therefore which row of an
// ambiguous transformation is reported as moved. It is part of the
// package's observable behavior and is pinned by tests - do not reorder.
//
// Complexity is O(m·n) time and space. Result sets here are UI-sized;
// the quadratic table is the price of an exact minimal script with a
// stable tie-break, which heuristic diff algorithms do not give.
package diff
