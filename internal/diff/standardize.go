package diff

import (
	"slices"

	"github.com/vhbit/querywatch/internal/rowset"
)

// standardize rewrites a raw edit script into its delivered form. Each
// raw change is matched against the earliest not-yet-merged change of
// the inverse kind that denotes the same logical row; the pair becomes
// an Update when both positions agree and a Move otherwise. Updates are
// collected separately and appended after everything else, so consumers
// adjusting positions see structural changes before value changes.
//
// Merged Moves and Updates never match again: only plain insertions and
// deletions are candidates.
func standardize(raw Batch, sameRow SameRowFunc) Batch {
	if sameRow == nil {
		return raw
	}
	merged := make(Batch, 0, len(raw))
	var updates Batch
	for _, change := range raw {
		del, ins, idx, ok := matchInverse(change, merged, sameRow)
		if !ok {
			merged = append(merged, change)
			continue
		}
		merged = slices.Delete(merged, idx, idx+1)
		old := rowset.ChangedValues(del.Row, ins.Row)
		if del.Pos == ins.Pos {
			updates = append(updates, Change{Op: Update, Row: ins.Row, Pos: ins.Pos, Old: old})
		} else {
			merged = append(merged, Change{Op: Move, Row: ins.Row, From: del.Pos, To: ins.Pos, Old: old})
		}
	}
	return append(merged, updates...)
}

// matchInverse finds the first change in merged that pairs with change
// as the other half of a delete/insert on the same logical row. The
// returned del/ins are oriented so del is always the deletion side;
// sameRow is invoked as sameRow(deleted, inserted).
func matchInverse(change Change, merged Batch, sameRow SameRowFunc) (del, ins Change, idx int, ok bool) {
	var want Op
	switch change.Op {
	case Insert:
		want = Delete
	case Delete:
		want = Insert
	default:
		return Change{}, Change{}, 0, false
	}
	for i, candidate := range merged {
		if candidate.Op != want {
			continue
		}
		del, ins = candidate, change
		if change.Op == Delete {
			del, ins = change, candidate
		}
		if sameRow(del.Row, ins.Row) {
			return del, ins, i, true
		}
	}
	return Change{}, Change{}, 0, false
}

// ByKey builds a SameRowFunc treating rows as the same logical row when
// every named column is present in both and holds an equal value. With
// no columns it never matches, which is also the behavior of a nil
// SameRowFunc.
func ByKey(columns ...string) SameRowFunc {
	if len(columns) == 0 {
		return func(rowset.Row, rowset.Row) bool { return false }
	}
	keys := slices.Clone(columns)
	return func(old, new rowset.Row) bool {
		for _, column := range keys {
			ov, ok := old.Value(column)
			if !ok {
				return false
			}
			nv, ok := new.Value(column)
			if !ok {
				return false
			}
			if !rowset.ValueEqual(ov, nv) {
				return false
			}
		}
		return true
	}
}
