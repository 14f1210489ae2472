package diff

import (
	"fmt"
	"slices"

	"github.com/vhbit/querywatch/internal/rowset"
)

// Op distinguishes change kinds in a batch.
type Op int

const (
	// Insert places a new row at Pos in the new result set.
	Insert Op = iota + 1
	// Delete removes the row at Pos in the old result set.
	Delete
	// Move relocates a logical row from From (old) to To (new),
	// possibly with changed column values.
	Move
	// Update changes column values of a row whose position is settled.
	Update
)

// String returns the lowercase op name used in logs and traces.
func (op Op) String() string {
	switch op {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Move:
		return "move"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Change is one element of a change batch.
//
// Row is the inserted/current row for Insert, Move, and Update, and the
// removed row for Delete. Pos is the position in the new result set for
// Insert and Update, and in the old one for Delete. From and To are set
// for Move only. Old carries the previous values of changed columns for
// Move and Update (see rowset.ChangedValues).
type Change struct {
	Op   Op
	Row  rowset.Row
	Pos  int
	From int
	To   int
	Old  map[string]any
}

// String renders a change for logs, e.g. `move 2->1` or `insert@0`.
func (c Change) String() string {
	switch c.Op {
	case Move:
		return fmt.Sprintf("move %d->%d", c.From, c.To)
	case Insert, Delete, Update:
		return fmt.Sprintf("%s@%d", c.Op, c.Pos)
	default:
		return c.Op.String()
	}
}

// Map returns the change as a plain map for canonical serialization.
func (c Change) Map() map[string]any {
	m := map[string]any{
		"op":  c.Op.String(),
		"row": c.Row.Map(),
	}
	switch c.Op {
	case Insert, Delete, Update:
		m["pos"] = c.Pos
	case Move:
		m["from"] = c.From
		m["to"] = c.To
	}
	if c.Op == Move || c.Op == Update {
		old := make(map[string]any, len(c.Old))
		for k, v := range c.Old {
			old[k] = v
		}
		m["old"] = old
	}
	return m
}

// Batch is an ordered sequence of changes produced by one diff cycle.
// After standardization, every Insert/Delete/Move precedes every Update.
type Batch []Change

// SameRowFunc decides whether a row from the old result set and a row
// from the new one denote the same logical row. It is used only for
// move/update merging, never for no-op detection, so it need only be
// reflexive and symmetric.
type SameRowFunc func(old, new rowset.Row) bool

// Changes computes the standardized change batch that transforms from
// into to. A nil sameRow disables move/update merging: every changed
// row surfaces as a delete/insert pair.
//
// Equal inputs yield an empty batch.
func Changes(from, to rowset.Rows, sameRow SameRowFunc) Batch {
	return standardize(editScript(from, to), sameRow)
}

// choice records which predecessor a table cell extended, so the script
// can be rebuilt without storing per-cell scripts.
type choice uint8

const (
	choiceNone  choice = iota
	choiceMatch        // rows equal, inherit the diagonal unchanged
	choiceDelete
	choiceInsert
	choiceSubstitute // diagonal plus a delete/insert pair
)

// editScript computes the minimal raw edit script (insertions and
// deletions only) turning from into to, via dynamic programming over
// full row equality.
//
// The fill compares PREDECESSOR script lengths and resolves ties in the
// fixed order deletion, insertion, substitution. Which of several
// minimal scripts comes out depends on this order: it is what makes a
// two-row swap surface as a single relocated row instead of a
// delete/insert pair, and it must not change.
func editScript(from, to rowset.Rows) Batch {
	m, n := len(from), len(to)
	if m == 0 {
		script := make(Batch, 0, n)
		for j, row := range to {
			script = append(script, Change{Op: Insert, Row: row, Pos: j})
		}
		return script
	}
	if n == 0 {
		script := make(Batch, 0, m)
		for i, row := range from {
			script = append(script, Change{Op: Delete, Row: row, Pos: i})
		}
		return script
	}

	// lengths[i][j] is the script length turning the first i rows of
	// from into the first j rows of to; choices[i][j] remembers which
	// predecessor produced it.
	lengths := make([][]int, m+1)
	choices := make([][]choice, m+1)
	for i := range lengths {
		lengths[i] = make([]int, n+1)
		choices[i] = make([]choice, n+1)
	}
	for i := 1; i <= m; i++ {
		lengths[i][0] = i
		choices[i][0] = choiceDelete
	}
	for j := 1; j <= n; j++ {
		lengths[0][j] = j
		choices[0][j] = choiceInsert
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if from[i-1].Equal(to[j-1]) {
				lengths[i][j] = lengths[i-1][j-1]
				choices[i][j] = choiceMatch
				continue
			}
			// Strict less-than keeps the tie priority:
			// deletion beats insertion beats substitution.
			best, pick := lengths[i-1][j], choiceDelete
			if lengths[i][j-1] < best {
				best, pick = lengths[i][j-1], choiceInsert
			}
			if lengths[i-1][j-1] < best {
				best, pick = lengths[i-1][j-1], choiceSubstitute
			}
			if pick == choiceSubstitute {
				lengths[i][j] = best + 2
			} else {
				lengths[i][j] = best + 1
			}
			choices[i][j] = pick
		}
	}

	// Walk the chosen predecessors backwards; reversing the collected
	// changes yields the same script as materializing one per cell.
	script := make(Batch, 0, lengths[m][n])
	i, j := m, n
	for i > 0 || j > 0 {
		switch choices[i][j] {
		case choiceMatch:
			i, j = i-1, j-1
		case choiceDelete:
			script = append(script, Change{Op: Delete, Row: from[i-1], Pos: i - 1})
			i--
		case choiceInsert:
			script = append(script, Change{Op: Insert, Row: to[j-1], Pos: j - 1})
			j--
		case choiceSubstitute:
			// Pushed in reverse so the forward script reads
			// deletion first, then insertion.
			script = append(script, Change{Op: Insert, Row: to[j-1], Pos: j - 1})
			script = append(script, Change{Op: Delete, Row: from[i-1], Pos: i - 1})
			i, j = i-1, j-1
		}
	}
	slices.Reverse(script)
	return script
}
