package rowset

import (
	"bytes"
	"reflect"
	"time"
)

// Row is an immutable snapshot of a single fetched result row.
//
// Columns and Values are parallel slices in SELECT order. Values hold the
// SQLite scalar set: nil, int64, float64, bool, string, []byte, time.Time.
//
// Rows must never be mutated after construction - diff results reference
// them directly, and the tracker hands the same Row to every subscriber.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow builds a Row from parallel column and value slices.
// Both slices are copied so later mutation of the inputs cannot leak
// into a snapshot.
func NewRow(columns []string, values []any) Row {
	r := Row{
		Columns: make([]string, len(columns)),
		Values:  make([]any, len(values)),
	}
	copy(r.Columns, columns)
	copy(r.Values, values)
	return r
}

// Value returns the value of the named column.
// The second return is false if the column is not present.
func (r Row) Value(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Equal reports whether two rows have identical columns and values.
// This is full-row equality, not identity - two rows for the same
// database record differ here as soon as any selected value changed.
func (r Row) Equal(other Row) bool {
	if len(r.Columns) != len(other.Columns) || len(r.Values) != len(other.Values) {
		return false
	}
	for i := range r.Columns {
		if r.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range r.Values {
		if !ValueEqual(r.Values[i], other.Values[i]) {
			return false
		}
	}
	return true
}

// Map returns the row as a column-to-value map.
// Used for canonical serialization and subscriber payloads.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Rows is an ordered result set. Order is whatever the query produced;
// the tracker never re-sorts.
type Rows []Row

// Equal reports whether two result sets are identical element-wise.
func (rs Rows) Equal(other Rows) bool {
	if len(rs) != len(other) {
		return false
	}
	for i := range rs {
		if !rs[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// ChangedValues returns the previous values of every column whose value
// differs between old and new. Keys cover the union of both column sets:
// a column only present in new maps to nil (it had no previous value).
//
// This is the payload attached to update changes so subscribers can see
// what a row looked like before the write.
func ChangedValues(old, new Row) map[string]any {
	changed := make(map[string]any)

	for i, c := range old.Columns {
		nv, ok := new.Value(c)
		if !ok || !ValueEqual(old.Values[i], nv) {
			changed[c] = old.Values[i]
		}
	}

	// Columns that appeared in new without an old counterpart.
	for _, c := range new.Columns {
		if _, ok := old.Value(c); !ok {
			changed[c] = nil
		}
	}

	return changed
}

// ValueEqual compares two SQLite scalar values by content.
//
// []byte compares byte-wise and time.Time via Equal; interface equality
// would compare those by pointer and location respectively. Numeric types
// are NOT coerced: int64(1) != float64(1), matching how SQLite surfaces
// column affinity through the driver.
func ValueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case int64, float64, bool, string:
		return a == b
	}

	return reflect.DeepEqual(a, b)
}
