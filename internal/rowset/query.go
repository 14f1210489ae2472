package rowset

import (
	"fmt"
	"sort"
	"strings"
)

// Query is an opaque SQL statement with bound arguments.
// The tracker never inspects the SQL - the database prepares it and
// reports the region it reads.
type Query struct {
	SQL  string
	Args []any
}

// NewQuery builds a Query. Args are captured as-is; they must be values
// the SQL driver accepts.
func NewQuery(sql string, args ...any) Query {
	return Query{SQL: sql, Args: args}
}

func (q Query) String() string {
	if len(q.Args) == 0 {
		return q.SQL
	}
	return fmt.Sprintf("%s %v", q.SQL, q.Args)
}

// ColumnSet is the set of columns a query reads from one table.
// An EMPTY set means the whole table: any column of any row counts as
// part of the region.
type ColumnSet map[string]struct{}

// Region describes the database surface a query may read: for each
// table, the set of columns. Computed once at prepare time and used to
// filter commits - a write that touches no region table cannot change
// the query's result.
//
// Regions may be conservative. Reporting more than the query actually
// reads causes spurious refetches (the diff then comes back empty),
// never missed ones.
type Region map[string]ColumnSet

// NewRegion returns an empty region.
func NewRegion() Region {
	return make(Region)
}

// Add records that column of table is read.
func (r Region) Add(table, column string) {
	set, ok := r[table]
	if !ok {
		set = make(ColumnSet)
		r[table] = set
	}
	set[column] = struct{}{}
}

// AddTable records that the whole table is read.
// Any previously recorded columns for the table are widened away.
func (r Region) AddTable(table string) {
	r[table] = make(ColumnSet)
}

// Tables returns the region's table names, sorted.
func (r Region) Tables() []string {
	tables := make([]string, 0, len(r))
	for t := range r {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Columns returns the sorted columns recorded for a table.
// Empty result with ok=true means the whole table.
func (r Region) Columns(table string) (cols []string, ok bool) {
	set, ok := r[table]
	if !ok {
		return nil, false
	}
	cols = make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, true
}

// Overlaps reports whether any of the touched tables is part of the
// region. Commit filtering is table-granular: the update hook reports
// which tables a transaction wrote, not which columns, so a region
// table match is treated as a hit.
func (r Region) Overlaps(tables []string) bool {
	for _, t := range tables {
		if _, ok := r[t]; ok {
			return true
		}
	}
	return false
}

// Union merges another region into a copy of this one.
// A whole-table entry on either side stays whole-table.
func (r Region) Union(other Region) Region {
	out := NewRegion()
	for t, set := range r {
		out[t] = copyColumnSet(set)
	}
	for t, set := range other {
		existing, ok := out[t]
		if !ok {
			out[t] = copyColumnSet(set)
			continue
		}
		if len(existing) == 0 || len(set) == 0 {
			out[t] = make(ColumnSet)
			continue
		}
		for c := range set {
			existing[c] = struct{}{}
		}
	}
	return out
}

// String renders the region as "table(col1,col2) table2(*)".
// Used in logs and by the deps command.
func (r Region) String() string {
	var b strings.Builder
	for i, t := range r.Tables() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
		cols, _ := r.Columns(t)
		if len(cols) == 0 {
			b.WriteString("(*)")
			continue
		}
		b.WriteByte('(')
		b.WriteString(strings.Join(cols, ","))
		b.WriteByte(')')
	}
	return b.String()
}

func copyColumnSet(set ColumnSet) ColumnSet {
	out := make(ColumnSet, len(set))
	for c := range set {
		out[c] = struct{}{}
	}
	return out
}
