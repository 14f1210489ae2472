package rowset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Value(t *testing.T) {
	row := NewRow([]string{"id", "name"}, []any{int64(1), "alice"})

	v, ok := row.Value("name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = row.Value("missing")
	assert.False(t, ok)
}

func TestNewRow_CopiesInputs(t *testing.T) {
	cols := []string{"id"}
	vals := []any{int64(1)}
	row := NewRow(cols, vals)

	cols[0] = "mutated"
	vals[0] = int64(99)

	assert.Equal(t, "id", row.Columns[0])
	assert.Equal(t, int64(1), row.Values[0])
}

func TestRow_Equal(t *testing.T) {
	base := NewRow([]string{"id", "name"}, []any{int64(1), "alice"})

	tests := []struct {
		name  string
		other Row
		want  bool
	}{
		{
			name:  "identical",
			other: NewRow([]string{"id", "name"}, []any{int64(1), "alice"}),
			want:  true,
		},
		{
			name:  "different value",
			other: NewRow([]string{"id", "name"}, []any{int64(1), "bob"}),
			want:  false,
		},
		{
			name:  "different column name",
			other: NewRow([]string{"id", "title"}, []any{int64(1), "alice"}),
			want:  false,
		},
		{
			name:  "fewer columns",
			other: NewRow([]string{"id"}, []any{int64(1)}),
			want:  false,
		},
		{
			name:  "different value type",
			other: NewRow([]string{"id", "name"}, []any{float64(1), "alice"}),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Equal(tt.other))
		})
	}
}

func TestValueEqual(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs value", nil, int64(0), false},
		{"int64 equal", int64(7), int64(7), true},
		{"int64 vs float64 not coerced", int64(1), float64(1), false},
		{"bytes by content", []byte{1, 2, 3}, []byte{1, 2, 3}, true},
		{"bytes differ", []byte{1, 2, 3}, []byte{1, 2, 4}, false},
		{"bytes vs string", []byte("a"), "a", false},
		{"time equal across zones", now, now.In(time.FixedZone("X", 3600)), true},
		{"time differs", now, now.Add(time.Second), false},
		{"strings", "a", "a", true},
		{"bools", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValueEqual(tt.a, tt.b))
		})
	}
}

func TestRows_Equal(t *testing.T) {
	a := Rows{
		NewRow([]string{"id"}, []any{int64(1)}),
		NewRow([]string{"id"}, []any{int64(2)}),
	}
	b := Rows{
		NewRow([]string{"id"}, []any{int64(1)}),
		NewRow([]string{"id"}, []any{int64(2)}),
	}

	assert.True(t, a.Equal(b))
	assert.True(t, Rows{}.Equal(nil), "empty and nil result sets are equal")
	assert.False(t, a.Equal(b[:1]))
}

func TestChangedValues(t *testing.T) {
	old := NewRow([]string{"id", "name", "score"}, []any{int64(1), "alice", int64(10)})
	new := NewRow([]string{"id", "name", "score"}, []any{int64(1), "bob", int64(10)})

	changed := ChangedValues(old, new)

	// Only the changed column appears, carrying its OLD value.
	require.Len(t, changed, 1)
	assert.Equal(t, "alice", changed["name"])
}

func TestChangedValues_AllSame(t *testing.T) {
	row := NewRow([]string{"id", "name"}, []any{int64(1), "alice"})
	assert.Empty(t, ChangedValues(row, row))
}

func TestChangedValues_NewColumn(t *testing.T) {
	old := NewRow([]string{"id"}, []any{int64(1)})
	new := NewRow([]string{"id", "name"}, []any{int64(1), "alice"})

	changed := ChangedValues(old, new)

	require.Len(t, changed, 1)
	v, present := changed["name"]
	require.True(t, present, "column added in new must appear in the diff")
	assert.Nil(t, v, "a column with no previous value maps to nil")
}

func TestChangedValues_DroppedColumn(t *testing.T) {
	old := NewRow([]string{"id", "name"}, []any{int64(1), "alice"})
	new := NewRow([]string{"id"}, []any{int64(1)})

	changed := ChangedValues(old, new)

	require.Len(t, changed, 1)
	assert.Equal(t, "alice", changed["name"])
}

func TestRow_Map(t *testing.T) {
	row := NewRow([]string{"id", "name"}, []any{int64(1), "alice"})
	assert.Equal(t, map[string]any{"id": int64(1), "name": "alice"}, row.Map())
}
