package rowset

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"null", nil, `null`},
		{"string", "hello", `"hello"`},
		{"int64", int64(42), `42`},
		{"negative int", int64(-7), `-7`},
		{"bool true", true, `true`},
		{"bool false", false, `false`},
		{"whole float as int", float64(3), `3`},
		{"fractional float", float64(2.5), `2.5`},
		{"bytes as base64", []byte("hi"), `"aGk="`},
		{"empty array", []any{}, `[]`},
		{"empty object", map[string]any{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_Time(t *testing.T) {
	// Times serialize in UTC regardless of the value's zone.
	loc := time.FixedZone("X", 2*3600)
	ts := time.Date(2025, 6, 1, 14, 30, 0, 0, loc)

	got, err := MarshalCanonical(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-06-01T12:30:00Z"`, string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical("<a> & </a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a> & </a>"`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// e + combining acute (NFD) must serialize identically to é (NFC).
	nfd := "é"
	nfc := "é"

	a, err := MarshalCanonical(nfd)
	require.NoError(t, err)
	b, err := MarshalCanonical(nfc)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	// U+2028 stays literal per RFC 8785 ...
	got, err := MarshalCanonical("a b")
	require.NoError(t, err)
	assert.Equal(t, "\"a b\"", string(got))

	// ... but the six-character text " " stays escaped text.
	got, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshalCanonical_ObjectKeyOrder(t *testing.T) {
	obj := map[string]any{
		"zebra": int64(1),
		"apple": int64(2),
		"Mango": int64(3),
	}

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	// UTF-16 code units: uppercase before lowercase.
	assert.Equal(t, `{"Mango":3,"apple":2,"zebra":1}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+E000 encodes above U+10000's surrogate pair in UTF-16 but below
	// it in UTF-8, so the two orderings disagree on exactly this case.
	obj := map[string]any{
		"":     int64(1),
		"\U00010000": int64(2),
	}

	keys := sortedKeysRFC8785(obj)
	assert.Equal(t, []string{"\U00010000", ""}, keys, "UTF-16 code unit ordering must be used")

	utf8Sorted := []string{"", "\U00010000"}
	sort.Strings(utf8Sorted)
	assert.NotEqual(t, keys, utf8Sorted, "UTF-8 and UTF-16 orders must differ for this input")
}

func TestMarshalCanonical_Row(t *testing.T) {
	row := NewRow([]string{"name", "id"}, []any{"alice", int64(1)})

	got, err := MarshalCanonical(row)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"name":"alice"}`, string(got))
}

func TestMarshalCanonical_Rows(t *testing.T) {
	rs := Rows{
		NewRow([]string{"id"}, []any{int64(1)}),
		NewRow([]string{"id"}, []any{nil}),
	}

	got, err := MarshalCanonical(rs)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1},{"id":null}]`, string(got))
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	obj := map[string]any{
		"b": []any{int64(1), "x", nil},
		"a": map[string]any{"nested": true},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalCanonical_RejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{ X int }{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}
