package rowset

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
// This is the ONLY serialization used for golden change traces - byte
// equality of two traces must mean semantic equality.
//
// Key differences from standard json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Floats use the shortest round-trip form
//
// Unlike a hashing IR, SQL values are first-class here: null is legal
// (SQL NULL), []byte is emitted as base64, time.Time as RFC 3339 UTC.
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return marshalCanonicalString(val)
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case float64:
		return marshalCanonicalFloat(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case []byte:
		return marshalCanonicalString(base64.StdEncoding.EncodeToString(val))
	case time.Time:
		return marshalCanonicalString(val.UTC().Format(time.RFC3339Nano))
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	case Row:
		return marshalCanonicalObject(val.Map())
	case Rows:
		arr := make([]any, len(val))
		for i, row := range val {
			arr[i] = row
		}
		return marshalCanonicalArray(arr)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalFloat serializes a float in shortest round-trip form.
// NaN and infinities have no JSON representation and are rejected.
func marshalCanonicalFloat(f float64) ([]byte, error) {
	if f != f || f > 1.797693134862315708145274237317043567981e+308 || f < -1.797693134862315708145274237317043567981e+308 {
		return nil, fmt.Errorf("non-finite float has no canonical JSON form: %v", f)
	}
	// Whole-valued floats print as integers so a REAL column holding 3
	// compares equal across platforms.
	if f == float64(int64(f)) && f >= -1e15 && f <= 1e15 {
		return strconv.AppendInt(nil, int64(f), 10), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalCanonicalString produces a canonical JSON string with NFC
// normalization. RFC 8785 requirements:
//   - No HTML escaping (<, >, & are NOT escaped)
//   - U+2028 and U+2029 are NOT escaped
//   - Only control characters, backslash, and quote are escaped
func marshalCanonicalString(s string) ([]byte, error) {
	// NFC normalize at the serialization boundary
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline, remove it
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	// Go's encoder escapes U+2028/U+2029 for JavaScript compatibility,
	// which violates RFC 8785. Undo that here.
	return unescapeU2028U2029(result), nil
}

// unescapeU2028U2029 converts   and   escape sequences back to
// literal characters. Escape sequences in encoder output never overlap,
// so the scan walks them atomically: a literal backslash in the source
// string appears as \\ and is copied as a unit, which keeps the text
// " " (backslash u 2 0 2 8) encoded as \\u2028 intact.
func unescapeU2028U2029(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	result := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if data[i] != '\\' || i+1 >= len(data) {
			result = append(result, data[i])
			i++
			continue
		}
		if i+6 <= len(data) && data[i+1] == 'u' && bytes.Equal(data[i+2:i+5], []byte("202")) && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				result = append(result, " "...)
			} else {
				result = append(result, " "...)
			}
			i += 6
			continue
		}
		// Some other escape sequence - copy both bytes as a unit.
		result = append(result, data[i], data[i+1])
		i += 2
	}
	return result
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	keys := sortedKeysRFC8785(obj)

	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortedKeysRFC8785 returns keys in RFC 8785 canonical order (UTF-16
// code units). Go's sort.Strings compares UTF-8 bytes, which orders
// supplementary-plane characters differently.
func sortedKeysRFC8785(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 compares strings by UTF-16 code units, surrogate
// pairs included, as RFC 8785 requires.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
