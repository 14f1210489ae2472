package track

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhbit/querywatch/internal/rowset"
)

func TestPrepareError_Error(t *testing.T) {
	err := &PrepareError{
		Query: rowset.NewQuery("SELECT * FROM missing"),
		Err:   errors.New("no such table: missing"),
	}

	assert.Equal(t, `prepare query "SELECT * FROM missing": no such table: missing`, err.Error())
}

func TestPrepareError_Unwrap(t *testing.T) {
	cause := errors.New("no such table: missing")
	err := &PrepareError{Query: rowset.NewQuery("SELECT 1"), Err: cause}

	assert.ErrorIs(t, err, cause)
}

func TestReadError_Error(t *testing.T) {
	err := &ReadError{Err: errors.New("disk I/O error")}
	assert.Equal(t, "isolated read: disk I/O error", err.Error())
}

func TestReadError_Unwrap(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := &ReadError{Err: cause}

	assert.ErrorIs(t, err, cause)
}

func TestMisuseError_Error(t *testing.T) {
	err := &MisuseError{Op: "rows", Reason: "no result set fetched yet; call Start first"}
	assert.Equal(t, "rows: no result set fetched yet; call Start first", err.Error())
}

func TestIsPrepareError(t *testing.T) {
	pe := &PrepareError{Query: rowset.NewQuery("SELECT 1"), Err: errors.New("boom")}

	assert.True(t, IsPrepareError(pe))
	assert.True(t, IsPrepareError(fmt.Errorf("start: %w", pe)), "wrapped errors should match")
	assert.False(t, IsPrepareError(errors.New("boom")))
	assert.False(t, IsPrepareError(nil))
	assert.False(t, IsPrepareError(&ReadError{Err: errors.New("boom")}))
}

func TestIsReadError(t *testing.T) {
	re := &ReadError{Err: errors.New("boom")}

	assert.True(t, IsReadError(re))
	assert.True(t, IsReadError(fmt.Errorf("cycle: %w", re)), "wrapped errors should match")
	assert.False(t, IsReadError(errors.New("boom")))
	assert.False(t, IsReadError(nil))
	assert.False(t, IsReadError(&PrepareError{Err: errors.New("boom")}))
}

func TestErrorTypes_AsTargets(t *testing.T) {
	var pe *PrepareError
	err := fmt.Errorf("outer: %w", &PrepareError{
		Query: rowset.NewQuery("SELECT id FROM t"),
		Err:   errors.New("syntax error"),
	})

	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "SELECT id FROM t", pe.Query.SQL)
	assert.EqualError(t, pe.Err, "syntax error")
}
