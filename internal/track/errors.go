package track

import (
	"errors"
	"fmt"

	"github.com/vhbit/querywatch/internal/rowset"
)

// PrepareError reports that a query could not be prepared for tracking:
// the statement is malformed, references missing schema, or its region
// could not be computed. Returned synchronously by Start and SetQuery;
// the subscription never starts (or, for SetQuery, the previous query
// stays active).
type PrepareError struct {
	Query rowset.Query
	Err   error
}

// Error implements the error interface.
func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare query %q: %v", e.Query.SQL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PrepareError) Unwrap() error {
	return e.Err
}

// ReadError reports a failed refetch cycle: the snapshot could not be
// established or row materialization failed. Forwarded asynchronously
// to the error handler on the consumer's executor. The subscription
// stays armed and its result set keeps its last successful value, so
// the next trigger retries independently.
type ReadError struct {
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("isolated read: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// MisuseError reports a violation of the Controller's usage contract,
// such as reading rows before the first fetch or registering a delegate
// after Start. It is used as a panic value: misuse is a programming
// error, not a runtime condition to handle.
type MisuseError struct {
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *MisuseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsPrepareError returns true if the error is a PrepareError.
// Uses errors.As to handle wrapped errors.
func IsPrepareError(err error) bool {
	var pe *PrepareError
	return errors.As(err, &pe)
}

// IsReadError returns true if the error is a ReadError.
// Uses errors.As to handle wrapped errors.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
