package harness

import "fmt"

// AssertionError describes one failed trailing assertion.
type AssertionError struct {
	Type     string // "final_rows", "batch_count", or "change_count"
	Expected int
	Actual   int
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s: expected %d, got %d", e.Type, e.Expected, e.Actual)
}

// evaluateAssertions checks the scenario's trailing assertions against
// the recorded result, adding one error per failure.
func evaluateAssertions(result *Result, a *Assertions) {
	if a == nil {
		return
	}

	check := func(name string, want *int, got int) {
		if want == nil || *want == got {
			return
		}
		err := &AssertionError{Type: name, Expected: *want, Actual: got}
		result.AddError(err.Error())
	}

	check("final_rows", a.FinalRows, len(result.FinalRows))
	check("batch_count", a.BatchCount, len(result.Batches))
	check("change_count", a.ChangeCount, result.ChangeCount())
}
