package harness

import "github.com/vhbit/querywatch/internal/rowset"

// BatchTrace records one delivered change batch.
type BatchTrace struct {
	// Step is the label of the write step whose commit produced this
	// batch.
	Step string `json:"step"`

	// Seq numbers delivered batches from 1 in delivery order.
	Seq int64 `json:"seq"`

	// Changes holds each change in delivered order, in its canonical
	// map form (see diff.Change.Map).
	Changes []map[string]any `json:"changes"`

	// Alongside is the side value fetched on the batch's snapshot, or
	// nil when the scenario configures none.
	Alongside any `json:"alongside,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Batches contains all delivered batches in delivery order.
	Batches []BatchTrace `json:"batches"`

	// FinalRows is the tracked query's result set after the last step.
	FinalRows rowset.Rows `json:"final_rows"`

	// Errors lists expect and assertion failures. Empty if Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Batches: []BatchTrace{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// ChangeCount returns the total number of changes across all batches.
func (r *Result) ChangeCount() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Changes)
	}
	return n
}
