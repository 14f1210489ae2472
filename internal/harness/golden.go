package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/vhbit/querywatch/internal/rowset"
)

// TraceSnapshot renders a result as the plain map golden traces are
// serialized from. Only canonical-JSON-representable values appear in
// it: batch sequence numbers, change maps, and SQL values scanned from
// the database.
func TraceSnapshot(scenarioName string, result *Result) map[string]any {
	batches := make([]any, len(result.Batches))
	for i, b := range result.Batches {
		changes := make([]any, len(b.Changes))
		for j, change := range b.Changes {
			changes[j] = change
		}
		m := map[string]any{
			"step":    b.Step,
			"seq":     b.Seq,
			"changes": changes,
		}
		if b.Alongside != nil {
			m["alongside"] = b.Alongside
		}
		batches[i] = m
	}
	return map[string]any{
		"scenario":   scenarioName,
		"batches":    batches,
		"final_rows": result.FinalRows,
	}
}

// RunWithGolden executes a scenario and compares its canonical trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Traces are serialized with rowset.MarshalCanonical, so byte equality
// against the golden file means semantic equality of the delivered
// changes. Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}

	trace, err := rowset.MarshalCanonical(TraceSnapshot(scenario.Name, result))
	if err != nil {
		t.Fatalf("scenario %s: failed to marshal trace: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, trace)

	return result
}
