// Package harness executes change-tracking scenarios described in YAML
// and records the delivered batches as deterministic traces.
//
// A scenario seeds a fresh database, tracks one query, applies write
// steps, and captures every batch the subscription delivers. Because
// batch delivery order equals commit order and sequence numbers come
// from a deterministic clock, the same scenario always produces the
// same trace, which makes traces suitable for golden file comparison.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario demonstrates"
//	setup:
//	  - CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
//	  - INSERT INTO players (id, name) VALUES (1, 'alice')
//	query: SELECT id, name FROM players ORDER BY id
//	identity: [id]
//	alongside: SELECT COUNT(*) FROM players
//	steps:
//	  - label: add bob
//	    writes:
//	      - INSERT INTO players (id, name) VALUES (2, 'bob')
//	    expect: changes
//	assertions:
//	  final_rows: 2
//	  batch_count: 1
//	  change_count: 1
//
// Each step's writes commit in a single transaction, so a step surfaces
// as at most one batch. "expect: changes" requires the step to deliver
// a batch; "expect: none" requires silence, which is how empty-diff
// suppression and region filtering are demonstrated.
//
// # Golden Traces
//
// RunWithGolden serializes the recorded trace with canonical JSON and
// compares it byte-for-byte against testdata/golden/{name}.golden.
// Regenerate golden files with:
//
//	go test ./internal/harness -update
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/insert_basic.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
