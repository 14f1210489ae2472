package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario describes one change-tracking run: a schema and seed data,
// a tracked query, and a sequence of write steps whose delivered
// batches form the scenario's trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// trace file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Setup contains SQL statements run before tracking starts, one
	// write transaction each. Typically CREATE TABLE plus seed rows.
	Setup []string `yaml:"setup,omitempty"`

	// Query is the tracked SELECT statement.
	Query string `yaml:"query"`

	// Identity lists the key columns used to merge delete/insert pairs
	// into moves and updates. Empty disables merging.
	Identity []string `yaml:"identity,omitempty"`

	// Alongside is an optional single-value query fetched on the same
	// snapshot as each refetch and recorded with each batch.
	Alongside string `yaml:"alongside,omitempty"`

	// Steps are the write steps executed in order while tracking.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded trace and final result set.
	Assertions *Assertions `yaml:"assertions,omitempty"`
}

// Step is one write transaction applied while the query is tracked.
type Step struct {
	// Label names the step; batches delivered for it carry the label
	// in the trace.
	Label string `yaml:"label"`

	// Writes are SQL statements committed together in one transaction,
	// so they surface as at most one batch.
	Writes []string `yaml:"writes"`

	// Expect declares whether the step must deliver a batch ("changes"),
	// must deliver nothing ("none"), or is unchecked (empty).
	Expect string `yaml:"expect,omitempty"`
}

// Expect values for Step.
const (
	ExpectChanges = "changes"
	ExpectNone    = "none"
)

// Assertions are optional checks evaluated after the last step.
// Nil pointers mean "not asserted".
type Assertions struct {
	// FinalRows is the expected number of rows in the final result set.
	FinalRows *int `yaml:"final_rows,omitempty"`

	// BatchCount is the expected total number of delivered batches.
	BatchCount *int `yaml:"batch_count,omitempty"`

	// ChangeCount is the expected total number of changes across all
	// batches.
	ChangeCount *int `yaml:"change_count,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "step:" vs "steps:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name so
// suites run in a stable order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario directory: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Query == "" {
		return fmt.Errorf("query is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Label == "" {
			return fmt.Errorf("steps[%d]: label is required", i)
		}
		if len(step.Writes) == 0 {
			return fmt.Errorf("steps[%d]: writes list is required and must be non-empty", i)
		}
		switch step.Expect {
		case "", ExpectChanges, ExpectNone:
		default:
			return fmt.Errorf("steps[%d]: unknown expect value %q (want %q or %q)",
				i, step.Expect, ExpectChanges, ExpectNone)
		}
	}

	if s.Assertions != nil {
		if v := s.Assertions.FinalRows; v != nil && *v < 0 {
			return fmt.Errorf("assertions.final_rows must be non-negative")
		}
		if v := s.Assertions.BatchCount; v != nil && *v < 0 {
			return fmt.Errorf("assertions.batch_count must be non-negative")
		}
		if v := s.Assertions.ChangeCount; v != nil && *v < 0 {
			return fmt.Errorf("assertions.change_count must be non-negative")
		}
	}

	return nil
}
