package harness

import (
	"encoding/json"
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/sebdah/goldie/v2"

	"github.com/roach88/correlate/internal/engine"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Trace        []engine.Transition `json:"trace"`
}

// CanonicalTrace serializes a scenario trace as RFC 8785 canonical JSON,
// so identical runs produce byte-identical output.
func CanonicalTrace(name string, trace []engine.Transition) ([]byte, error) {
	if trace == nil {
		trace = []engine.Transition{}
	}
	data, err := json.Marshal(TraceSnapshot{ScenarioName: name, Trace: trace})
	if err != nil {
		return nil, err
	}
	return jcs.Transform(data)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := CanonicalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
