package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pyrewind/internal/ir"
)

// TraceSnapshot captures the trace of a scenario execution for golden
// comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map for canonical JSON.
// Positions and step counts are left out.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"op":      ev.Op,
			"outcome": ev.Outcome,
		}
		if ev.Arg != "" {
			m["arg"] = ev.Arg
		}
		if ev.Object != "" {
			m["object"] = ev.Object
		}
		if ev.Reason != "" {
			m["reason"] = ev.Reason
		}
		if ev.Function != "" {
			m["function"] = ev.Function
		}
		if ev.Offset != nil {
			m["offset"] = *ev.Offset
		}
		if ev.Opcode != "" {
			m["opcode"] = ev.Opcode
		}
		if len(ev.Changes) > 0 {
			changes := make([]any, len(ev.Changes))
			for j, c := range ev.Changes {
				changes[j] = c
			}
			m["changes"] = changes
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// GoldenBytes returns the canonical JSON golden form of a result's trace.
func GoldenBytes(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
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

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := GoldenBytes(scenarioName, result)
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
