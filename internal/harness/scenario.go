package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a navigation scenario: a program, where to start in
// its recording, and a sequence of navigation calls with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the recorder program. Relative paths are resolved against
	// the scenario file's directory by LoadScenario.
	Program string `yaml:"program"`

	// Start is where navigation begins.
	Start Start `yaml:"start"`

	// Steps are the navigation calls, run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the whole trace and the final position.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Start selects the starting position.
type Start struct {
	// Landmark is a recorder landmark kind (dispatch, call, setattr, ...).
	Landmark string `yaml:"landmark,omitempty"`
	Function string `yaml:"function,omitempty"`
	Offset   *int   `yaml:"offset,omitempty"`
	Attr     string `yaml:"attr,omitempty"`

	// Position is an absolute elementary position.
	Position *int64 `yaml:"position,omitempty"`

	// End starts at the last recorded position.
	End bool `yaml:"end,omitempty"`
}

// Step is one navigation call.
type Step struct {
	// Op is step, rstep, advance, radvance, last-attr or continue.
	Op string `yaml:"op"`

	// Arg is the opcode, function, attribute or symbol, depending on Op.
	Arg string `yaml:"arg,omitempty"`

	// Object selects a variable before the call.
	Object string `yaml:"object,omitempty"`

	Forward  bool `yaml:"forward,omitempty"`
	Backward bool `yaml:"backward,omitempty"`

	// MaxSteps overrides the step ceiling for this call.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Expect validates the call's result. Empty fields are not checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on a navigation result.
type Expect struct {
	Outcome   string `yaml:"outcome,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	Function  string `yaml:"function,omitempty"`
	Offset    *int   `yaml:"offset,omitempty"`
	Opcode    string `yaml:"opcode,omitempty"`
	Attribute string `yaml:"attribute,omitempty"`
	Position  *int64 `yaml:"position,omitempty"`
}

// Assertion validates the trace or the final position.
type Assertion struct {
	// Type is trace_contains, trace_order, trace_count or final_state.
	Type string `yaml:"type"`

	Op        string   `yaml:"op,omitempty"`
	Outcome   string   `yaml:"outcome,omitempty"`
	Function  string   `yaml:"function,omitempty"`
	Offset    *int     `yaml:"offset,omitempty"`
	Count     int      `yaml:"count,omitempty"`
	Functions []string `yaml:"functions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Operation names accepted in scenario steps.
const (
	OpStep     = "step"
	OpRStep    = "rstep"
	OpAdvance  = "advance"
	OpRAdvance = "radvance"
	OpLastAttr = "last-attr"
	OpContinue = "continue"
)

// LoadScenario reads and parses a scenario YAML file and resolves its
// program path. Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", s.Program)
	}
	if err := validateStart(s.Start); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpStep, OpRStep, OpAdvance, OpRAdvance, OpLastAttr:
		case OpContinue:
			if step.Arg == "" {
				return fmt.Errorf("steps[%d]: continue needs a symbol in arg", i)
			}
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Forward && step.Backward {
			return fmt.Errorf("steps[%d]: forward and backward are exclusive", i)
		}
		if step.MaxSteps < 0 {
			return fmt.Errorf("steps[%d]: max_steps must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStart(st Start) error {
	set := 0
	if st.Landmark != "" {
		set++
	}
	if st.Position != nil {
		set++
	}
	if st.End {
		set++
	}
	if set > 1 {
		return fmt.Errorf("start: landmark, position and end are exclusive")
	}
	if st.Landmark == "" && (st.Function != "" || st.Offset != nil || st.Attr != "") {
		return fmt.Errorf("start: function, offset and attr need a landmark")
	}
	if st.Position != nil && *st.Position < 0 {
		return fmt.Errorf("start: position must be non-negative")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" && a.Outcome == "" && a.Function == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs op, outcome or function", index)
		}
	case AssertTraceOrder:
		if len(a.Functions) == 0 {
			return fmt.Errorf("assertions[%d]: functions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Function == "" && a.Offset == nil {
			return fmt.Errorf("assertions[%d]: function or offset is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
