package ir

// StopReason is the outcome of one elementary step.
type StopReason int

const (
	// Stepped means the substrate moved by one elementary step.
	Stepped StopReason = iota + 1
	// ProcessExited means forward stepping ran off the live end of a process
	// that has exited. The position did not change.
	ProcessExited
	// TimelineBoundary means the step would leave recorded history (its start
	// going backward, or a finished recording's end going forward). The
	// position did not change.
	TimelineBoundary
)

func (r StopReason) String() string {
	switch r {
	case Stepped:
		return "stepped"
	case ProcessExited:
		return "process_exited"
	case TimelineBoundary:
		return "timeline_boundary"
	default:
		return "unknown"
	}
}

// Operation names one of the navigation operations.
type Operation string

const (
	OpStepBytecode           Operation = "step-bytecode"
	OpReverseStepBytecode    Operation = "reverse-step-bytecode"
	OpAdvanceToFunction      Operation = "advance-to-function"
	OpReverseAdvanceFunction Operation = "reverse-advance-to-function"
	OpLastAttributeChange    Operation = "last-attribute-change"
	// OpContinue runs to a machine-level breakpoint without classifying
	// interpreter state.
	OpContinue Operation = "continue"
)

// Valid reports whether o names a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpStepBytecode, OpReverseStepBytecode, OpAdvanceToFunction,
		OpReverseAdvanceFunction, OpLastAttributeChange, OpContinue:
		return true
	}
	return false
}

// Outcome is the terminal state of one navigation call.
type Outcome string

const (
	// OutcomeFound means the stop predicate was satisfied.
	OutcomeFound Outcome = "found"
	// OutcomeProcessExited means forward navigation ran off the live end.
	OutcomeProcessExited Outcome = "process_exited"
	// OutcomeTimelineBoundary means navigation ran off recorded history.
	OutcomeTimelineBoundary Outcome = "timeline_boundary"
	// OutcomeBudgetExhausted means the step ceiling was reached.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	// OutcomeCancelled means the user interrupted the navigation.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeIntrospectionMismatch means interpreter internals could not be
	// resolved for the whole call (wrong interpreter build, wrong schema).
	OutcomeIntrospectionMismatch Outcome = "introspection_mismatch"
)

// Reason explains why a Found navigation stopped.
type Reason string

const (
	ReasonOpcodeMatched    Reason = "opcode_matched"
	ReasonFunctionMatched  Reason = "function_matched"
	ReasonAttributeChanged Reason = "attribute_changed"
	ReasonBoundaryReached  Reason = "boundary_reached"
	ReasonBreakpointHit    Reason = "breakpoint_hit"
)

// NavigationResult is the outcome of one navigation call.
//
// Frame and Instruction describe the position the call left the target at;
// they are copies read at that position, not live references.
type NavigationResult struct {
	ID          string            `json:"id"`
	Operation   Operation         `json:"operation"`
	Direction   Direction         `json:"direction"`
	Outcome     Outcome           `json:"outcome"`
	Reason      Reason            `json:"reason,omitempty"`
	Position    Position          `json:"position"`
	Start       Position          `json:"start"`
	Steps       int               `json:"steps"`
	Frame       *Frame            `json:"frame,omitempty"`
	Instruction *Instruction      `json:"instruction,omitempty"`
	Function    string            `json:"function,omitempty"`
	Changes     []AttributeChange `json:"changes,omitempty"`
	Detail      string            `json:"detail,omitempty"`
}

// Found reports whether the stop predicate was satisfied.
func (r NavigationResult) Found() bool {
	return r.Outcome == OutcomeFound
}
