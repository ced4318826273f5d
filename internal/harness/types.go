package harness

// TraceEvent is the outcome of one scenario step.
type TraceEvent struct {
	Op       string   `json:"op"`
	Arg      string   `json:"arg,omitempty"`
	Object   string   `json:"object,omitempty"`
	Outcome  string   `json:"outcome"`
	Reason   string   `json:"reason,omitempty"`
	Function string   `json:"function,omitempty"`
	Offset   *int     `json:"offset,omitempty"`
	Opcode   string   `json:"opcode,omitempty"`
	Changes  []string `json:"changes,omitempty"`
	Seq      int64    `json:"seq"`
	Steps    int      `json:"steps"`
}

// FinalState is where the last step left the target.
type FinalState struct {
	Seq      int64  `json:"seq"`
	Function string `json:"function,omitempty"`
	Offset   *int   `json:"offset,omitempty"`
	Depth    int    `json:"depth"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the state after the last step, nil if it was unreadable.
	Final *FinalState `json:"final,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
