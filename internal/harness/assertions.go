package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/pyrewind/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s -> %s %s\n", i+1, ev.Op, ev.Arg, ev.Outcome, ev.Function)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, empty if all pass.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (a Assertion) matches(ev TraceEvent) bool {
	return (a.Op == "" || a.Op == ev.Op) &&
		(a.Outcome == "" || a.Outcome == ev.Outcome) &&
		(a.Function == "" || ir.NamesEqual(a.Function, ev.Function))
}

// assertTraceContains checks that some event matches the assertion's op,
// outcome and function.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if a.matches(ev) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op=%q outcome=%q function=%q", a.Op, a.Outcome, a.Function),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that found events visit the functions in order.
// Other events may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Functions) && ev.Outcome == string(ir.OutcomeFound) &&
			ir.NamesEqual(ev.Function, a.Functions[next]) {
			next++
		}
	}
	if next == len(a.Functions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Functions, " -> "),
		Actual:   fmt.Sprintf("stopped matching at %q", a.Functions[next]),
		Trace:    trace,
	}
}

// assertTraceCount checks how many events have the given outcome.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.matches(ev) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d events with outcome %s", a.Count, a.Outcome),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    trace,
	}
}

// assertFinalState checks the function and offset the last step left the
// target at.
func assertFinalState(result *Result, a Assertion) error {
	fail := func(actual string) error {
		expected := a.Function
		if a.Offset != nil {
			expected = fmt.Sprintf("%s offset %d", a.Function, *a.Offset)
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: expected,
			Actual:   actual,
			Trace:    result.Trace,
		}
	}
	fs := result.Final
	if fs == nil {
		return fail("no consistent state at the final position")
	}
	if a.Function != "" && !ir.NamesEqual(a.Function, fs.Function) {
		return fail(fmt.Sprintf("function %q", fs.Function))
	}
	if a.Offset != nil && (fs.Offset == nil || *fs.Offset != *a.Offset) {
		if fs.Offset == nil {
			return fail("no current instruction")
		}
		return fail(fmt.Sprintf("offset %d", *fs.Offset))
	}
	return nil
}
