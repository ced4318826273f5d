// Package harness runs navigation scenarios against recorded programs.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: foo_calls
//	description: "Step into foo and back out"
//	program: ../programs/foo.yaml
//	start: {landmark: dispatch, function: main, offset: 0}
//	steps:
//	  - op: step
//	    expect: {outcome: found, function: main, offset: 2}
//	  - op: advance
//	    arg: foo
//	    expect: {outcome: found, reason: function_matched, function: foo}
//	  - op: last-attr
//	    object: point
//	    forward: true
//	    expect: {outcome: found, attribute: x}
//	assertions:
//	  - type: trace_order
//	    functions: [main, foo]
//
// The program path is relative to the scenario file. start is either a
// recorder landmark, an absolute position, or `end: true`.
//
// # Operations
//
//   - step, rstep: bytecode step, arg is an optional opcode filter
//   - advance, radvance: call boundary, arg is an optional function name
//   - last-attr: attribute change of the selected object, arg is an
//     optional attribute name, backward unless forward is set
//   - continue: run to the symbol named by arg, forward unless backward is set
//
// A step's object field selects a variable (locals, then globals) at the
// position the step starts from.
//
// # Assertion Types
//
//   - trace_contains: some trace event has the given op, outcome and function
//   - trace_order: functions appear in the trace in this order
//   - trace_count: exactly count events have the given outcome
//   - final_state: the final position is in the given function and offset
//
// # Deterministic Testing
//
// Every scenario records its program afresh under a fixed recording ID,
// stores it in an in-memory SQLite database and navigates the copy read
// back from it, so runs are isolated and byte-identical.
// Golden traces leave out positions and step counts, which depend on how
// many elementary steps the recorder emits per instruction.
package harness
