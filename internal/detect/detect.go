// Package detect classifies the transition between two interpreter states
// into bytecode-level events.
//
// Detection is differential: every function here is a pure function of the
// state before and after a transition, so each event works the same walking
// forward or backward in time. Nothing is instrumented in the target.
package detect

import (
	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/reader"
)

// Transition is a pair of available states in navigation order: From was
// observed first, To after one or more elementary steps in Direction.
type Transition struct {
	From      reader.State
	To        reader.State
	Direction ir.Direction
}

// Earlier returns the state that is earlier in execution time.
func (t Transition) Earlier() reader.State {
	if t.Direction == ir.Backward {
		return t.To
	}
	return t.From
}

// Later returns the state that is later in execution time.
func (t Transition) Later() reader.State {
	if t.Direction == ir.Backward {
		return t.From
	}
	return t.To
}

// InstructionBoundaryCrossed reports whether the innermost interpreter frame
// moved to a different bytecode offset while staying the same activation
// (same frame and same code object). A frame dispatching its first
// instruction counts as a crossing.
//
// The returned instruction is the one current on the later side, which is
// where a bytecode step lands in either direction.
func InstructionBoundaryCrossed(t Transition) (ir.Instruction, bool) {
	from, ok := t.From.InnermostBytecode()
	if !ok {
		return ir.Instruction{}, false
	}
	to, ok := t.To.InnermostBytecode()
	if !ok {
		return ir.Instruction{}, false
	}
	if !from.SameActivation(to) || from.Offset == to.Offset {
		return ir.Instruction{}, false
	}
	later := t.Later()
	if later.Instruction == nil {
		return ir.Instruction{}, false
	}
	return *later.Instruction, true
}

// CallEntered reports whether the call chain grew and its head is a
// different activation. The callee is the new head, which may be a native
// function.
//
// Walking backward this fires on the position just before a return: the
// call being exited forward is the call being entered backward.
func CallEntered(t Transition) (ir.Frame, bool) {
	if t.To.Depth() <= t.From.Depth() {
		return ir.Frame{}, false
	}
	callee, ok := t.To.Innermost()
	if !ok {
		return ir.Frame{}, false
	}
	if prev, ok := t.From.Innermost(); ok && prev.SameActivation(callee) {
		return ir.Frame{}, false
	}
	return callee, true
}

// CallReturned reports whether the call chain shrank. The caller is the new
// head.
func CallReturned(t Transition) (ir.Frame, bool) {
	if t.To.Depth() >= t.From.Depth() {
		return ir.Frame{}, false
	}
	return t.To.Innermost()
}

// AttributeChanged compares the tracked object's attribute store across the
// transition. Kinds are expressed in execution time (added means present
// later but not earlier) regardless of the navigation direction.
//
// Changes are ordered by the later store's insertion order, then keys
// removed in the earlier store's order.
func AttributeChanged(t Transition) []ir.AttributeChange {
	earlier, later := t.Earlier().Attributes, t.Later().Attributes
	if earlier == nil || later == nil || earlier.Object != later.Object {
		return nil
	}
	return ir.DiffAttributes(*earlier, *later)
}

// FilterChanges keeps the changes to the named attribute. An empty name
// keeps everything. Names are compared after NFKC normalization.
func FilterChanges(changes []ir.AttributeChange, name string) []ir.AttributeChange {
	if name == "" {
		return changes
	}
	var out []ir.AttributeChange
	for _, c := range changes {
		if ir.NamesEqual(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}
