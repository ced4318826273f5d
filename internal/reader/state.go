package reader

import (
	"errors"

	"github.com/roach88/pyrewind/internal/ir"
)

// State is everything the event detector compares across one elementary
// step, read at a single position.
type State struct {
	// Chain is the call chain, innermost first. Nil when frames were not
	// requested.
	Chain []ir.Frame
	// Instruction is the instruction at the innermost bytecode frame's
	// offset, nil before that frame starts.
	Instruction *ir.Instruction
	// Attributes is the tracked object's store, when one is tracked.
	Attributes *ir.AttributeSnapshot
}

// Innermost returns the head of the chain.
func (s State) Innermost() (ir.Frame, bool) {
	if len(s.Chain) == 0 {
		return ir.Frame{}, false
	}
	return s.Chain[0], true
}

// InnermostBytecode returns the innermost interpreter frame, skipping a
// native pseudo-frame.
func (s State) InnermostBytecode() (ir.Frame, bool) {
	for _, f := range s.Chain {
		if f.Kind == ir.FrameBytecode {
			return f, true
		}
	}
	return ir.Frame{}, false
}

// Depth is the length of the call chain.
func (s State) Depth() int {
	return len(s.Chain)
}

// Request selects what Capture reads.
type Request struct {
	Frames bool
	Object *ir.ObjectRef
}

// Capture reads the requested parts of the state at the current position.
// Any transient failure makes the whole state unavailable. No frame at all
// (before the first call or after the last return) is a consistent state
// with an empty chain.
func (r *Reader) Capture(req Request) (State, error) {
	var st State
	if req.Frames {
		chain, err := r.FrameChain()
		if err != nil && !errors.Is(err, ErrNoFrame) {
			return State{}, err
		}
		st.Chain = chain
		if f, ok := st.InnermostBytecode(); ok && f.Started() {
			in, err := r.CurrentInstruction(f)
			if err != nil {
				return State{}, err
			}
			st.Instruction = &in
		}
	}
	if req.Object != nil {
		snap, err := r.AttributesOf(*req.Object)
		if err != nil {
			return State{}, err
		}
		st.Attributes = &snap
	}
	return st, nil
}
