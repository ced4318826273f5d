package engine

import (
	"github.com/roach88/pyrewind/internal/ir"
)

// Request describes one navigation call.
type Request struct {
	Operation ir.Operation

	// Direction is required for last-attribute-change and continue. The
	// other operations have a fixed direction.
	Direction ir.Direction

	// Opcode filters step operations: a name or decimal opcode number.
	Opcode string

	// Function filters advance operations by function name.
	Function string

	// Object is the object whose attributes are searched.
	Object ir.ObjectRef

	// Attribute filters the attribute search by name.
	Attribute string

	// Symbols are the breakpoint locations for continue.
	Symbols []string

	// MaxSteps overrides the engine's step ceiling: 0 keeps the default,
	// negative means unbounded.
	MaxSteps int
}

// plan is a validated request.
type plan struct {
	req       Request
	dir       ir.Direction
	opcode    int
	hasOpcode bool
	limit     int
}

func (e *Engine) plan(req Request) (plan, error) {
	p := plan{req: req, limit: e.maxSteps}
	switch {
	case req.MaxSteps > 0:
		p.limit = req.MaxSteps
	case req.MaxSteps < 0:
		p.limit = 0
	}

	switch req.Operation {
	case ir.OpStepBytecode, ir.OpAdvanceToFunction:
		p.dir = ir.Forward
	case ir.OpReverseStepBytecode, ir.OpReverseAdvanceFunction:
		p.dir = ir.Backward
	case ir.OpLastAttributeChange, ir.OpContinue:
		if !req.Direction.Valid() {
			return plan{}, requestError(req.Operation, ErrCodeInvalidDirection,
				"direction %v must be forward or backward", req.Direction)
		}
		p.dir = req.Direction
	default:
		return plan{}, requestError(req.Operation, ErrCodeInvalidOperation,
			"unknown navigation operation %q", req.Operation)
	}

	switch req.Operation {
	case ir.OpStepBytecode, ir.OpReverseStepBytecode:
		if req.Opcode != "" {
			n, err := e.layout.OpcodeNumber(req.Opcode)
			if err != nil {
				return plan{}, requestError(req.Operation, ErrCodeUnknownOpcode, "%v", err)
			}
			p.opcode, p.hasOpcode = n, true
		}
	case ir.OpLastAttributeChange:
		if req.Object == 0 {
			return plan{}, requestError(req.Operation, ErrCodeNoObjectSelected,
				"no object selected for attribute search")
		}
	case ir.OpContinue:
		if len(req.Symbols) == 0 {
			return plan{}, requestError(req.Operation, ErrCodeUnknownSymbol, "continue needs at least one breakpoint")
		}
	}
	return p, nil
}
