package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/pyrewind/internal/detect"
	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/reader"
	"github.com/roach88/pyrewind/internal/substrate"
)

// hit is a satisfied stop predicate.
type hit struct {
	reason ir.Reason
	// settle means the landing position is the From side of the transition,
	// which the search has already stepped past.
	settle      bool
	frame       *ir.Frame
	instruction *ir.Instruction
	function    string
	changes     []ir.AttributeChange
}

type predicate func(t detect.Transition) (hit, bool)

func (p plan) predicate() predicate {
	switch p.req.Operation {
	case ir.OpStepBytecode, ir.OpReverseStepBytecode:
		reason := ir.ReasonBoundaryReached
		if p.hasOpcode {
			reason = ir.ReasonOpcodeMatched
		}
		return func(t detect.Transition) (hit, bool) {
			in, ok := detect.InstructionBoundaryCrossed(t)
			if !ok || (p.hasOpcode && in.Opcode != p.opcode) {
				return hit{}, false
			}
			f, _ := t.Later().InnermostBytecode()
			return hit{
				reason:      reason,
				settle:      t.Direction == ir.Backward,
				frame:       &f,
				instruction: &in,
				function:    f.Name(),
			}, true
		}

	case ir.OpAdvanceToFunction, ir.OpReverseAdvanceFunction:
		return func(t detect.Transition) (hit, bool) {
			callee, ok := detect.CallEntered(t)
			if !ok {
				return hit{}, false
			}
			if p.req.Function != "" && !ir.NamesEqual(callee.Code.Name, p.req.Function) {
				return hit{}, false
			}
			h := hit{reason: ir.ReasonFunctionMatched, frame: &callee, function: callee.Name()}
			if callee.Kind == ir.FrameBytecode && t.To.Instruction != nil {
				in := *t.To.Instruction
				h.instruction = &in
			}
			return h, true
		}

	default:
		return func(t detect.Transition) (hit, bool) {
			changes := detect.FilterChanges(detect.AttributeChanged(t), p.req.Attribute)
			if len(changes) == 0 {
				return hit{}, false
			}
			return hit{
				reason:  ir.ReasonAttributeChanged,
				settle:  t.Direction == ir.Backward,
				changes: changes,
			}, true
		}
	}
}

// search is the state of one navigation loop.
type search struct {
	e      *Engine
	p      plan
	id     string
	drv    *Driver
	budget *StepBudget
	want   reader.Request
	match  predicate
	start  ir.Position

	// prev is the last available state, in navigation order, and
	// sincePrev the number of steps taken since it was read.
	prev      reader.State
	prevOK    bool
	prevPos   ir.Position
	sincePrev int
}

type stop struct {
	outcome ir.Outcome
	hit     *hit
	detail  string
}

// Navigate runs one navigation call from the current position.
func (e *Engine) Navigate(ctx context.Context, req Request) (ir.NavigationResult, error) {
	p, err := e.plan(req)
	if err != nil {
		return ir.NavigationResult{}, err
	}
	if req.Operation == ir.OpContinue {
		return e.continueTo(ctx, p)
	}

	e.sub.ClearInterrupt()
	s := &search{
		e:      e,
		p:      p,
		id:     e.ids.Generate(),
		drv:    NewDriver(e.sub),
		budget: NewStepBudget(p.limit),
		match:  p.predicate(),
		start:  e.sub.Position(),
	}
	// Frames are read for every operation so that a stopped call always
	// parks where the frame chain is readable.
	s.want = reader.Request{Frames: true}
	if req.Operation == ir.OpLastAttributeChange {
		obj := req.Object
		s.want.Object = &obj
	}
	log := e.logger.With("nav_id", s.id, "op", req.Operation, "direction", p.dir)
	log.Debug("navigation starting", "seq", s.start.Seq, "max_steps", p.limit)

	var st stop
	if _, err := e.reader.Verify(); err != nil {
		st = stop{outcome: ir.OutcomeIntrospectionMismatch, detail: err.Error()}
	} else {
		st, err = s.run(ctx)
		if err != nil {
			return ir.NavigationResult{}, fmt.Errorf("%s from %s: %w", req.Operation, s.start, err)
		}
	}

	if err := s.land(ctx, &st); err != nil {
		return ir.NavigationResult{}, fmt.Errorf("%s: return to %s: %w", req.Operation, s.prevPos, err)
	}
	res := s.result(st)
	log.Info("navigation complete",
		"outcome", res.Outcome,
		"reason", res.Reason,
		"seq", res.Position.Seq,
		"steps", res.Steps,
	)
	return res, nil
}

func (s *search) run(ctx context.Context) (stop, error) {
	if st, err := s.e.reader.Capture(s.want); err == nil {
		s.accept(st, s.start)
	}

	for {
		if ctx.Err() != nil || s.e.sub.Interrupted() {
			return stop{outcome: ir.OutcomeCancelled}, nil
		}
		if err := s.budget.Check(s.id); err != nil {
			return stop{outcome: ir.OutcomeBudgetExhausted, detail: err.Error()}, nil
		}

		reason, err := s.drv.Step(ctx, s.p.dir)
		if err != nil {
			if out, ok := terminal(err); ok {
				return stop{outcome: out, detail: err.Error()}, nil
			}
			return stop{}, err
		}
		if reason != ir.Stepped {
			return stop{outcome: outcomeOf(reason)}, nil
		}
		s.sincePrev++

		cur, err := s.e.reader.Capture(s.want)
		switch {
		case err == nil:
		case reader.IsTransient(err):
			continue
		case reader.IsMismatch(err):
			return stop{outcome: ir.OutcomeIntrospectionMismatch, detail: err.Error()}, nil
		default:
			return stop{}, err
		}
		pos := s.e.sub.Position()
		if !s.prevOK {
			s.accept(cur, pos)
			continue
		}

		t := detect.Transition{From: s.prev, To: cur, Direction: s.p.dir}
		// A settling hit would land back on the start position: that event
		// is behind us, keep going.
		if h, ok := s.match(t); ok && !(h.settle && s.prevPos.Seq == s.start.Seq) {
			return stop{outcome: ir.OutcomeFound, hit: &h}, nil
		}
		s.accept(cur, pos)
	}
}

func (s *search) accept(st reader.State, pos ir.Position) {
	s.prev, s.prevOK, s.prevPos, s.sincePrev = st, true, pos, 0
}

// land moves to where the call reports from: the earlier side of a
// settling hit, or the last consistent state after an early stop.
func (s *search) land(ctx context.Context, st *stop) error {
	switch st.outcome {
	case ir.OutcomeFound:
		if st.hit.settle {
			return s.drv.Repeat(ctx, s.p.dir.Reverse(), s.sincePrev)
		}
	case ir.OutcomeCancelled, ir.OutcomeBudgetExhausted:
		if !s.prevOK && s.budget.Current() > 0 && st.outcome == ir.OutcomeBudgetExhausted {
			st.outcome = ir.OutcomeIntrospectionMismatch
			st.detail = fmt.Sprintf("no consistent interpreter state in %d steps", s.budget.Current())
			return nil
		}
		if s.e.parkOnCancel && s.prevOK && s.sincePrev > 0 {
			return s.drv.Repeat(ctx, s.p.dir.Reverse(), s.sincePrev)
		}
	}
	return nil
}

func (s *search) result(st stop) ir.NavigationResult {
	res := ir.NavigationResult{
		ID:        s.id,
		Operation: s.p.req.Operation,
		Direction: s.p.dir,
		Outcome:   st.outcome,
		Position:  s.e.sub.Position(),
		Start:     s.start,
		Steps:     s.drv.Steps(),
		Detail:    st.detail,
	}
	if h := st.hit; h != nil {
		res.Reason = h.reason
		res.Frame = h.frame
		res.Instruction = h.instruction
		res.Function = h.function
		res.Changes = h.changes
	}
	if res.Frame == nil {
		res.Frame, res.Instruction = describe(s.e.reader)
	}
	return res
}

// describe reads the current frame and instruction for display. Either is
// nil when not available at this position.
func describe(r *reader.Reader) (*ir.Frame, *ir.Instruction) {
	f, err := r.CurrentFrame()
	if err != nil {
		return nil, nil
	}
	if !f.Started() {
		return &f, nil
	}
	in, err := r.CurrentInstruction(f)
	if err != nil {
		return &f, nil
	}
	return &f, &in
}

// continueTo runs to a machine-level breakpoint without classifying
// interpreter state between steps.
func (e *Engine) continueTo(ctx context.Context, p plan) (ir.NavigationResult, error) {
	mem := e.sub.Memory()
	pcs := make([]uint64, 0, len(p.req.Symbols))
	for _, name := range p.req.Symbols {
		addr, ok := mem.Symbol(name)
		if !ok {
			return ir.NavigationResult{}, requestError(p.req.Operation, ErrCodeUnknownSymbol, "unknown symbol %q", name)
		}
		pcs = append(pcs, addr)
	}

	e.sub.ClearInterrupt()
	res := ir.NavigationResult{
		ID:        e.ids.Generate(),
		Operation: p.req.Operation,
		Direction: p.dir,
		Start:     e.sub.Position(),
	}
	reason, err := e.sub.ContinueUntil(ctx, p.dir, substrate.NewBreakpoints(pcs...))
	switch {
	case err != nil:
		out, ok := terminal(err)
		if !ok {
			return ir.NavigationResult{}, fmt.Errorf("%s: %w", p.req.Operation, err)
		}
		res.Outcome, res.Detail = out, err.Error()
	case reason == ir.Stepped:
		res.Outcome, res.Reason = ir.OutcomeFound, ir.ReasonBreakpointHit
	default:
		res.Outcome = outcomeOf(reason)
	}

	res.Position = e.sub.Position()
	res.Steps = int(abs(res.Position.Seq - res.Start.Seq))
	res.Frame, res.Instruction = describe(e.reader)
	e.logger.Info("navigation complete",
		slog.String("nav_id", res.ID),
		slog.String("op", string(res.Operation)),
		slog.String("outcome", string(res.Outcome)),
		slog.Int64("seq", res.Position.Seq),
	)
	return res, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
