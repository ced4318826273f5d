package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/pyrewind/internal/engine"
	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/recorder"
	"github.com/roach88/pyrewind/internal/session"
	"github.com/roach88/pyrewind/internal/store"
	"github.com/roach88/pyrewind/internal/substrate"
	"github.com/roach88/pyrewind/internal/testutil"
)

// Harness runs one scenario's steps against a session.
type Harness struct {
	store    *store.Store
	session  *session.Session
	replayer *substrate.Replayer
	recorded *recorder.Result
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Record the scenario's program under a fixed recording ID
//  2. Store it in a fresh in-memory database and read it back
//  3. Seek the replayed copy to the start position
//  4. Run each step, checking its expect clause
//  5. Evaluate assertions against the trace and final state
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	ctx := context.Background()

	l, err := layout.Default()
	if err != nil {
		return nil, err
	}
	prog, err := recorder.LoadProgram(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	recorded, err := recorder.Record(prog, l,
		recorder.WithID("scenario-"+scenario.Name),
		recorder.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record program: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.WriteRecording(ctx, recorded.Recording, false); err != nil {
		return nil, err
	}
	rec, _, err := st.ReadRecording(ctx, recorded.Recording.ID)
	if err != nil {
		return nil, err
	}

	rep, err := substrate.NewReplayer(rec, substrate.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	sess, err := session.Open(rep, l,
		session.WithLogger(logger),
		session.WithEngineOptions(engine.WithIDGenerator(testutil.NewFixedIDGenerator("nav-"+scenario.Name))),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:    st,
		session:  sess,
		replayer: rep,
		recorded: recorded,
		logger:   logger,
	}

	seq, err := h.startSeq(scenario.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if err := rep.Seek(seq); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, res, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, ev, res) {
				result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
			}
		}
	}

	result.Final = h.finalState()
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// startSeq resolves a Start to an elementary position.
func (h *Harness) startSeq(s Start) (int64, error) {
	switch {
	case s.End:
		return h.replayer.End().Seq, nil
	case s.Position != nil:
		return *s.Position, nil
	case s.Landmark != "":
		q := recorder.Query{
			Kind:     recorder.LandmarkKind(s.Landmark),
			Function: s.Function,
			Attr:     s.Attr,
		}
		if s.Offset != nil {
			q.Offset, q.HasOffset = *s.Offset, true
		}
		lm, ok := h.recorded.Find(q)
		if !ok {
			return 0, fmt.Errorf("no %s landmark matches %+v", s.Landmark, s)
		}
		return lm.Seq, nil
	default:
		return 0, nil
	}
}

func (h *Harness) runStep(ctx context.Context, step Step) (TraceEvent, ir.NavigationResult, error) {
	if step.Object != "" {
		if _, err := h.session.SelectObject(step.Object); err != nil {
			return TraceEvent{}, ir.NavigationResult{}, err
		}
	}

	var (
		res ir.NavigationResult
		err error
	)
	switch step.Op {
	case OpLastAttr:
		dir := ir.Backward
		if step.Forward {
			dir = ir.Forward
		}
		res, _, err = h.session.LastAttr(ctx, session.AttrSearch{
			Attribute: step.Arg,
			Direction: dir,
			MaxSteps:  step.MaxSteps,
		})
	default:
		req := engine.Request{MaxSteps: step.MaxSteps}
		switch step.Op {
		case OpStep:
			req.Operation, req.Opcode = ir.OpStepBytecode, step.Arg
		case OpRStep:
			req.Operation, req.Opcode = ir.OpReverseStepBytecode, step.Arg
		case OpAdvance:
			req.Operation, req.Function = ir.OpAdvanceToFunction, step.Arg
		case OpRAdvance:
			req.Operation, req.Function = ir.OpReverseAdvanceFunction, step.Arg
		case OpContinue:
			req.Operation, req.Symbols = ir.OpContinue, []string{step.Arg}
			req.Direction = ir.Forward
			if step.Backward {
				req.Direction = ir.Backward
			}
		default:
			return TraceEvent{}, ir.NavigationResult{}, fmt.Errorf("unknown op %q", step.Op)
		}
		res, err = h.session.Navigate(ctx, req)
	}
	if err != nil {
		return TraceEvent{}, ir.NavigationResult{}, err
	}
	return traceEvent(step, res), res, nil
}

// traceEvent summarizes a navigation result. The function is the matched
// one if the result names it, else the frame the call stopped in.
func traceEvent(step Step, res ir.NavigationResult) TraceEvent {
	ev := TraceEvent{
		Op:       step.Op,
		Arg:      step.Arg,
		Object:   step.Object,
		Outcome:  string(res.Outcome),
		Reason:   string(res.Reason),
		Function: res.Function,
		Seq:      res.Position.Seq,
		Steps:    res.Steps,
	}
	if ev.Function == "" && res.Frame != nil {
		ev.Function = res.Frame.Name()
	}
	if res.Instruction != nil {
		off := res.Instruction.Offset
		ev.Offset = &off
		ev.Opcode = res.Instruction.Name
	}
	for _, c := range res.Changes {
		ev.Changes = append(ev.Changes, c.Name+":"+string(c.Kind))
	}
	return ev
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(want *Expect, got TraceEvent, res ir.NavigationResult) []string {
	var errs []string
	mismatch := func(field string, expected, actual any) {
		errs = append(errs, fmt.Sprintf("expected %s %v, got %v", field, expected, actual))
	}

	if want.Outcome != "" && want.Outcome != got.Outcome {
		mismatch("outcome", want.Outcome, got.Outcome)
	}
	if want.Reason != "" && want.Reason != got.Reason {
		mismatch("reason", want.Reason, got.Reason)
	}
	if want.Function != "" && !ir.NamesEqual(want.Function, got.Function) {
		mismatch("function", want.Function, got.Function)
	}
	if want.Offset != nil {
		switch {
		case got.Offset == nil:
			mismatch("offset", *want.Offset, "none")
		case *got.Offset != *want.Offset:
			mismatch("offset", *want.Offset, *got.Offset)
		}
	}
	if want.Opcode != "" && want.Opcode != got.Opcode {
		mismatch("opcode", want.Opcode, got.Opcode)
	}
	if want.Attribute != "" {
		found := false
		for _, c := range res.Changes {
			if ir.NamesEqual(c.Name, want.Attribute) {
				found = true
				break
			}
		}
		if !found {
			mismatch("attribute change", want.Attribute, got.Changes)
		}
	}
	if want.Position != nil && *want.Position != got.Seq {
		mismatch("position", *want.Position, got.Seq)
	}
	return errs
}

func (h *Harness) finalState() *FinalState {
	loc, err := h.session.Where()
	if err != nil {
		return nil
	}
	fs := &FinalState{Seq: loc.Position.Seq, Depth: len(loc.Frames)}
	for _, f := range loc.Frames {
		if f.Kind == ir.FrameBytecode {
			fs.Function = f.Name()
			break
		}
	}
	if loc.Instruction != nil {
		off := loc.Instruction.Offset
		fs.Offset = &off
	}
	return fs
}
