package engine

import (
	"context"
	"errors"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/substrate"
)

// Driver is the elementary execution driver: one substrate step at a time,
// in either direction, counting what it moved.
type Driver struct {
	sub   substrate.Substrate
	steps int
}

// NewDriver wraps a substrate.
func NewDriver(sub substrate.Substrate) *Driver {
	return &Driver{sub: sub}
}

// Step moves one elementary step in dir. A step that cannot move reports
// ProcessExited or TimelineBoundary and leaves the position unchanged.
func (d *Driver) Step(ctx context.Context, dir ir.Direction) (ir.StopReason, error) {
	var (
		reason ir.StopReason
		err    error
	)
	if dir == ir.Backward {
		reason, err = d.sub.StepBackward(ctx)
	} else {
		reason, err = d.sub.StepForward(ctx)
	}
	if err == nil && reason == ir.Stepped {
		d.steps++
	}
	return reason, err
}

// Repeat takes n steps in dir, ignoring cancellation. It is used to return
// to a position the call has already visited, so every step must succeed.
func (d *Driver) Repeat(ctx context.Context, dir ir.Direction, n int) error {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < n; i++ {
		reason, err := d.Step(ctx, dir)
		if err != nil {
			return err
		}
		if reason != ir.Stepped {
			return errors.New("substrate stopped while revisiting history: " + reason.String())
		}
	}
	return nil
}

// Steps returns the number of elementary steps moved.
func (d *Driver) Steps() int {
	return d.steps
}

// terminal maps a substrate error to a terminal outcome. Errors that are
// not terminal conditions are substrate failures.
func terminal(err error) (ir.Outcome, bool) {
	switch {
	case errors.Is(err, substrate.ErrNoMoreRecordedHistory):
		return ir.OutcomeTimelineBoundary, true
	case errors.Is(err, substrate.ErrInterrupted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ir.OutcomeCancelled, true
	}
	return "", false
}

func outcomeOf(reason ir.StopReason) ir.Outcome {
	if reason == ir.ProcessExited {
		return ir.OutcomeProcessExited
	}
	return ir.OutcomeTimelineBoundary
}
