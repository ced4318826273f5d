// Package substrate is the reversible execution substrate the navigation
// engine drives: single elementary steps in both time directions, a current
// position, memory and symbol access at that position, and an interrupt flag
// checked between steps.
//
// Replayer implements it over a recorded timeline. A live Replayer also
// accepts new steps while it is being navigated.
package substrate

import (
	"context"
	"errors"

	"github.com/roach88/pyrewind/internal/ir"
)

var (
	// ErrNoMoreRecordedHistory is returned by a forward step at the end of a
	// live recording that finished without the process exiting.
	ErrNoMoreRecordedHistory = errors.New("no more recorded history")

	// ErrUnmapped is returned when reading memory the target never mapped.
	ErrUnmapped = errors.New("unmapped memory")

	// ErrInterrupted is returned when a blocking step or a continue is
	// interrupted through Interrupt.
	ErrInterrupted = errors.New("interrupted")

	// ErrDiverged means the recorded old bytes of a write do not match
	// the image, so the timeline cannot be replayed.
	ErrDiverged = errors.New("timeline diverged from recorded image")
)

// Memory reads target memory at the current position.
type Memory interface {
	// Read returns a copy of n bytes at addr, or ErrUnmapped.
	Read(addr uint64, n int) ([]byte, error)
	// Symbol resolves a target symbol to its address.
	Symbol(name string) (uint64, bool)
}

// Breakpoints is a set of program counters.
type Breakpoints map[uint64]struct{}

// NewBreakpoints builds a set from program counters.
func NewBreakpoints(pcs ...uint64) Breakpoints {
	bp := make(Breakpoints, len(pcs))
	for _, pc := range pcs {
		bp[pc] = struct{}{}
	}
	return bp
}

// Has reports whether pc is in the set.
func (b Breakpoints) Has(pc uint64) bool {
	_, ok := b[pc]
	return ok
}

// Substrate is the reversible execution contract.
//
// Stepping never skips an elementary position. A step that cannot move
// reports ProcessExited or TimelineBoundary and leaves the position unchanged.
type Substrate interface {
	StepForward(ctx context.Context) (ir.StopReason, error)
	StepBackward(ctx context.Context) (ir.StopReason, error)
	// ContinueUntil steps in dir until the position's PC is in bps, the
	// timeline ends, or the substrate is interrupted (ErrInterrupted).
	ContinueUntil(ctx context.Context, dir ir.Direction, bps Breakpoints) (ir.StopReason, error)
	Position() ir.Position
	Memory() Memory
	// Live reports whether forward stepping at the end of history may block
	// waiting for more execution.
	Live() bool

	Interrupt()
	Interrupted() bool
	ClearInterrupt()
}
