package substrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/pyrewind/internal/ir"
)

// Replayer replays a recording one elementary step at a time.
//
// Position k is the initial image with steps[0..k) applied. Moving forward
// applies a step's writes, moving backward restores their old bytes.
//
// A live Replayer models a recording still in progress: stepping forward past
// the last recorded step blocks until Append or Finish is called, or until
// the context is done. Append and Finish may be called from any goroutine.
type Replayer struct {
	mu       sync.Mutex
	rec      *ir.Recording
	mem      *Image
	pos      int64
	live     bool
	finished bool
	exited   bool

	// signal is buffered (size 1) and coalesces Append/Finish/Interrupt
	// notifications for a blocked forward step.
	signal      chan struct{}
	interrupted atomic.Bool
	logger      *slog.Logger
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithLive marks the recording as still in progress.
func WithLive() Option {
	return func(r *Replayer) {
		r.live = true
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Replayer) {
		r.logger = l
	}
}

// NewReplayer builds a Replayer positioned at the start of rec.
// The recording is owned by the Replayer afterwards; live steps are
// appended to it.
func NewReplayer(rec *ir.Recording, opts ...Option) (*Replayer, error) {
	r := &Replayer{
		rec:    rec,
		mem:    NewImage(),
		exited: rec.Exited,
		signal: make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.live && r.exited {
		return nil, fmt.Errorf("recording %s: a live recording cannot have exited", rec.ID)
	}

	for _, seg := range rec.Segments {
		r.mem.MapRange(seg.Addr, len(seg.Data))
		if err := r.mem.Write(seg.Addr, seg.Data); err != nil {
			return nil, fmt.Errorf("load segment 0x%x: %w", seg.Addr, err)
		}
	}
	// Pages touched by any step are mapped up front so the set of mapped
	// pages is the same at every position.
	for _, st := range rec.Steps {
		for _, w := range st.Writes {
			if len(w.Old) != len(w.New) {
				return nil, fmt.Errorf("recording %s: write at 0x%x changes size", rec.ID, w.Addr)
			}
			r.mem.MapRange(w.Addr, len(w.New))
		}
	}
	return r, nil
}

// Recording returns the underlying recording. Callers must not modify it
// while the Replayer is in use.
func (r *Replayer) Recording() *ir.Recording {
	return r.rec
}

// Position returns the current position.
func (r *Replayer) Position() ir.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.PositionAt(r.pos)
}

// End returns the last recorded position.
func (r *Replayer) End() ir.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.End()
}

// Live reports whether the recording is still in progress.
func (r *Replayer) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live && !r.finished
}

// StepForward applies the next step.
func (r *Replayer) StepForward(ctx context.Context) (ir.StopReason, error) {
	for {
		r.mu.Lock()
		if r.pos < int64(len(r.rec.Steps)) {
			err := r.applyLocked(r.pos)
			if err == nil {
				r.pos++
			}
			r.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return ir.Stepped, nil
		}
		switch {
		case r.exited:
			r.mu.Unlock()
			return ir.ProcessExited, nil
		case !r.live:
			r.mu.Unlock()
			return ir.TimelineBoundary, nil
		case r.finished:
			r.mu.Unlock()
			return 0, ErrNoMoreRecordedHistory
		}
		r.mu.Unlock()

		if r.interrupted.Load() {
			return 0, ErrInterrupted
		}
		r.logger.Debug("waiting for live execution", "seq", r.pos)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.signal:
		}
	}
}

// StepBackward reverts the previous step.
func (r *Replayer) StepBackward(ctx context.Context) (ir.StopReason, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos == 0 {
		return ir.TimelineBoundary, nil
	}
	if err := r.revertLocked(r.pos - 1); err != nil {
		return 0, err
	}
	r.pos--
	return ir.Stepped, nil
}

// ContinueUntil steps until the PC after a step is in bps.
func (r *Replayer) ContinueUntil(ctx context.Context, dir ir.Direction, bps Breakpoints) (ir.StopReason, error) {
	if !dir.Valid() {
		return 0, fmt.Errorf("continue: invalid direction %v", dir)
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if r.interrupted.Load() {
			return 0, ErrInterrupted
		}
		var (
			reason ir.StopReason
			err    error
		)
		if dir == ir.Forward {
			reason, err = r.StepForward(ctx)
		} else {
			reason, err = r.StepBackward(ctx)
		}
		if err != nil || reason != ir.Stepped {
			return reason, err
		}
		if bps.Has(r.Position().PC) {
			return ir.Stepped, nil
		}
	}
}

func (r *Replayer) applyLocked(i int64) error {
	for _, w := range r.rec.Steps[i].Writes {
		if err := r.mem.Swap(w.Addr, w.Old, w.New); err != nil {
			return fmt.Errorf("apply step %d: %w", i, err)
		}
	}
	return nil
}

func (r *Replayer) revertLocked(i int64) error {
	writes := r.rec.Steps[i].Writes
	for j := len(writes) - 1; j >= 0; j-- {
		w := writes[j]
		if err := r.mem.Swap(w.Addr, w.New, w.Old); err != nil {
			return fmt.Errorf("revert step %d: %w", i, err)
		}
	}
	return nil
}

// Append records a new step at the end of a live recording.
func (r *Replayer) Append(step ir.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live || r.finished {
		return fmt.Errorf("append to recording %s: not live", r.rec.ID)
	}
	for _, w := range step.Writes {
		if len(w.Old) != len(w.New) {
			return fmt.Errorf("append: write at 0x%x changes size", w.Addr)
		}
		r.mem.MapRange(w.Addr, len(w.New))
	}
	r.rec.Steps = append(r.rec.Steps, step)
	r.notify()
	return nil
}

// Finish ends a live recording. If exited is true the process exited at
// the last step.
func (r *Replayer) Finish(exited bool, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live || r.finished {
		return
	}
	r.finished = true
	r.exited = exited
	r.rec.Exited = exited
	r.rec.ExitCode = code
	r.notify()
}

// notify wakes a blocked forward step. Non-blocking: the buffer of one
// coalesces notifications.
func (r *Replayer) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Interrupt requests that a running navigation stop at the next check.
func (r *Replayer) Interrupt() {
	r.interrupted.Store(true)
	r.notify()
}

func (r *Replayer) Interrupted() bool {
	return r.interrupted.Load()
}

func (r *Replayer) ClearInterrupt() {
	r.interrupted.Store(false)
}

// Memory returns a view of target memory at the current position.
func (r *Replayer) Memory() Memory {
	return replayMemory{r}
}

type replayMemory struct {
	r *Replayer
}

func (m replayMemory) Read(addr uint64, n int) ([]byte, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return m.r.mem.Read(addr, n)
}

func (m replayMemory) Symbol(name string) (uint64, bool) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	addr, ok := m.r.rec.Symbols[name]
	return addr, ok
}

var _ Substrate = (*Replayer)(nil)
