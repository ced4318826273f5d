package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/substrate"
)

// Stream replays a finished recording into a live Replayer step by step, as
// if the process were still executing under the recorder.
type Stream struct {
	res      *Result
	replayer *substrate.Replayer
	next     int
}

// NewStream creates a live Replayer holding the first n recorded steps.
func NewStream(res *Result, n int, opts ...substrate.Option) (*Stream, error) {
	src := res.Recording
	if n < 0 || n > len(src.Steps) {
		return nil, fmt.Errorf("stream: prefix %d outside [0, %d]", n, len(src.Steps))
	}
	rec := &ir.Recording{
		ID:        src.ID,
		Build:     src.Build,
		Symbols:   src.Symbols,
		InitialPC: src.InitialPC,
		Segments:  src.Segments,
		Steps:     append([]ir.Step(nil), src.Steps[:n]...),
	}
	rp, err := substrate.NewReplayer(rec, append(opts, substrate.WithLive())...)
	if err != nil {
		return nil, err
	}
	return &Stream{res: res, replayer: rp, next: n}, nil
}

// Replayer returns the live substrate being fed.
func (s *Stream) Replayer() *substrate.Replayer {
	return s.replayer
}

// Remaining returns the number of steps not yet fed.
func (s *Stream) Remaining() int {
	return len(s.res.Recording.Steps) - s.next
}

// Feed appends up to n more steps and returns how many were appended.
func (s *Stream) Feed(n int) (int, error) {
	fed := 0
	for fed < n && s.Remaining() > 0 {
		if err := s.replayer.Append(s.res.Recording.Steps[s.next]); err != nil {
			return fed, err
		}
		s.next++
		fed++
	}
	return fed, nil
}

// Finish ends the live recording. The process is reported as exited only
// if every step was fed and the source recording exited.
func (s *Stream) Finish() {
	exited := s.Remaining() == 0 && s.res.Recording.Exited
	s.replayer.Finish(exited, s.res.Recording.ExitCode)
}

// Run feeds one step per interval until everything is fed, then finishes.
// It returns early with ctx.Err() if ctx is done.
func (s *Stream) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for s.Remaining() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Feed(1); err != nil {
				return err
			}
		}
	}
	s.Finish()
	return nil
}
