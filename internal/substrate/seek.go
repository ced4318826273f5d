package substrate

import (
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
)

// Seek moves directly to seq, which must lie within recorded history.
// It never blocks and ignores the interrupt flag.
func (r *Replayer) Seek(seq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < 0 || seq > int64(len(r.rec.Steps)) {
		return fmt.Errorf("seek %d: outside recorded history [0, %d]", seq, len(r.rec.Steps))
	}
	for r.pos < seq {
		if err := r.applyLocked(r.pos); err != nil {
			return err
		}
		r.pos++
	}
	for r.pos > seq {
		if err := r.revertLocked(r.pos - 1); err != nil {
			return err
		}
		r.pos--
	}
	return nil
}

// VerifyReport summarizes a reversibility check.
type VerifyReport struct {
	Steps       int64  `json:"steps"`
	StartDigest string `json:"start_digest"`
	EndDigest   string `json:"end_digest"`
}

// Verify replays the whole recording forward from the start and back again,
// checking that every write's old bytes match and that the image at the
// start is identical after the round trip. The current position is restored.
func (r *Replayer) Verify() (VerifyReport, error) {
	r.mu.Lock()
	origin := r.pos
	end := int64(len(r.rec.Steps))
	r.mu.Unlock()

	if err := r.Seek(0); err != nil {
		return VerifyReport{}, err
	}
	start := r.digest()
	if err := r.Seek(end); err != nil {
		return VerifyReport{}, err
	}
	last := r.digest()
	if err := r.Seek(0); err != nil {
		return VerifyReport{}, err
	}
	if again := r.digest(); again != start {
		return VerifyReport{}, fmt.Errorf("verify: image at start changed after round trip (%s != %s): %w",
			again[:12], start[:12], ErrDiverged)
	}
	if err := r.Seek(origin); err != nil {
		return VerifyReport{}, err
	}
	return VerifyReport{Steps: end, StartDigest: start, EndDigest: last}, nil
}

func (r *Replayer) digest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ir.ImageDigest(r.mem.Pages())
}
