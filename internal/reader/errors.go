package reader

import (
	"errors"
	"fmt"
)

// ErrStateUnavailable means interpreter internals are not consistent at the
// current position (a frame being set up, a pointer not yet written).
// Callers keep stepping and do not classify the position.
var ErrStateUnavailable = errors.New("interpreter state unavailable")

// ErrNoFrame means no interpreter frame is executing. It matches
// ErrStateUnavailable under errors.Is.
var ErrNoFrame = fmt.Errorf("no current frame: %w", ErrStateUnavailable)

// ErrNotFound is returned by LookupVariable when the name is not bound.
var ErrNotFound = errors.New("variable not found")

// unavailable wraps a transient read failure.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrStateUnavailable)
}

// MismatchError reports that the target does not match the introspection
// schema: missing symbols or a different interpreter version.
type MismatchError struct {
	Reason   string
	Expected string
	Found    string
}

func (e *MismatchError) Error() string {
	if e.Expected != "" || e.Found != "" {
		return fmt.Sprintf("introspection mismatch: %s (expected %q, found %q)", e.Reason, e.Expected, e.Found)
	}
	return fmt.Sprintf("introspection mismatch: %s", e.Reason)
}

// IsMismatch reports whether err is a MismatchError.
// Uses errors.As to handle wrapped errors.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}
