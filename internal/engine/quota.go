package engine

import (
	"errors"
	"fmt"
)

// StepBudget counts the elementary steps a navigation call spends searching
// and enforces the call's ceiling. A limit of 0 means unbounded.
//
// Steps taken to settle on a found position or to park after cancellation
// are not charged.
type StepBudget struct {
	limit   int
	current int
}

// NewStepBudget creates a budget with the given ceiling.
func NewStepBudget(limit int) *StepBudget {
	return &StepBudget{limit: limit}
}

// Check charges one step. It returns StepsExceededError once the ceiling
// has been reached; the step must then not be taken.
func (b *StepBudget) Check(navID string) error {
	if b.limit > 0 && b.current >= b.limit {
		return &StepsExceededError{NavID: navID, Steps: b.current, Limit: b.limit}
	}
	b.current++
	return nil
}

// Current returns the number of steps charged so far.
func (b *StepBudget) Current() int {
	return b.current
}

// Limit returns the ceiling, 0 when unbounded.
func (b *StepBudget) Limit() int {
	return b.limit
}

// StepsExceededError reports a navigation call that reached its ceiling
// without satisfying its predicate.
type StepsExceededError struct {
	NavID string
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("navigation %s exhausted its step budget: %d steps of %d", e.NavID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
