package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStepBudget_WithinLimit tests normal operation within the ceiling.
func TestStepBudget_WithinLimit(t *testing.T) {
	b := NewStepBudget(10)

	for i := 0; i < 10; i++ {
		assert.NoError(t, b.Check("nav-1"), "step %d should be allowed", i+1)
	}
	assert.Equal(t, 10, b.Current())
	assert.Equal(t, 10, b.Limit())
}

// TestStepBudget_Exhausted tests the error once the ceiling is reached.
func TestStepBudget_Exhausted(t *testing.T) {
	b := NewStepBudget(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Check("nav-1"))
	}

	err := b.Check("nav-1")
	require.Error(t, err)

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "nav-1", se.NavID)
	assert.Equal(t, 5, se.Steps)
	assert.Equal(t, 5, se.Limit)
	// The refused step is not charged.
	assert.Equal(t, 5, b.Current())
}

func TestStepBudget_Unbounded(t *testing.T) {
	b := NewStepBudget(0)
	for i := 0; i < 10000; i++ {
		require.NoError(t, b.Check("nav-1"))
	}
	assert.Equal(t, 10000, b.Current())
}

func TestIsStepsExceededError(t *testing.T) {
	err := &StepsExceededError{NavID: "nav-1", Steps: 3, Limit: 3}
	assert.True(t, IsStepsExceededError(err))
	assert.True(t, IsStepsExceededError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsStepsExceededError(fmt.Errorf("other")))
	assert.Contains(t, err.Error(), "nav-1")
}

func TestIsRequestError(t *testing.T) {
	err := requestError("step-bytecode", ErrCodeUnknownOpcode, "unknown opcode %q", "FROB")
	wrapped := fmt.Errorf("navigate: %w", err)

	assert.True(t, IsRequestError(wrapped, ErrCodeUnknownOpcode))
	assert.True(t, IsRequestError(wrapped, ""))
	assert.False(t, IsRequestError(wrapped, ErrCodeNoObjectSelected))
	assert.False(t, IsRequestError(fmt.Errorf("plain"), ""))
	assert.Equal(t, `UNKNOWN_OPCODE: unknown opcode "FROB" (op=step-bytecode)`, err.Error())
}
