package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_StepIntoCall(t *testing.T) {
	result, err := Run(loadScenario(t, "step_into_call"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 6)

	assert.Equal(t, "foo", result.Trace[1].Function)
	assert.Nil(t, result.Trace[1].Offset, "foo has not started at its call")
	assert.Equal(t, "process_exited", result.Trace[5].Outcome)
	assert.Positive(t, result.Trace[5].Steps)
}

func TestRun_AttributeHistory(t *testing.T) {
	result, err := Run(loadScenario(t, "attribute_history"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 5)
	assert.Equal(t, []string{"x:rebound"}, result.Trace[0].Changes)
	assert.Equal(t, []string{"y:removed"}, result.Trace[2].Changes)
	assert.Equal(t, result.Trace[0].Seq, result.Trace[4].Seq)
}

func TestRun_ReverseFromEnd(t *testing.T) {
	result, err := Run(loadScenario(t, "reverse_from_end"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.NotNil(t, result.Final)
	assert.Equal(t, 1, result.Final.Depth)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := loadScenario(t, "step_into_call")
	s.Steps = s.Steps[:1]
	s.Steps[0].Expect = &Expect{Opcode: "LOAD_FAST", Offset: intPtr(0)}
	s.Assertions = nil

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected offset 0, got 2")
	assert.Contains(t, result.Errors[1], "expected opcode LOAD_FAST, got CALL_FUNCTION")
}

func TestRun_UnknownStartLandmark(t *testing.T) {
	s := loadScenario(t, "step_into_call")
	s.Start.Function = "nowhere"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start:")
}

func TestRun_SelectUnknownObject(t *testing.T) {
	s := loadScenario(t, "attribute_history")
	s.Steps[0].Object = "ghost"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `select "ghost"`)
}
