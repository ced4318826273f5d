package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden(t *testing.T) {
	for _, name := range []string{"step_into_call", "attribute_history", "reverse_from_end"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestGoldenBytes_OmitsPositions(t *testing.T) {
	r := NewResult()
	r.AddTrace(TraceEvent{Op: OpStep, Outcome: "found", Function: "main", Offset: intPtr(0), Seq: 42, Steps: 7})

	b, err := GoldenBytes("s", r)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"s","trace":[{"function":"main","offset":0,"op":"step","outcome":"found"}]}`, string(b))
}
