package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.yaml"), []byte("entry: main\n"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/step_into_call.yaml")
	require.NoError(t, err)

	assert.Equal(t, "step_into_call", s.Name)
	assert.Equal(t, filepath.Join("testdata", "programs", "foo.yaml"), s.Program)
	assert.Equal(t, "dispatch", s.Start.Landmark)
	require.NotNil(t, s.Start.Offset)
	assert.Equal(t, 0, *s.Start.Offset)
	require.Len(t, s.Steps, 6)
	assert.Equal(t, OpAdvance, s.Steps[1].Op)
	assert.Equal(t, "foo", s.Steps[1].Arg)
	require.Len(t, s.Assertions, 3)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nprogram: prog.yaml\nsteps: [{op: step}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: n\nprogram: prog.yaml\nsteps: [{op: step}]\n",
			want: "description is required",
		},
		{
			name: "missing program file",
			body: "name: n\ndescription: d\nprogram: nope.yaml\nsteps: [{op: step}]\n",
			want: "program file not found",
		},
		{
			name: "no steps",
			body: "name: n\ndescription: d\nprogram: prog.yaml\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nsteps: [{op: jump}]\n",
			want: `unknown op "jump"`,
		},
		{
			name: "continue without symbol",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nsteps: [{op: continue}]\n",
			want: "continue needs a symbol",
		},
		{
			name: "both directions",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nsteps: [{op: continue, arg: s, forward: true, backward: true}]\n",
			want: "exclusive",
		},
		{
			name: "start conflict",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nstart: {end: true, position: 3}\nsteps: [{op: step}]\n",
			want: "start: landmark, position and end are exclusive",
		},
		{
			name: "offset without landmark",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nstart: {offset: 2}\nsteps: [{op: step}]\n",
			want: "need a landmark",
		},
		{
			name: "unknown field",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nstepz: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "unknown assertion",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nsteps: [{op: step}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "trace_order without functions",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nsteps: [{op: step}]\nassertions: [{type: trace_order}]\n",
			want: "functions list is required",
		},
		{
			name: "final_state without target",
			body: "name: n\ndescription: d\nprogram: prog.yaml\nsteps: [{op: step}]\nassertions: [{type: final_state}]\n",
			want: "function or offset is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
