package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := runCLI(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, _, err := runCLI(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, _, err := runCLI(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, _, err := runCLI(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestHelpText(t *testing.T) {
	out, _, err := runCLI(t, "test", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "navigation scenarios")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}

func TestTestCommandRunsScenarios(t *testing.T) {
	out, _, err := runCLI(t, "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ step_into_call")
	assert.Contains(t, out, "✓ attribute_history")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	out, _, err := runCLI(t, "--format", "json", "test", scenariosDir, "--filter", "reverse_*")
	require.NoError(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Equal(t, "reverse_from_end", response.Data.Scenarios[0].Name)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	golden := t.TempDir()

	out, _, err := runCLI(t, "test", scenariosDir, "--golden", golden, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(golden updated)")

	// The regenerated goldens are byte-identical to the checked-in ones.
	for _, name := range []string{"step_into_call", "attribute_history", "reverse_from_end"} {
		got, err := os.ReadFile(filepath.Join(golden, name+".golden"))
		require.NoError(t, err)
		want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", name+".golden"))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}

	require.NoError(t, os.WriteFile(filepath.Join(golden, "step_into_call.golden"), []byte("{}"), 0o644))
	out, _, err = runCLI(t, "test", scenariosDir, "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"step_a.yaml", "step_b.yaml", "attr.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := findScenarioFiles(dir, "step_*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.yaml"), []byte("x"), 0o644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(sub, "deep.yaml"), files[0])
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	out, _, err := runCLI(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
