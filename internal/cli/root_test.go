package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pyrewind/internal/ir"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pyrewind", cmd.Use)
	assert.Contains(t, cmd.Long, "bytecode level")
	assert.Equal(t, ir.EngineVersion, cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"record", "list", "where", "nav", "dis", "opcodes", "schema", "verify", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}

	check, _, err := cmd.Find([]string{"schema", "check"})
	require.NoError(t, err)
	assert.Equal(t, "check", check.Name())
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestTargetFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"where", "nav", "dis"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			for _, flag := range []string{"db", "recording"} {
				f := sub.Flags().Lookup(flag)
				require.NotNil(t, f, flag)
				assert.Equal(t, "", f.DefValue)
			}
			at := sub.Flags().Lookup("at")
			require.NotNil(t, at)
			assert.Equal(t, "0", at.DefValue)
		})
	}

	verify, _, err := cmd.Find([]string{"verify"})
	require.NoError(t, err)
	assert.Nil(t, verify.Flags().Lookup("at"))
}

func TestNavCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	nav, _, err := cmd.Find([]string{"nav"})
	require.NoError(t, err)

	for _, flag := range []string{"object", "forward", "backward", "max-steps"} {
		assert.NotNil(t, nav.Flags().Lookup(flag), flag)
	}
	count := nav.Flags().Lookup("count")
	require.NotNil(t, count)
	assert.Equal(t, "n", count.Shorthand)
	assert.Equal(t, "1", count.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := runCLI(t, "--format", "invalid", "opcodes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "configured.db")
	cfgPath := filepath.Join(dir, "pyrewind.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[store]\npath = \""+filepath.ToSlash(db)+"\"\n"), 0o644))

	_, _, err := runCLI(t, "--config", cfgPath, "record", fooProgramPath, "--id", "foo")
	require.NoError(t, err)
	_, err = os.Stat(db)
	require.NoError(t, err, "record should use the configured store path")

	out, _, err := runCLI(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "foo")
}

func TestConfigFlag_Invalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pyrewind.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[engine]\nmax_stepz = 3\n"), 0o644))

	_, _, err := runCLI(t, "--config", cfgPath, "opcodes")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown keys")
}
