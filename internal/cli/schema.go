package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/layout"
)

// SchemaSummary describes a compiled introspection schema.
type SchemaSummary struct {
	File        string `json:"file"`
	Build       string `json:"build"`
	Version     string `json:"version"`
	PointerSize int    `json:"pointer_size"`
	Opcodes     int    `json:"opcodes"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with interpreter introspection schemas",
	}
	cmd.AddCommand(newSchemaCheckCommand(rootOpts))
	return cmd
}

func newSchemaCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.cue>",
		Short: "Compile and validate a schema file",
		Long: `Compile a CUE introspection schema against the layout definition and
validate it: required symbols present, offsets aligned, opcode numbers
unique.

Exit codes:
  0 - Schema is valid
  1 - Schema is invalid
  2 - Command error (file not readable, etc.)

Examples:
  pyrewind schema check ./schemas/cpython311.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaCheck(rootOpts, args[0], cmd)
		},
	}
}

func runSchemaCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts)

	l, err := layout.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return WrapExitError(ExitCommandError, "failed to load schema", err)
		}
		var details any
		var ce *layout.CompileError
		if errors.As(err, &ce) {
			details = map[string]string{"field": ce.Field}
		}
		_ = out.Error("E_SCHEMA", err.Error(), details)
		return WrapExitError(ExitFailure, "invalid schema", err)
	}

	sum := SchemaSummary{
		File:        path,
		Build:       l.Build.Name,
		Version:     l.Build.Version,
		PointerSize: l.Build.PointerSize,
		Opcodes:     len(l.OpcodeNames()),
	}
	text := fmt.Sprintf("✓ %s: %s (version %s, %d-byte pointers, %d opcodes)",
		path, sum.Build, sum.Version, sum.PointerSize, sum.Opcodes)
	return out.Success(sum, text)
}
