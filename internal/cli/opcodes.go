package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Opcode is one opcode table entry.
type Opcode struct {
	Name   string `json:"name"`
	Number int    `json:"number"`
}

// NewOpcodesCommand creates the opcodes command.
func NewOpcodesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opcodes [name-or-number]",
		Short: "List or resolve opcodes of the interpreter schema",
		Long: `Without an argument, list every opcode in the configured schema.
With one, resolve an opcode name (any case) or number.

Examples:
  pyrewind opcodes
  pyrewind opcodes return_value
  pyrewind opcodes 83`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpcodes(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runOpcodes(opts *RootOptions, args []string, cmd *cobra.Command) error {
	l, err := loadLayout(opts)
	if err != nil {
		return err
	}
	out := newFormatter(cmd, opts)

	if len(args) == 1 {
		n, err := l.OpcodeNumber(args[0])
		if err != nil {
			_ = out.Error("E_UNKNOWN_OPCODE", err.Error(), nil)
			return WrapExitError(ExitFailure, "unknown opcode", err)
		}
		op := Opcode{Name: l.OpcodeName(n), Number: n}
		return out.Success(op, fmt.Sprintf("%s %d", op.Name, op.Number))
	}

	names := l.OpcodeNames()
	ops := make([]Opcode, len(names))
	lines := make([]string, len(names))
	for i, name := range names {
		n, err := l.OpcodeNumber(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "inconsistent opcode table", err)
		}
		ops[i] = Opcode{Name: name, Number: n}
		lines[i] = fmt.Sprintf("%-24s %3d", name, n)
	}
	return out.Success(ops, strings.Join(lines, "\n"))
}
