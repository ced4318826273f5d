package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/session"
)

// WhereOptions holds flags for the where command.
type WhereOptions struct {
	*RootOptions
	Target TargetOptions
}

// NewWhereCommand creates the where command.
func NewWhereCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WhereOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "where",
		Short: "Show the call chain at a position",
		Long: `Show the interpreter call chain, innermost first, and the current
instruction at a position.

Positions in the middle of a call or return have no consistent state; the
command then exits with code 1.

Examples:
  pyrewind where --at 12
  pyrewind where --recording foo-1 --at end --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhere(opts, cmd)
		},
	}

	opts.Target.register(cmd, true)
	return cmd
}

func runWhere(opts *WhereOptions, cmd *cobra.Command) error {
	tg, err := openTarget(commandContext(cmd), opts.RootOptions, &opts.Target)
	if err != nil {
		return err
	}
	defer tg.Close()

	out := newFormatter(cmd, opts.RootOptions)
	out.Warn(tg.session.Warning())

	loc, err := tg.session.Where()
	if err != nil {
		if session.IsUnavailable(err) {
			_ = out.Error("E_UNAVAILABLE", err.Error(), nil)
			return WrapExitError(ExitFailure, "no consistent interpreter state", err)
		}
		return WrapExitError(ExitCommandError, "failed to read interpreter state", err)
	}
	return out.Success(loc, formatLocation(loc))
}

func formatLocation(loc session.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "position %s", loc.Position)
	if len(loc.Frames) == 0 {
		b.WriteString("\n  (no frames)")
	}
	for i, f := range loc.Frames {
		fmt.Fprintf(&b, "\n  #%d %s", i, f)
	}
	if loc.Instruction != nil {
		fmt.Fprintf(&b, "\n  -> %s", strings.TrimSpace(loc.Instruction.String()))
	}
	return b.String()
}
