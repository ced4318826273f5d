package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/session"
)

// DisOptions holds flags for the dis command.
type DisOptions struct {
	*RootOptions
	Target TargetOptions
}

// NewDisCommand creates the dis command.
func NewDisCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DisOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dis",
		Short: "Disassemble the current code object",
		Long: `Decode the bytecode of the innermost interpreter frame at a position,
marking the current instruction.

Examples:
  pyrewind dis --at 12`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDis(opts, cmd)
		},
	}

	opts.Target.register(cmd, true)
	return cmd
}

func runDis(opts *DisOptions, cmd *cobra.Command) error {
	tg, err := openTarget(commandContext(cmd), opts.RootOptions, &opts.Target)
	if err != nil {
		return err
	}
	defer tg.Close()

	out := newFormatter(cmd, opts.RootOptions)
	out.Warn(tg.session.Warning())

	listing, err := tg.session.Disassemble()
	if err != nil {
		if session.IsUnavailable(err) {
			_ = out.Error("E_UNAVAILABLE", err.Error(), nil)
			return WrapExitError(ExitFailure, "no code to disassemble", err)
		}
		return WrapExitError(ExitCommandError, "failed to disassemble", err)
	}
	return out.Success(listing, formatListing(listing))
}

func formatListing(l session.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", l.Code.DisplayName())
	if l.Code.Filename != "" {
		fmt.Fprintf(&b, " (%s:%d)", l.Code.Filename, l.Code.FirstLine)
	}
	for i, in := range l.Instructions {
		marker := "   "
		if i == l.Current {
			marker = "-->"
		}
		fmt.Fprintf(&b, "\n%s %s", marker, in)
	}
	return b.String()
}
