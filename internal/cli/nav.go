package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/engine"
	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/session"
)

// Navigation ops accepted by the nav command.
var navOps = []string{"step", "rstep", "advance", "radvance", "last-attr", "continue"}

// NavOptions holds flags for the nav command.
type NavOptions struct {
	*RootOptions
	Target   TargetOptions
	Object   string
	Forward  bool
	Backward bool
	MaxSteps int
	Count    int
}

// NavOutput is one navigation call's output.
type NavOutput struct {
	Result ir.NavigationResult `json:"result"`
	Search *session.AttrSearch `json:"search,omitempty"`
}

// NewNavCommand creates the nav command.
func NewNavCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NavOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "nav <op> [arg]",
		Short: "Navigate a recording",
		Long: `Run a navigation operation from a position in a recording.

Operations:
  step [opcode]        next instruction, or next instruction with this opcode
  rstep [opcode]       previous instruction
  advance [function]   next call into a function
  radvance [function]  most recent call that has returned
  last-attr [attr]     last change to --object's attributes (--forward for next)
  continue <symbol>    run to a machine-level symbol (--backward to reverse)

--count repeats the operation from where the previous call stopped. For
last-attr the search is repeated as it was first resolved.

Exit codes:
  0 - The target was found
  1 - Navigation stopped without finding it (boundary, exit, budget, cancel)
  2 - Command error (bad request, recording not found, etc.)

Examples:
  pyrewind nav step --at 0
  pyrewind nav advance foo --recording foo-1
  pyrewind nav last-attr x --object point --at end
  pyrewind nav continue _PyEval_EvalFrameDefault.dispatch_opcode --count 3`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 2 {
				arg = args[1]
			}
			return runNav(opts, args[0], arg, cmd)
		},
	}

	opts.Target.register(cmd, true)
	cmd.Flags().StringVar(&opts.Object, "object", "", "variable whose object last-attr watches")
	cmd.Flags().BoolVar(&opts.Forward, "forward", false, "search last-attr forward")
	cmd.Flags().BoolVar(&opts.Backward, "backward", false, "continue backward")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "step ceiling for this call (0 = configured default)")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "repeat the operation n times")
	cmd.MarkFlagsMutuallyExclusive("forward", "backward")

	return cmd
}

func runNav(opts *NavOptions, op, arg string, cmd *cobra.Command) error {
	if !isNavOp(op) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown operation %q: must be one of %s", op, strings.Join(navOps, ", ")))
	}
	if op == "continue" && arg == "" {
		return NewExitError(ExitCommandError, "continue needs a symbol")
	}
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "--count must be at least 1")
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	tg, err := openTarget(ctx, opts.RootOptions, &opts.Target)
	if err != nil {
		return err
	}
	defer tg.Close()

	out := newFormatter(cmd, opts.RootOptions)
	out.Warn(tg.session.Warning())
	logger := opts.log()

	// Ctrl-C interrupts the running call; the result reports it as cancelled.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, interrupting navigation", "signal", sig)
			tg.session.Interrupt()
		case <-ctx.Done():
		}
	}()

	if opts.Object != "" {
		sel, err := tg.session.SelectObject(opts.Object)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to select object", err)
		}
		out.VerboseLog("selected %s = %s (%s, %s)", sel.Name, sel.Object, sel.Type, sel.Scope)
	}

	outputs := make([]NavOutput, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		o, err := navigateOnce(ctx, tg.session, opts, op, arg, i > 0)
		if err != nil {
			if engine.IsRequestError(err, "") {
				_ = out.Error("E_REQUEST", err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid navigation request", err)
			}
			return WrapExitError(ExitCommandError, "navigation failed", err)
		}
		outputs = append(outputs, o)
		if !o.Result.Found() {
			break
		}
	}

	texts := make([]string, len(outputs))
	for i, o := range outputs {
		texts[i] = formatResult(o.Result)
	}
	var data any = outputs
	if len(outputs) == 1 {
		data = outputs[0]
	}
	if err := out.Success(data, strings.Join(texts, "\n")); err != nil {
		return err
	}

	last := outputs[len(outputs)-1].Result
	if !last.Found() {
		return NewExitError(ExitFailure, fmt.Sprintf("navigation stopped: %s", last.Outcome))
	}
	return nil
}

func navigateOnce(ctx context.Context, s *session.Session, opts *NavOptions, op, arg string, repeat bool) (NavOutput, error) {
	switch op {
	case "last-attr":
		var (
			res    ir.NavigationResult
			search session.AttrSearch
			err    error
		)
		if repeat {
			res, search, err = s.RepeatLastAttr(ctx)
		} else {
			dir := ir.Backward
			if opts.Forward {
				dir = ir.Forward
			}
			res, search, err = s.LastAttr(ctx, session.AttrSearch{
				Attribute: arg,
				Direction: dir,
				MaxSteps:  opts.MaxSteps,
			})
		}
		return NavOutput{Result: res, Search: &search}, err
	case "continue":
		dir := ir.Forward
		if opts.Backward {
			dir = ir.Backward
		}
		res, err := s.Navigate(ctx, engine.Request{
			Operation: ir.OpContinue,
			Direction: dir,
			Symbols:   []string{arg},
			MaxSteps:  opts.MaxSteps,
		})
		return NavOutput{Result: res}, err
	}

	req := engine.Request{MaxSteps: opts.MaxSteps}
	switch op {
	case "step":
		req.Operation, req.Opcode = ir.OpStepBytecode, arg
	case "rstep":
		req.Operation, req.Opcode = ir.OpReverseStepBytecode, arg
	case "advance":
		req.Operation, req.Function = ir.OpAdvanceToFunction, arg
	case "radvance":
		req.Operation, req.Function = ir.OpReverseAdvanceFunction, arg
	}
	res, err := s.Navigate(ctx, req)
	return NavOutput{Result: res}, err
}

func isNavOp(op string) bool {
	for _, o := range navOps {
		if o == op {
			return true
		}
	}
	return false
}

// formatResult renders a navigation result on one line.
func formatResult(res ir.NavigationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", res.Outcome)
	if res.Reason != "" {
		fmt.Fprintf(&b, " (%s)", res.Reason)
	}
	fmt.Fprintf(&b, " at %s after %d steps", res.Position, res.Steps)
	switch {
	case res.Function != "":
		fmt.Fprintf(&b, ": %s", res.Function)
	case res.Frame != nil:
		fmt.Fprintf(&b, ": %s", res.Frame.Name())
	}
	if res.Instruction != nil {
		fmt.Fprintf(&b, " %s", strings.TrimSpace(res.Instruction.String()))
	}
	for _, c := range res.Changes {
		fmt.Fprintf(&b, " [%s %s]", c.Name, c.Kind)
	}
	if res.Detail != "" {
		fmt.Fprintf(&b, " - %s", res.Detail)
	}
	return b.String()
}
