package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/substrate"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Target TargetOptions
}

// VerifyResult holds the verify command's result.
type VerifyResult struct {
	Recording   string `json:"recording"`
	Digest      string `json:"digest"`
	Steps       int64  `json:"steps"`
	StartDigest string `json:"start_digest"`
	EndDigest   string `json:"end_digest"`
	Reversible  bool   `json:"reversible"`
	Warning     string `json:"warning,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a recording replays and reverses exactly",
		Long: `Replay a recording to its end and back to its start, checking that
every step reverts cleanly and the initial memory image is restored. Also
checks the recording's interpreter build against the schema.

Exit codes:
  0 - The recording is reversible
  1 - Verification failed (diverging replay)
  2 - Command error (database or recording not found, etc.)

Examples:
  pyrewind verify --db ./pyrewind.db --recording foo-1
  pyrewind verify --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	opts.Target.register(cmd, false)
	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	tg, err := openTarget(commandContext(cmd), opts.RootOptions, &opts.Target)
	if err != nil {
		return err
	}
	defer tg.Close()

	out := newFormatter(cmd, opts.RootOptions)
	out.Warn(tg.session.Warning())

	report, err := tg.replayer.Verify()
	if err != nil {
		_ = out.Error("E_DIVERGED", err.Error(), nil)
		if errors.Is(err, substrate.ErrDiverged) {
			return WrapExitError(ExitFailure, "recording is not reversible", err)
		}
		return WrapExitError(ExitFailure, "verification failed", err)
	}

	digest, err := ir.RecordingDigest(tg.replayer.Recording())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest recording", err)
	}

	result := VerifyResult{
		Recording:   tg.summary.ID,
		Digest:      digest,
		Steps:       report.Steps,
		StartDigest: report.StartDigest,
		EndDigest:   report.EndDigest,
		Reversible:  true,
		Warning:     tg.session.Warning(),
	}
	text := fmt.Sprintf("✓ %s: %d steps reversible (digest %s, start image %s, end image %s)",
		result.Recording, result.Steps, shortDigest(digest),
		shortDigest(result.StartDigest), shortDigest(result.EndDigest))
	return out.Success(result, text)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
