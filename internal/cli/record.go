package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/recorder"
	"github.com/roach88/pyrewind/internal/store"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Database string
	ID       string
	Version  string
	MaxSteps int
	Live     bool // store step by step as a live recording
}

// RecordResult is the record command's output.
type RecordResult struct {
	ID        string `json:"id"`
	Build     string `json:"build"`
	Steps     int    `json:"steps"`
	Exited    bool   `json:"exited"`
	ExitCode  int    `json:"exit_code"`
	Landmarks int    `json:"landmarks"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <program.yaml>",
		Short: "Record a program's execution",
		Long: `Execute a program description under the recorder and store the
recording in the database.

With --live the recording is created empty and steps are appended one at
a time before it is marked finished, as a recorder attached to a running
process would.

Examples:
  pyrewind record ./programs/foo.yaml --db ./pyrewind.db
  pyrewind record ./programs/foo.yaml --id foo-1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from configuration)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "recording ID (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Version, "interpreter-version", "", "override the recorded interpreter version string")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "elementary step ceiling for the recorder (0 = default)")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "store the recording incrementally as a live recording")

	return cmd
}

func runRecord(opts *RecordOptions, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(cmd, opts.RootOptions)
	logger := opts.log()

	prog, err := recorder.LoadProgram(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	l, err := loadLayout(opts.RootOptions)
	if err != nil {
		return err
	}

	ropts := []recorder.Option{recorder.WithLogger(logger)}
	if opts.ID != "" {
		ropts = append(ropts, recorder.WithID(opts.ID))
	}
	if opts.Version != "" {
		ropts = append(ropts, recorder.WithVersion(opts.Version))
	}
	if opts.MaxSteps > 0 {
		ropts = append(ropts, recorder.WithMaxSteps(opts.MaxSteps))
	}
	res, err := recorder.Record(prog, l, ropts...)
	if err != nil {
		return WrapExitError(ExitFailure, "recording failed", err)
	}
	rec := res.Recording

	st, err := openDatabase(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.Live {
		err = storeLive(cmd, st, rec)
	} else {
		err = st.WriteRecording(ctx, rec, false)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to store recording", err)
	}
	logger.Info("recording stored", "id", rec.ID, "steps", len(rec.Steps), "live", opts.Live)

	result := RecordResult{
		ID:        rec.ID,
		Build:     rec.Build,
		Steps:     len(rec.Steps),
		Exited:    rec.Exited,
		ExitCode:  rec.ExitCode,
		Landmarks: len(res.Landmarks),
	}
	text := fmt.Sprintf("Recorded %s: %d steps (%s)", rec.ID, len(rec.Steps), exitText(rec.Exited, rec.ExitCode))
	return out.Success(result, text)
}

// storeLive writes rec as a live recording, appending its steps one by one.
func storeLive(cmd *cobra.Command, st *store.Store, rec *ir.Recording) error {
	ctx := commandContext(cmd)
	head := *rec
	head.Steps = nil
	head.Exited = false
	if err := st.WriteRecording(ctx, &head, true); err != nil {
		return err
	}
	for _, step := range rec.Steps {
		if _, err := st.AppendStep(ctx, rec.ID, step); err != nil {
			return err
		}
	}
	return st.MarkFinished(ctx, rec.ID, rec.Exited, rec.ExitCode)
}

func exitText(exited bool, code int) string {
	if exited {
		return fmt.Sprintf("exited with code %d", code)
	}
	return "still running at the end"
}
