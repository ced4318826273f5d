package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database string
	Live     bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored recordings",
		Long: `List recordings in creation order.

Examples:
  pyrewind list --db ./pyrewind.db
  pyrewind list --live --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from configuration)")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "only recordings still being written")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	st, err := openDatabase(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	all, err := st.ListRecordings(commandContext(cmd), opts.Live)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list recordings", err)
	}
	return newFormatter(cmd, opts.RootOptions).Success(all, formatSummaries(all))
}

func formatSummaries(all []store.Summary) string {
	if len(all) == 0 {
		return "No recordings."
	}
	var b strings.Builder
	for i, s := range all {
		if i > 0 {
			b.WriteByte('\n')
		}
		state := exitText(s.Exited, s.ExitCode)
		if s.Live {
			state = "live"
		}
		fmt.Fprintf(&b, "%s  %s  %d steps  %s", s.ID, s.Build, s.Steps, state)
	}
	return b.String()
}
