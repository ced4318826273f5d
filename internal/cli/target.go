package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/session"
	"github.com/roach88/pyrewind/internal/store"
	"github.com/roach88/pyrewind/internal/substrate"
)

// TargetOptions select a stored recording and a position in it.
type TargetOptions struct {
	Database  string
	Recording string // "" selects the most recently created recording
	At        string // elementary position, or "end"
}

func (t *TargetOptions) register(cmd *cobra.Command, withPosition bool) {
	cmd.Flags().StringVar(&t.Database, "db", "", "path to SQLite database (default from configuration)")
	cmd.Flags().StringVar(&t.Recording, "recording", "", "recording ID (default: most recent)")
	if withPosition {
		cmd.Flags().StringVar(&t.At, "at", "0", `position to start from (number or "end")`)
	}
}

// target is an opened recording positioned for navigation.
type target struct {
	store    *store.Store
	summary  store.Summary
	replayer *substrate.Replayer
	session  *session.Session
}

func (t *target) Close() error {
	return t.store.Close()
}

// openDatabase opens the --db path, falling back to the configured store.
func openDatabase(opts *RootOptions, path string) (*store.Store, error) {
	if path == "" {
		path = opts.settings().Store.Path
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadLayout returns the configured introspection schema.
func loadLayout(opts *RootOptions) (*layout.Layout, error) {
	l, err := layout.Load(opts.settings().Layout.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load layout", err)
	}
	return l, nil
}

// openTarget reads a recording, replays it to the requested position and
// opens a session on it. A live recording is opened as the snapshot stored
// so far.
func openTarget(ctx context.Context, opts *RootOptions, t *TargetOptions) (*target, error) {
	st, err := openDatabase(opts, t.Database)
	if err != nil {
		return nil, err
	}
	tg, err := openRecording(ctx, opts, st, t)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return tg, nil
}

func openRecording(ctx context.Context, opts *RootOptions, st *store.Store, t *TargetOptions) (*target, error) {
	id := t.Recording
	if id == "" {
		all, err := st.ListRecordings(ctx, false)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to list recordings", err)
		}
		if len(all) == 0 {
			return nil, NewExitError(ExitCommandError, "database holds no recordings")
		}
		id = all[len(all)-1].ID
	}

	rec, sum, err := st.ReadRecording(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("recording %q not found", id))
		}
		return nil, WrapExitError(ExitCommandError, "failed to read recording", err)
	}

	logger := opts.log()
	rep, err := substrate.NewReplayer(rec, substrate.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load recording", err)
	}
	seq, err := parsePosition(t.At, rep.End().Seq)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --at", err)
	}
	if err := rep.Seek(seq); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --at", err)
	}

	l, err := loadLayout(opts)
	if err != nil {
		return nil, err
	}
	sess, err := session.Open(rep, l,
		session.WithLogger(logger),
		session.WithEngineOptions(opts.settings().EngineOptions()...),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	logger.Debug("recording opened",
		"recording", sum.ID,
		"steps", sum.Steps,
		"position", seq,
		"live", sum.Live,
	)
	return &target{store: st, summary: sum, replayer: rep, session: sess}, nil
}

// parsePosition parses "end", "" or a non-negative position.
func parsePosition(s string, end int64) (int64, error) {
	switch strings.TrimSpace(s) {
	case "":
		return 0, nil
	case "end":
		return end, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("position %q: want a number or \"end\"", s)
	}
	if n < 0 || n > end {
		return 0, fmt.Errorf("position %d outside recorded history [0, %d]", n, end)
	}
	return n, nil
}

// commandContext returns the command's context, or Background outside
// cobra's Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
