package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
)

var (
	// ErrNotFound is returned when no recording has the requested ID.
	ErrNotFound = errors.New("recording not found")
	// ErrExists is returned when writing a recording whose ID is taken.
	ErrExists = errors.New("recording already exists")
	// ErrNotLive is returned when appending to or finishing a recording that
	// is not accepting steps.
	ErrNotLive = errors.New("recording is not live")
)

// WriteRecording stores rec with its symbols, initial image and steps.
//
// If live is true the recording stays open for AppendStep until MarkFinished;
// a live recording cannot have exited.
func (s *Store) WriteRecording(ctx context.Context, rec *ir.Recording, live bool) error {
	if rec.ID == "" {
		return fmt.Errorf("write recording: empty id")
	}
	if live && rec.Exited {
		return fmt.Errorf("write recording %s: a live recording cannot have exited", rec.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write recording: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings WHERE id = ?`, rec.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("write recording %s: %w", rec.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("write recording %s: %w", rec.ID, ErrExists)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recordings
		(id, build, initial_pc, exited, exit_code, live, step_count, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM recordings))
	`,
		rec.ID,
		rec.Build,
		int64(rec.InitialPC),
		rec.Exited,
		rec.ExitCode,
		live,
		len(rec.Steps),
	)
	if err != nil {
		return fmt.Errorf("write recording %s: %w", rec.ID, err)
	}

	for name, addr := range rec.Symbols {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO symbols (recording_id, name, addr) VALUES (?, ?, ?)`,
			rec.ID, name, int64(addr)); err != nil {
			return fmt.Errorf("write symbol %s: %w", name, err)
		}
	}

	for i, seg := range rec.Segments {
		data, err := marshalSegment(seg)
		if err != nil {
			return fmt.Errorf("write recording %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments (recording_id, idx, addr, data) VALUES (?, ?, ?, ?)`,
			rec.ID, i, int64(seg.Addr), data); err != nil {
			return fmt.Errorf("write segment %d: %w", i, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO steps (recording_id, seq, pc, writes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("write recording %s: prepare steps: %w", rec.ID, err)
	}
	defer stmt.Close()
	for i, st := range rec.Steps {
		if err := insertStep(ctx, stmt, rec.ID, int64(i), st); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write recording %s: commit: %w", rec.ID, err)
	}
	return nil
}

// AppendStep adds the next step of a live recording and returns its
// sequence number.
func (s *Store) AppendStep(ctx context.Context, id string, st ir.Step) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append step: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := liveStepCount(ctx, tx, id)
	if err != nil {
		return 0, fmt.Errorf("append step: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO steps (recording_id, seq, pc, writes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("append step: %w", err)
	}
	defer stmt.Close()
	if err := insertStep(ctx, stmt, id, seq, st); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE recordings SET step_count = step_count + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("append step: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append step: commit: %w", err)
	}
	return seq, nil
}

// MarkFinished closes a live recording. If exited is true the process
// exited after the last appended step.
func (s *Store) MarkFinished(ctx context.Context, id string, exited bool, code int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark finished: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := liveStepCount(ctx, tx, id); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE recordings SET live = 0, exited = ?, exit_code = ? WHERE id = ?`,
		exited, code, id); err != nil {
		return fmt.Errorf("mark finished %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark finished: commit: %w", err)
	}
	return nil
}

// liveStepCount returns the step count of a live recording.
func liveStepCount(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	var (
		count int64
		live  bool
	)
	err := tx.QueryRowContext(ctx,
		`SELECT step_count, live FROM recordings WHERE id = ?`, id).Scan(&count, &live)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("recording %s: %w", id, err)
	}
	if !live {
		return 0, fmt.Errorf("recording %s: %w", id, ErrNotLive)
	}
	return count, nil
}

func insertStep(ctx context.Context, stmt *sql.Stmt, id string, seq int64, st ir.Step) error {
	data, err := marshalWrites(st.Writes)
	if err != nil {
		return fmt.Errorf("write step %d: %w", seq, err)
	}
	if _, err := stmt.ExecContext(ctx, id, seq, int64(st.PC), data); err != nil {
		return fmt.Errorf("write step %d: %w", seq, err)
	}
	return nil
}
