package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
)

// Summary describes a stored recording without its timeline.
type Summary struct {
	ID       string `json:"id"`
	Build    string `json:"build"`
	Steps    int64  `json:"steps"`
	Exited   bool   `json:"exited"`
	ExitCode int    `json:"exit_code"`
	Live     bool   `json:"live"`
}

// ReadRecording loads a recording with all steps stored so far.
// For a live recording the returned Summary has Live set.
func (s *Store) ReadRecording(ctx context.Context, id string) (*ir.Recording, Summary, error) {
	var (
		sum       Summary
		initialPC int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, build, initial_pc, exited, exit_code, live, step_count
		FROM recordings
		WHERE id = ?
	`, id).Scan(&sum.ID, &sum.Build, &initialPC, &sum.Exited, &sum.ExitCode, &sum.Live, &sum.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Summary{}, fmt.Errorf("read recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, Summary{}, fmt.Errorf("read recording %s: %w", id, err)
	}

	rec := &ir.Recording{
		ID:        sum.ID,
		Build:     sum.Build,
		InitialPC: uint64(initialPC),
		Exited:    sum.Exited,
		ExitCode:  sum.ExitCode,
	}
	if rec.Symbols, err = s.readSymbols(ctx, id); err != nil {
		return nil, Summary{}, err
	}
	if rec.Segments, err = s.readSegments(ctx, id); err != nil {
		return nil, Summary{}, err
	}
	if rec.Steps, err = s.readSteps(ctx, id); err != nil {
		return nil, Summary{}, err
	}
	if int64(len(rec.Steps)) != sum.Steps {
		return nil, Summary{}, fmt.Errorf("read recording %s: %d steps stored, %d expected", id, len(rec.Steps), sum.Steps)
	}
	return rec, sum, nil
}

// ListRecordings returns stored recordings in creation order. With liveOnly
// set only recordings still accepting steps are listed.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListRecordings(ctx context.Context, liveOnly bool) ([]Summary, error) {
	query := `
		SELECT id, build, exited, exit_code, live, step_count
		FROM recordings
		ORDER BY created_seq ASC
	`
	if liveOnly {
		query = `
		SELECT id, build, exited, exit_code, live, step_count
		FROM recordings
		WHERE live = 1
		ORDER BY created_seq ASC
	`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Build, &sum.Exited, &sum.ExitCode, &sum.Live, &sum.Steps); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return out, nil
}

func (s *Store) readSymbols(ctx context.Context, id string) (map[string]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, addr FROM symbols
		WHERE recording_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	syms := map[string]uint64{}
	for rows.Next() {
		var (
			name string
			addr int64
		)
		if err := rows.Scan(&name, &addr); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		syms[name] = uint64(addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbols: %w", err)
	}
	return syms, nil
}

func (s *Store) readSegments(ctx context.Context, id string) ([]ir.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT addr, data FROM segments
		WHERE recording_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segs []ir.Segment
	for rows.Next() {
		var (
			addr int64
			data []byte
		)
		if err := rows.Scan(&addr, &data); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg, err := unmarshalSegment(data)
		if err != nil {
			return nil, err
		}
		if seg.Addr != uint64(addr) {
			return nil, fmt.Errorf("segment at 0x%x decodes to 0x%x", addr, seg.Addr)
		}
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return segs, nil
}

func (s *Store) readSteps(ctx context.Context, id string) ([]ir.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, pc, writes FROM steps
		WHERE recording_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []ir.Step{}
	for rows.Next() {
		var (
			seq  int64
			pc   int64
			data []byte
		)
		if err := rows.Scan(&seq, &pc, &data); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if seq != int64(len(steps)) {
			return nil, fmt.Errorf("step %d missing from recording %s", len(steps), id)
		}
		ws, err := unmarshalWrites(data)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", seq, err)
		}
		steps = append(steps, ir.Step{PC: uint64(pc), Writes: ws})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}
