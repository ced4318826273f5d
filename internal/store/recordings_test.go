package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/testutil"
)

func TestWriteRecording_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := testutil.Record(t, testutil.FooProgram, "rec-foo").Recording

	require.NoError(t, s.WriteRecording(ctx, rec, false))

	got, sum, err := s.ReadRecording(ctx, "rec-foo")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, Summary{
		ID:     "rec-foo",
		Build:  rec.Build,
		Steps:  int64(len(rec.Steps)),
		Exited: true,
	}, sum)

	want, err := ir.RecordingDigest(rec)
	require.NoError(t, err)
	have, err := ir.RecordingDigest(got)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestWriteRecording_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := testutil.Record(t, testutil.FooProgram, "dup").Recording

	require.NoError(t, s.WriteRecording(ctx, rec, false))
	err := s.WriteRecording(ctx, rec, false)
	assert.ErrorIs(t, err, ErrExists)
}

func TestWriteRecording_LiveExited(t *testing.T) {
	s := createTestStore(t)
	rec := testutil.Record(t, testutil.FooProgram, "bad").Recording

	err := s.WriteRecording(context.Background(), rec, true)
	assert.ErrorContains(t, err, "cannot have exited")
}

func TestReadRecording_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.ReadRecording(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendStep_LiveRecording(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	full := testutil.Record(t, testutil.PointProgram, "live").Recording

	prefix := *full
	prefix.Steps = full.Steps[:10]
	require.NoError(t, s.WriteRecording(ctx, &prefix, true))

	live, err := s.ListRecordings(ctx, true)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.True(t, live[0].Live)
	assert.Equal(t, int64(10), live[0].Steps)

	for i, st := range full.Steps[10:] {
		seq, err := s.AppendStep(ctx, "live", st)
		require.NoError(t, err)
		assert.Equal(t, int64(10+i), seq)
	}
	require.NoError(t, s.MarkFinished(ctx, "live", full.Exited, full.ExitCode))

	got, sum, err := s.ReadRecording(ctx, "live")
	require.NoError(t, err)
	assert.False(t, sum.Live)
	assert.Equal(t, full.Steps, got.Steps)

	live, err = s.ListRecordings(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestAppendStep_NotLive(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := testutil.Record(t, testutil.FooProgram, "done").Recording
	require.NoError(t, s.WriteRecording(ctx, rec, false))

	_, err := s.AppendStep(ctx, "done", rec.Steps[0])
	assert.ErrorIs(t, err, ErrNotLive)

	err = s.MarkFinished(ctx, "done", true, 0)
	assert.ErrorIs(t, err, ErrNotLive)

	_, err = s.AppendStep(ctx, "missing", rec.Steps[0])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecordings_CreationOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	empty, err := s.ListRecordings(ctx, false)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	// IDs deliberately not in lexical order.
	for _, id := range []string{"zeta", "alpha", "mid"} {
		rec := testutil.Record(t, testutil.FooProgram, id).Recording
		require.NoError(t, s.WriteRecording(ctx, rec, false))
	}

	all, err := s.ListRecordings(ctx, false)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, sum := range all {
		ids[i] = sum.ID
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)
}

func TestMarshalWrites_Canonical(t *testing.T) {
	ws := []ir.Write{{Addr: 0x1100, Old: []byte{0, 0}, New: []byte{1, 2}}}

	a, err := marshalWrites(ws)
	require.NoError(t, err)
	b, err := marshalWrites(append([]ir.Write(nil), ws...))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	back, err := unmarshalWrites(a)
	require.NoError(t, err)
	assert.Equal(t, ws, back)

	none, err := marshalWrites(nil)
	require.NoError(t, err)
	back, err = unmarshalWrites(none)
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestUnmarshalWrites_SizeMismatch(t *testing.T) {
	data, err := marshalWrites([]ir.Write{{Addr: 0x10, Old: []byte{0}, New: []byte{1, 2}}})
	require.NoError(t, err)

	_, err = unmarshalWrites(data)
	assert.ErrorContains(t, err, "changes size")
}
