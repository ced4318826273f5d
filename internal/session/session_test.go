package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pyrewind/internal/engine"
	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/reader"
	"github.com/roach88/pyrewind/internal/recorder"
	"github.com/roach88/pyrewind/internal/substrate"
	"github.com/roach88/pyrewind/internal/testutil"
)

type fixture struct {
	res *recorder.Result
	rep *substrate.Replayer
	s   *Session
}

func newFixture(t *testing.T, src string, opts ...recorder.Option) *fixture {
	t.Helper()
	res := testutil.Record(t, src, "session", opts...)
	rep, err := substrate.NewReplayer(res.Recording, substrate.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	s, err := Open(rep, testutil.Layout(t),
		WithLogger(testutil.DiscardLogger()),
		WithEngineOptions(engine.WithIDGenerator(testutil.NewFixedIDGenerator("nav"))),
	)
	require.NoError(t, err)
	return &fixture{res: res, rep: rep, s: s}
}

func (f *fixture) at(t *testing.T, q recorder.Query) int64 {
	t.Helper()
	lm, ok := f.res.Find(q)
	require.True(t, ok, "landmark %+v", q)
	require.NoError(t, f.rep.Seek(lm.Seq))
	return lm.Seq
}

func TestOpen_NoWarning(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)
	assert.Empty(t, f.s.Warning())
	assert.Equal(t, int64(0), f.s.Position().Seq)
}

func TestOpen_VersionMismatchWarns(t *testing.T) {
	f := newFixture(t, testutil.FooProgram, recorder.WithVersion("3.12.1"))
	assert.Contains(t, f.s.Warning(), "3.12.1")

	res, err := f.s.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeIntrospectionMismatch, res.Outcome)
	assert.Equal(t, 0, res.Steps)
}

func TestStepAndReverseStep(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)
	start := f.at(t, recorder.Dispatch("main", 0))
	ctx := context.Background()

	res, err := f.s.Step(ctx, "")
	require.NoError(t, err)
	require.True(t, res.Found())
	require.NotNil(t, res.Instruction)
	assert.Equal(t, 2, res.Instruction.Offset)
	assert.Equal(t, "CALL_FUNCTION", res.Instruction.Name)

	res, err = f.s.ReverseStep(ctx, "")
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, start, res.Position.Seq)
}

func TestAdvanceAndReverseAdvance(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)
	f.at(t, recorder.Dispatch("main", 0))
	ctx := context.Background()

	res, err := f.s.Advance(ctx, "foo")
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "foo", res.Function)

	call, ok := f.res.Find(recorder.Query{Kind: recorder.LandmarkCall, Function: "foo"})
	require.True(t, ok)
	assert.Equal(t, call.Seq, res.Position.Seq)

	require.NoError(t, f.rep.Seek(f.rep.End().Seq))
	res, err = f.s.ReverseAdvance(ctx, "foo")
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, "foo", res.Function)
}

func TestSelectObject(t *testing.T) {
	f := newFixture(t, testutil.PointProgram)
	f.at(t, recorder.Dispatch("main", 0))

	_, ok := f.s.Selected()
	assert.False(t, ok)

	sel, err := f.s.SelectObject("point")
	require.NoError(t, err)
	assert.Equal(t, "point", sel.Name)
	assert.Equal(t, reader.ScopeGlobal, sel.Scope)
	assert.Equal(t, "Point", sel.Type)
	assert.NotZero(t, sel.Object)

	got, ok := f.s.Selected()
	require.True(t, ok)
	assert.Equal(t, sel, got)

	f.s.ClearSelection()
	_, ok = f.s.Selected()
	assert.False(t, ok)
}

func TestSelectObject_Unknown(t *testing.T) {
	f := newFixture(t, testutil.PointProgram)
	f.at(t, recorder.Dispatch("main", 0))

	_, err := f.s.SelectObject("nothing")
	assert.ErrorIs(t, err, reader.ErrNotFound)
}

func TestSelectObject_NoFrame(t *testing.T) {
	f := newFixture(t, testutil.PointProgram)

	_, err := f.s.SelectObject("point")
	assert.ErrorIs(t, err, reader.ErrNoFrame)
}

func TestLastAttr_NoSelection(t *testing.T) {
	f := newFixture(t, testutil.PointProgram)

	_, _, err := f.s.LastAttr(context.Background(), AttrSearch{Direction: ir.Backward})
	assert.True(t, engine.IsRequestError(err, engine.ErrCodeNoObjectSelected))

	_, _, err = f.s.RepeatLastAttr(context.Background())
	assert.ErrorIs(t, err, ErrNoSearch)
}

func TestLastAttr_RepeatsForward(t *testing.T) {
	f := newFixture(t, testutil.PointProgram)
	f.at(t, recorder.Dispatch("main", 0))
	sel, err := f.s.SelectObject("point")
	require.NoError(t, err)
	ctx := context.Background()

	res, search, err := f.s.LastAttr(ctx, AttrSearch{Direction: ir.Forward})
	require.NoError(t, err)
	assert.Equal(t, sel.Object, search.Object)
	require.True(t, res.Found())
	assert.Equal(t, "x", res.Changes[0].Name)

	var names []string
	for {
		res, _, err = f.s.RepeatLastAttr(ctx)
		require.NoError(t, err)
		if !res.Found() {
			break
		}
		names = append(names, res.Changes[0].Name)
	}
	assert.Equal(t, []string{"z", "y"}, names)
	assert.Equal(t, ir.OutcomeTimelineBoundary, res.Outcome)
}

func TestLastAttr_DefaultsBackward(t *testing.T) {
	f := newFixture(t, testutil.PointProgram)
	f.at(t, recorder.Dispatch("main", 0))
	_, err := f.s.SelectObject("point")
	require.NoError(t, err)
	require.NoError(t, f.rep.Seek(f.rep.End().Seq))

	res, search, err := f.s.LastAttr(context.Background(), AttrSearch{Attribute: "x"})
	require.NoError(t, err)
	assert.Equal(t, ir.Backward, search.Direction)
	require.True(t, res.Found())
	assert.Equal(t, ir.ChangeRebound, res.Changes[0].Kind)
}

func TestWhere(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)

	loc, err := f.s.Where()
	require.NoError(t, err)
	assert.Empty(t, loc.Frames)
	assert.Nil(t, loc.Instruction)

	seq := f.at(t, recorder.Dispatch("foo", 0))
	loc, err = f.s.Where()
	require.NoError(t, err)
	assert.Equal(t, seq, loc.Position.Seq)
	require.Len(t, loc.Frames, 2)
	assert.Equal(t, "foo", loc.Frames[0].Name())
	assert.Equal(t, "main", loc.Frames[1].Name())
	require.NotNil(t, loc.Instruction)
	assert.Equal(t, "LOAD_FAST", loc.Instruction.Name)
}

func TestWhere_Unavailable(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)
	call, ok := f.res.Find(recorder.Query{Kind: recorder.LandmarkCall, Function: "main"})
	require.True(t, ok)
	// The frame is linked one step before it is initialized.
	require.NoError(t, f.rep.Seek(call.Seq-1))

	_, err := f.s.Where()
	assert.True(t, IsUnavailable(err))
}

func TestDisassemble(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)
	f.at(t, recorder.Dispatch("main", 2))

	l, err := f.s.Disassemble()
	require.NoError(t, err)
	assert.Equal(t, "main", l.Code.Name)
	require.Len(t, l.Instructions, 3)
	assert.Equal(t, "LOAD_CONST", l.Instructions[0].Name)
	assert.Equal(t, "CALL_FUNCTION", l.Instructions[1].Name)
	assert.Equal(t, "RETURN_VALUE", l.Instructions[2].Name)
	assert.Equal(t, 1, l.Current)
}

func TestDisassemble_NoFrame(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)

	_, err := f.s.Disassemble()
	assert.ErrorIs(t, err, reader.ErrNoFrame)
}

func TestResolveOpcode(t *testing.T) {
	f := newFixture(t, testutil.FooProgram)

	n, name, err := f.s.ResolveOpcode("return_value")
	require.NoError(t, err)
	assert.Equal(t, 83, n)
	assert.Equal(t, "RETURN_VALUE", name)

	_, _, err = f.s.ResolveOpcode("NOT_AN_OPCODE")
	assert.Error(t, err)
}
