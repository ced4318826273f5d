package reader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/recorder"
	"github.com/roach88/pyrewind/internal/substrate"
)

const appProgram = `
entry: main
objects:
  - name: point
    class: Point
    attrs: {x: 1, y: 2}
natives: [len]
functions:
  - name: main
    file: app.py
    line: 1
    code:
      - {op: STORE_FAST, arg: 0, var: total, value: 7}
      - {op: STORE_ATTR, arg: 0, object: point, attr: z, value: 3}
      - {op: CALL_FUNCTION, arg: 0, call: len}
      - {op: CALL_FUNCTION, arg: 0, call: helper}
      - {op: RETURN_VALUE, exit: true}
  - name: helper
    file: app.py
    line: 20
    code:
      - {op: LOAD_CONST, arg: 0}
      - {op: RETURN_VALUE}
`

type fixture struct {
	res *recorder.Result
	rep *substrate.Replayer
	r   *Reader
}

func newFixture(t *testing.T, opts ...recorder.Option) *fixture {
	t.Helper()
	prog, err := recorder.ParseProgram([]byte(appProgram))
	require.NoError(t, err)
	l, err := layout.Default()
	require.NoError(t, err)
	res, err := recorder.Record(prog, l, append([]recorder.Option{recorder.WithID("reader-test")}, opts...)...)
	require.NoError(t, err)
	rep, err := substrate.NewReplayer(res.Recording)
	require.NoError(t, err)
	return &fixture{res: res, rep: rep, r: New(rep.Memory(), l)}
}

func (f *fixture) seek(t *testing.T, q recorder.Query) recorder.Landmark {
	t.Helper()
	lm, ok := f.res.Find(q)
	require.True(t, ok, "landmark %+v", q)
	require.NoError(t, f.rep.Seek(lm.Seq))
	return lm
}

func (f *fixture) point(t *testing.T) ir.ObjectRef {
	t.Helper()
	f.seek(t, recorder.Dispatch("main", 0))
	ref, scope, err := f.r.LookupVariable("point")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, scope)
	return ref
}

func TestVerify_Matches(t *testing.T) {
	f := newFixture(t)
	version, err := f.r.Verify()
	require.NoError(t, err)
	assert.Equal(t, "3.10.12", version)
}

func TestVerify_VersionMismatch(t *testing.T) {
	f := newFixture(t, recorder.WithVersion("3.11.4"))
	version, err := f.r.Verify()
	require.Error(t, err)
	assert.True(t, IsMismatch(err))
	assert.Equal(t, "3.11.4", version)

	var me *MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "3.10", me.Expected)
}

type hiddenSymbol struct {
	substrate.Memory
	name string
}

func (h hiddenSymbol) Symbol(name string) (uint64, bool) {
	if name == h.name {
		return 0, false
	}
	return h.Memory.Symbol(name)
}

func TestVerify_MissingSymbol(t *testing.T) {
	f := newFixture(t)
	r := New(hiddenSymbol{Memory: f.rep.Memory(), name: f.r.Layout().Symbols.NativeCall}, f.r.Layout())
	_, err := r.Verify()
	require.Error(t, err)
	assert.True(t, IsMismatch(err))
	assert.Contains(t, err.Error(), "missing symbol")

	f.seek(t, recorder.Dispatch("main", 0))
	_, err = r.FrameChain()
	assert.True(t, IsMismatch(err))
}

func TestCurrentFrame_NoFrameAtStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.r.CurrentFrame()
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.ErrorIs(t, err, ErrStateUnavailable)
	assert.True(t, IsTransient(err))
}

func TestCurrentFrame_UnavailableWhileLinking(t *testing.T) {
	f := newFixture(t)
	call := f.seek(t, recorder.Query{Kind: recorder.LandmarkCall, Function: "main"})

	// Linked into the thread state but code not set yet.
	require.NoError(t, f.rep.Seek(call.Seq-1))
	_, err := f.r.CurrentFrame()
	assert.ErrorIs(t, err, ErrStateUnavailable)
	assert.NotErrorIs(t, err, ErrNoFrame)
}

func TestCurrentFrame_BeforeFirstInstruction(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Query{Kind: recorder.LandmarkCall, Function: "main"})

	fr, err := f.r.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, ir.FrameBytecode, fr.Kind)
	assert.Equal(t, "main", fr.Name())
	assert.Equal(t, "app.py", fr.Code.Filename)
	assert.Equal(t, 1, fr.Code.FirstLine)
	assert.Equal(t, ir.NoOffset, fr.Offset)
	assert.False(t, fr.Started())
	assert.Zero(t, fr.Parent)
	assert.NotZero(t, fr.Globals)
	assert.NotZero(t, fr.Locals)
}

func TestFrameChain_NestedCall(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Dispatch("helper", 0))

	chain, err := f.r.FrameChain()
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "helper", chain[0].Name())
	assert.Equal(t, 0, chain[0].Offset)
	assert.Equal(t, 20, chain[0].Code.FirstLine)
	assert.Equal(t, "main", chain[1].Name())
	assert.Equal(t, 6, chain[1].Offset)
	assert.Equal(t, chain[1].Addr, chain[0].Parent)
}

func TestFrameChain_NativeCall(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Query{Kind: recorder.LandmarkNativeCall, Function: "len"})

	chain, err := f.r.FrameChain()
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, ir.FrameNative, chain[0].Kind)
	assert.Equal(t, "len", chain[0].Name())
	assert.Equal(t, ir.NoOffset, chain[0].Offset)
	assert.Equal(t, "main", chain[1].Name())
	assert.Equal(t, chain[1].Addr, chain[0].Parent)

	// CurrentFrame still reports the interpreter frame.
	fr, err := f.r.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, "main", fr.Name())

	_, err = f.r.CurrentInstruction(chain[0])
	assert.ErrorIs(t, err, ErrStateUnavailable)
}

func TestCurrentInstruction(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Dispatch("main", 2))

	fr, err := f.r.CurrentFrame()
	require.NoError(t, err)
	in, err := f.r.CurrentInstruction(fr)
	require.NoError(t, err)
	assert.Equal(t, 2, in.Offset)
	assert.Equal(t, "STORE_ATTR", in.Name)
	assert.Equal(t, 95, in.Opcode)
	assert.Equal(t, 0, in.Arg)
}

func TestCurrentInstruction_NotStarted(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Query{Kind: recorder.LandmarkCall, Function: "helper"})
	fr, err := f.r.CurrentFrame()
	require.NoError(t, err)
	_, err = f.r.CurrentInstruction(fr)
	assert.ErrorIs(t, err, ErrStateUnavailable)
}

func TestInstructions(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Dispatch("main", 0))
	fr, err := f.r.CurrentFrame()
	require.NoError(t, err)

	ins, err := f.r.Instructions(fr.Code.Addr)
	require.NoError(t, err)
	var names []string
	for _, in := range ins {
		names = append(names, in.Name)
	}
	assert.Equal(t, []string{"STORE_FAST", "STORE_ATTR", "CALL_FUNCTION", "CALL_FUNCTION", "RETURN_VALUE"}, names)
	assert.Equal(t, 8, ins[4].Offset)
}

func TestAttributesOf(t *testing.T) {
	f := newFixture(t)
	point := f.point(t)

	snap, err := f.r.AttributesOf(point)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, snap.Names())
	assert.Equal(t, point, snap.Object)

	set := f.seek(t, recorder.Query{Kind: recorder.LandmarkSetAttr, Attr: "z"})

	// The entry is written one step before the count makes it visible.
	require.NoError(t, f.rep.Seek(set.Seq-1))
	snap, err = f.r.AttributesOf(point)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, snap.Names())

	require.NoError(t, f.rep.Seek(set.Seq))
	snap, err = f.r.AttributesOf(point)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, snap.Names())
	_, ok := snap.Lookup("z")
	assert.True(t, ok)
}

func TestAttributesOf_NullObject(t *testing.T) {
	f := newFixture(t)
	_, err := f.r.AttributesOf(0)
	assert.ErrorIs(t, err, ErrStateUnavailable)
}

func TestTypeName(t *testing.T) {
	f := newFixture(t)
	point := f.point(t)
	name, err := f.r.TypeName(point)
	require.NoError(t, err)
	assert.Equal(t, "Point", name)
}

func TestLookupVariable(t *testing.T) {
	f := newFixture(t)

	f.seek(t, recorder.Dispatch("main", 0))
	_, _, err := f.r.LookupVariable("total")
	assert.ErrorIs(t, err, ErrNotFound)

	f.seek(t, recorder.Dispatch("main", 2))
	ref, scope, err := f.r.LookupVariable("total")
	require.NoError(t, err)
	assert.Equal(t, ScopeLocal, scope)
	assert.NotZero(t, ref)

	_, scope, err = f.r.LookupVariable(" len ")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, scope)
}

type failingReads struct {
	substrate.Memory
	addr uint64
}

func (m failingReads) Read(addr uint64, n int) ([]byte, error) {
	if addr == m.addr {
		return nil, substrate.ErrUnmapped
	}
	return m.Memory.Read(addr, n)
}

func TestCurrentFrame_DegradesToRawAddress(t *testing.T) {
	f := newFixture(t)
	f.seek(t, recorder.Dispatch("helper", 0))
	fr, err := f.r.CurrentFrame()
	require.NoError(t, err)

	l := f.r.Layout()
	raw, err := f.rep.Memory().Read(fr.Code.Addr+l.Code.Name, l.Build.PointerSize)
	require.NoError(t, err)
	nameObj, err := substrate.DecodeUint(raw)
	require.NoError(t, err)

	r := New(failingReads{Memory: f.rep.Memory(), addr: nameObj + l.Str.Length}, l)
	fr, err = r.CurrentFrame()
	require.NoError(t, err)
	assert.Empty(t, fr.Code.Name)
	assert.Contains(t, fr.Name(), "<code 0x")
	assert.Equal(t, "app.py", fr.Code.Filename)
}

func TestCapture(t *testing.T) {
	f := newFixture(t)
	point := f.point(t)
	f.seek(t, recorder.Dispatch("helper", 0))

	st, err := f.r.Capture(Request{Frames: true, Object: &point})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Depth())
	require.NotNil(t, st.Instruction)
	assert.Equal(t, "LOAD_CONST", st.Instruction.Name)
	require.NotNil(t, st.Attributes)
	assert.Equal(t, 3, st.Attributes.Len())

	inner, ok := st.InnermostBytecode()
	require.True(t, ok)
	assert.Equal(t, "helper", inner.Name())

	st, err = f.r.Capture(Request{Object: &point})
	require.NoError(t, err)
	assert.Nil(t, st.Chain)
	assert.Nil(t, st.Instruction)
	assert.NotNil(t, st.Attributes)
}

func TestCapture_Unavailable(t *testing.T) {
	f := newFixture(t)

	// No frame yet: consistent, with an empty chain.
	st, err := f.r.Capture(Request{Frames: true})
	require.NoError(t, err)
	assert.Equal(t, 0, st.Depth())
	assert.Nil(t, st.Instruction)

	call := f.seek(t, recorder.Query{Kind: recorder.LandmarkCall, Function: "main"})
	require.NoError(t, f.rep.Seek(call.Seq-1))
	_, err = f.r.Capture(Request{Frames: true})
	assert.ErrorIs(t, err, ErrStateUnavailable)

	// Attributes alone are readable before any frame exists.
	point := f.point(t)
	require.NoError(t, f.rep.Seek(0))
	st, err = f.r.Capture(Request{Object: &point})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Attributes.Len())
}
