package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/reader"
)

var (
	mainCode = ir.CodeIdentity{Addr: 0x5000, Name: "main"}
	fooCode  = ir.CodeIdentity{Addr: 0x6000, Name: "foo"}
	lenCode  = ir.CodeIdentity{Addr: 0x7000, Name: "len"}
)

func frame(addr uint64, code ir.CodeIdentity, offset int) ir.Frame {
	return ir.Frame{Kind: ir.FrameBytecode, Addr: addr, Code: code, Offset: offset}
}

func native(code ir.CodeIdentity) ir.Frame {
	return ir.Frame{Kind: ir.FrameNative, Addr: code.Addr, Code: code, Offset: ir.NoOffset}
}

func state(chain ...ir.Frame) reader.State {
	st := reader.State{Chain: chain}
	if f, ok := st.InnermostBytecode(); ok && f.Started() {
		st.Instruction = &ir.Instruction{Offset: f.Offset, Name: "OP"}
	}
	return st
}

func fwd(from, to reader.State) Transition {
	return Transition{From: from, To: to, Direction: ir.Forward}
}

func back(from, to reader.State) Transition {
	return Transition{From: from, To: to, Direction: ir.Backward}
}

func TestInstructionBoundaryCrossed(t *testing.T) {
	main0 := frame(0x100, mainCode, 0)
	main2 := frame(0x100, mainCode, 2)
	mainUnstarted := frame(0x100, mainCode, ir.NoOffset)
	foo2 := frame(0x200, fooCode, 2)

	tests := []struct {
		name    string
		tr      Transition
		crossed bool
		offset  int
	}{
		{"offset advances", fwd(state(main0), state(main2)), true, 2},
		{"offset unchanged", fwd(state(main2), state(main2)), false, 0},
		{"first dispatch", fwd(state(mainUnstarted), state(main0)), true, 0},
		{"backward lands on later side", back(state(main2), state(main0)), true, 2},
		{"backward before first dispatch", back(state(main0), state(mainUnstarted)), true, 0},
		{"jump back", fwd(state(main2), state(main0)), true, 0},
		{"different frame", fwd(state(main0), state(foo2, main0)), false, 0},
		{"same frame new code", fwd(state(main0), state(frame(0x100, fooCode, 2))), false, 0},
		{"native call keeps bytecode frame", fwd(state(main2), state(native(lenCode), main2)), false, 0},
		{"empty chain", fwd(reader.State{}, state(main0)), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := InstructionBoundaryCrossed(tt.tr)
			assert.Equal(t, tt.crossed, ok)
			if tt.crossed {
				assert.Equal(t, tt.offset, in.Offset)
			}
		})
	}
}

func TestInstructionBoundaryCrossed_Symmetric(t *testing.T) {
	a := state(frame(0x100, mainCode, 4))
	b := state(frame(0x100, mainCode, 6))

	fin, fok := InstructionBoundaryCrossed(fwd(a, b))
	bin, bok := InstructionBoundaryCrossed(back(b, a))
	assert.True(t, fok)
	assert.True(t, bok)
	assert.Equal(t, fin, bin)
}

func TestCallEntered(t *testing.T) {
	main4 := frame(0x100, mainCode, 4)
	fooStart := frame(0x200, fooCode, ir.NoOffset)
	foo6 := frame(0x200, fooCode, 6)

	callee, ok := CallEntered(fwd(state(main4), state(fooStart, main4)))
	require.True(t, ok)
	assert.Equal(t, "foo", callee.Name())

	callee, ok = CallEntered(fwd(state(main4), state(native(lenCode), main4)))
	require.True(t, ok)
	assert.Equal(t, ir.FrameNative, callee.Kind)

	// Recursion: same code, new frame.
	callee, ok = CallEntered(fwd(state(foo6, main4), state(frame(0x300, fooCode, ir.NoOffset), foo6, main4)))
	require.True(t, ok)
	assert.Equal(t, uint64(0x300), callee.Addr)

	_, ok = CallEntered(fwd(state(fooStart, main4), state(main4)))
	assert.False(t, ok, "return is not a call forward")

	_, ok = CallEntered(fwd(state(main4), state(main4)))
	assert.False(t, ok)

	// Walking backward over a return enters the returning function.
	callee, ok = CallEntered(back(state(main4), state(foo6, main4)))
	require.True(t, ok)
	assert.Equal(t, "foo", callee.Name())
	assert.Equal(t, 6, callee.Offset)
}

func TestCallReturned(t *testing.T) {
	main4 := frame(0x100, mainCode, 4)
	foo6 := frame(0x200, fooCode, 6)

	caller, ok := CallReturned(fwd(state(foo6, main4), state(main4)))
	require.True(t, ok)
	assert.Equal(t, "main", caller.Name())

	_, ok = CallReturned(fwd(state(main4), state(foo6, main4)))
	assert.False(t, ok)

	_, ok = CallReturned(fwd(state(foo6, main4), reader.State{}))
	assert.False(t, ok)
}

func snap(obj ir.ObjectRef, kv ...any) *ir.AttributeSnapshot {
	s := &ir.AttributeSnapshot{Object: obj}
	for i := 0; i < len(kv); i += 2 {
		s.Entries = append(s.Entries, ir.AttributeEntry{Name: kv[i].(string), Value: uint64(kv[i+1].(int))})
	}
	return s
}

func TestAttributeChanged(t *testing.T) {
	before := reader.State{Attributes: snap(1, "x", 10, "y", 20)}
	after := reader.State{Attributes: snap(1, "x", 11, "z", 30)}

	want := []ir.AttributeChange{
		{Name: "x", Kind: ir.ChangeRebound, Before: 10, After: 11},
		{Name: "z", Kind: ir.ChangeAdded, After: 30},
		{Name: "y", Kind: ir.ChangeRemoved, Before: 20},
	}
	assert.Equal(t, want, AttributeChanged(fwd(before, after)))
	// Kinds are in execution time whichever way we walk.
	assert.Equal(t, want, AttributeChanged(back(after, before)))
}

func TestAttributeChanged_NoChange(t *testing.T) {
	s := reader.State{Attributes: snap(1, "x", 10)}
	assert.Nil(t, AttributeChanged(fwd(s, s)))
	assert.Nil(t, AttributeChanged(fwd(reader.State{}, s)))

	other := reader.State{Attributes: snap(2, "y", 10)}
	assert.Nil(t, AttributeChanged(fwd(s, other)))
}

func TestFilterChanges(t *testing.T) {
	changes := []ir.AttributeChange{
		{Name: "x", Kind: ir.ChangeRebound},
		{Name: "\ufb01le", Kind: ir.ChangeAdded},
	}
	assert.Equal(t, changes, FilterChanges(changes, ""))
	assert.Equal(t, changes[:1], FilterChanges(changes, "x"))
	assert.Equal(t, changes[1:], FilterChanges(changes, "file"))
	assert.Empty(t, FilterChanges(changes, "nope"))
}
