package reader

import (
	"github.com/roach88/pyrewind/internal/ir"
)

// CurrentInstruction decodes the instruction at the frame's current offset.
func (r *Reader) CurrentInstruction(f ir.Frame) (ir.Instruction, error) {
	if f.Kind != ir.FrameBytecode {
		return ir.Instruction{}, unavailable("native frame %s has no bytecode", f.Name())
	}
	if !f.Started() {
		return ir.Instruction{}, unavailable("frame %s has not started", f.Name())
	}
	code, err := r.bytecode(f.Code.Addr)
	if err != nil {
		return ir.Instruction{}, err
	}
	if f.Offset+1 >= len(code) {
		return ir.Instruction{}, unavailable("offset %d outside code of %s (%d bytes)", f.Offset, f.Name(), len(code))
	}
	return r.decode(code, f.Offset), nil
}

// Instructions decodes every instruction of a code object.
func (r *Reader) Instructions(code uint64) ([]ir.Instruction, error) {
	raw, err := r.bytecode(code)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Instruction, 0, len(raw)/2)
	for off := 0; off+1 < len(raw); off += 2 {
		out = append(out, r.decode(raw, off))
	}
	return out, nil
}

func (r *Reader) decode(raw []byte, off int) ir.Instruction {
	op := int(raw[off])
	return ir.Instruction{
		Offset: off,
		Opcode: op,
		Name:   r.l.OpcodeName(op),
		Arg:    int(raw[off+1]),
	}
}

// bytecode reads the raw instruction bytes of a code object.
func (r *Reader) bytecode(code uint64) ([]byte, error) {
	bl := r.l.Bytes
	obj, err := r.readPtr(code + r.l.Code.Bytecode)
	if err != nil {
		return nil, err
	}
	if obj == 0 {
		return nil, unavailable("code 0x%x has no bytecode", code)
	}
	n, err := r.readPtr(obj + bl.Size)
	if err != nil {
		return nil, err
	}
	if n > maxCodeSize {
		return nil, unavailable("code 0x%x has implausible size %d", code, n)
	}
	raw, err := r.mem.Read(obj+bl.Data, int(n))
	if err != nil {
		return nil, unavailable("read bytecode 0x%x: %v", obj, err)
	}
	return raw, nil
}
