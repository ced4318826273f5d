package reader

import (
	"github.com/roach88/pyrewind/internal/ir"
)

// CurrentFrame returns the innermost interpreter (bytecode) frame.
func (r *Reader) CurrentFrame() (ir.Frame, error) {
	addr, err := r.symbolPtr(r.l.Symbols.CurrentFrame)
	if err != nil {
		return ir.Frame{}, err
	}
	if addr == 0 {
		return ir.Frame{}, ErrNoFrame
	}
	return r.frameAt(addr)
}

// FrameChain returns the call chain, innermost first. A native function
// being called is reported as a pseudo-frame ahead of the bytecode frame
// that called it.
func (r *Reader) FrameChain() ([]ir.Frame, error) {
	addr, err := r.symbolPtr(r.l.Symbols.CurrentFrame)
	if err != nil {
		return nil, err
	}
	if addr == 0 {
		return nil, ErrNoFrame
	}

	var chain []ir.Frame
	native, err := r.nativeFrame(addr)
	if err != nil {
		return nil, err
	}
	if native != nil {
		chain = append(chain, *native)
	}

	seen := make(map[uint64]bool)
	for addr != 0 {
		if seen[addr] || len(seen) >= maxChainDepth {
			return nil, unavailable("frame chain loops at 0x%x", addr)
		}
		seen[addr] = true
		f, err := r.frameAt(addr)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
		addr = f.Parent
	}
	return chain, nil
}

// frameAt decodes the frame object at addr. A frame whose code object is
// not set yet is unavailable.
func (r *Reader) frameAt(addr uint64) (ir.Frame, error) {
	fl := r.l.Frame
	code, err := r.readPtr(addr + fl.Code)
	if err != nil {
		return ir.Frame{}, err
	}
	if code == 0 {
		return ir.Frame{}, unavailable("frame 0x%x has no code object yet", addr)
	}
	back, err := r.readPtr(addr + fl.Back)
	if err != nil {
		return ir.Frame{}, err
	}
	lasti, err := r.readInt32(addr + fl.Lasti)
	if err != nil {
		return ir.Frame{}, err
	}
	// Globals and locals are informational; an unreadable pointer is
	// reported as absent.
	globals, _ := r.readPtr(addr + fl.Globals)
	locals, _ := r.readPtr(addr + fl.Locals)

	offset := ir.NoOffset
	if lasti >= 0 {
		offset = int(lasti) * r.l.Build.LastiScale
	}
	return ir.Frame{
		Kind:    ir.FrameBytecode,
		Addr:    addr,
		Code:    r.codeIdentity(code),
		Offset:  offset,
		Parent:  back,
		Locals:  locals,
		Globals: globals,
	}, nil
}

// codeIdentity reads a code object's metadata. Unreadable metadata degrades
// to the raw address.
func (r *Reader) codeIdentity(code uint64) ir.CodeIdentity {
	cl := r.l.Code
	id := ir.CodeIdentity{Addr: code}
	if p, err := r.readPtr(code + cl.Name); err == nil {
		id.Name, _ = r.readStr(p)
	}
	if p, err := r.readPtr(code + cl.Filename); err == nil {
		id.Filename, _ = r.readStr(p)
	}
	if line, err := r.readInt32(code + cl.FirstLine); err == nil && line > 0 {
		id.FirstLine = int(line)
	}
	return id
}

// nativeFrame returns the native function currently being called, if any.
func (r *Reader) nativeFrame(caller uint64) (*ir.Frame, error) {
	fn, err := r.symbolPtr(r.l.Symbols.NativeCall)
	if err != nil {
		return nil, err
	}
	if fn == 0 {
		return nil, nil
	}
	id := ir.CodeIdentity{Addr: fn}
	if def, err := r.readPtr(fn + r.l.CFunction.Def); err == nil && def != 0 {
		if name, err := r.readPtr(def + r.l.MethodDef.Name); err == nil {
			id.Name, _ = r.readCString(name)
		}
	}
	return &ir.Frame{
		Kind:   ir.FrameNative,
		Addr:   fn,
		Code:   id,
		Offset: ir.NoOffset,
		Parent: caller,
	}, nil
}
