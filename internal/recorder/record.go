package recorder

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/layout"
)

// DefaultMaxSteps bounds the number of elementary steps one recording may
// take, so a mistaken program cannot run away.
const DefaultMaxSteps = 1 << 22

const (
	maxCallDepth      = 200
	defaultCapacity   = 32
	localsCapacity    = 16
	frameLastiUnset   = -1
	defaultObjectType = "object"
)

// Result is a recording plus the landmarks observed while producing it.
type Result struct {
	Recording *ir.Recording
	Landmarks []Landmark
}

// Option configures Record.
type Option func(*options)

type options struct {
	id       string
	version  string
	maxSteps int
	logger   *slog.Logger
}

// WithID sets the recording ID. Default is a fresh UUIDv7.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithVersion overrides the interpreter version string stored in the target.
// Useful to produce a recording of a mismatching interpreter build.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithMaxSteps sets the elementary step ceiling.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type codeObject struct {
	fn      *Function
	addr    uint64
	opcodes []int
}

type frameSlot struct {
	addr   uint64
	locals *dictTable
}

// machine executes a program and records each elementary step.
type machine struct {
	h    *heap
	l    *layout.Layout
	prog *Program
	opts options

	types   map[string]uint64
	strs    map[string]uint64
	ints    map[int64]uint64
	none    uint64
	objects map[string]uint64
	dicts   map[string]*dictTable
	code    map[string]*codeObject
	natives map[string]uint64
	globals *dictTable

	free    []*frameSlot
	counter uint64
	depth   int

	steps     []ir.Step
	landmarks []Landmark
}

// Record executes prog against layout l and returns the recording.
func Record(prog *Program, l *layout.Layout, opts ...Option) (*Result, error) {
	o := options{version: l.Build.Version, maxSteps: DefaultMaxSteps, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.Must(uuid.NewV7()).String()
	}
	if err := validateProgram(prog); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}

	m := &machine{
		h:       newHeap(l),
		l:       l,
		prog:    prog,
		opts:    o,
		types:   make(map[string]uint64),
		strs:    make(map[string]uint64),
		ints:    make(map[int64]uint64),
		objects: make(map[string]uint64),
		dicts:   make(map[string]*dictTable),
		code:    make(map[string]*codeObject),
		natives: make(map[string]uint64),
	}
	if err := m.build(); err != nil {
		return nil, err
	}

	initial := m.h.img.Pages()
	segments := make([]ir.Segment, len(initial))
	for i, p := range initial {
		segments[i] = ir.Segment{Addr: p.Addr, Data: bytes.Clone(p.Data)}
	}

	exited, err := m.call(prog.Entry, 0)
	if err != nil {
		return nil, err
	}

	rec := &ir.Recording{
		ID:    o.id,
		Build: l.Build.Name,
		Symbols: map[string]uint64{
			l.Symbols.Version:      versionAddr,
			l.Symbols.CurrentFrame: frameCell,
			l.Symbols.NativeCall:   nativeCell,
			SymbolEvalFrame:        pcEvalEntry,
			SymbolDispatch:         pcDispatch,
		},
		InitialPC: pcEvalEntry,
		Segments:  segments,
		Steps:     m.steps,
		Exited:    exited,
	}
	o.logger.Debug("program recorded",
		"recording", rec.ID,
		"entry", prog.Entry,
		"steps", len(rec.Steps),
		"exited", rec.Exited,
	)
	return &Result{Recording: rec, Landmarks: m.landmarks}, nil
}

// build lays out the initial image: runtime cells, types, interned values,
// code objects, natives, objects and module globals.
func (m *machine) build() error {
	h := m.h
	h.img.MapRange(versionAddr, 0x200)
	h.put(versionAddr, append([]byte(m.opts.version), 0))

	// The type of "type" is itself.
	typeType := m.typeObject("type")
	h.putPtr(typeType+m.l.Object.Type, typeType)
	for _, name := range []string{"str", "int", "NoneType", "dict", "code", "bytes", "frame", "builtin_function_or_method"} {
		m.typeObject(name)
	}

	m.none = h.alloc(structSize(h.ptrSize(), m.l.Object.Type))
	h.header(m.none, m.types["NoneType"])

	m.internAll()

	for i := range m.prog.Functions {
		fn := &m.prog.Functions[i]
		co, err := m.codeObject(fn)
		if err != nil {
			return err
		}
		m.code[fn.Name] = co
	}
	for _, name := range m.prog.Natives {
		m.natives[name] = m.nativeFunction(name)
	}

	for _, o := range m.prog.Objects {
		class := o.Class
		if class == "" {
			class = defaultObjectType
		}
		typ, ok := m.types[class]
		if !ok {
			typ = m.typeObject(class)
		}
		addr := h.alloc(structSize(h.ptrSize(), m.l.Object.Type, m.l.Instance.Dict))
		h.header(addr, typ)
		capacity := o.Capacity
		if capacity == 0 {
			capacity = defaultCapacity
		}
		d := h.newDict(m.types["dict"], capacity)
		h.putPtr(addr+m.l.Instance.Dict, d.addr)
		m.objects[o.Name] = addr
		m.dicts[o.Name] = d
	}
	// Attributes may refer to any declared object, so they are filled in
	// after every object exists.
	for _, o := range m.prog.Objects {
		for _, a := range o.Attrs {
			if err := h.fill(m.dicts[o.Name], a.Name, m.strs[a.Name], m.value(a.Value)); err != nil {
				return fmt.Errorf("object %q: %w", o.Name, err)
			}
		}
	}

	size := 8
	for size*2/3 < len(m.prog.Objects)+len(m.prog.Natives) {
		size *= 2
	}
	m.globals = h.newDict(m.types["dict"], size)
	for _, o := range m.prog.Objects {
		if err := h.fill(m.globals, o.Name, m.strs[o.Name], m.objects[o.Name]); err != nil {
			return err
		}
	}
	for _, name := range m.prog.Natives {
		if err := h.fill(m.globals, name, m.strs[name], m.natives[name]); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) typeObject(name string) uint64 {
	h := m.h
	addr := h.alloc(structSize(h.ptrSize(), m.l.Object.Type, m.l.Type.Name))
	h.header(addr, m.types["type"])
	h.putPtr(addr+m.l.Type.Name, h.cstring(name))
	m.types[name] = addr
	return addr
}

// internAll allocates every string and small integer the program uses, so
// recording never allocates values.
func (m *machine) internAll() {
	add := func(s string) {
		if _, ok := m.strs[s]; !ok {
			m.strs[s] = m.strObject(s)
		}
	}
	addValue := func(v *Value) {
		if v == nil {
			return
		}
		switch v.Kind {
		case ValueStr:
			add(v.Str)
		case ValueInt:
			if _, ok := m.ints[v.Int]; !ok {
				addr := m.h.alloc(structSize(m.h.ptrSize(), m.l.Object.Type) + 8)
				m.h.header(addr, m.types["int"])
				m.ints[v.Int] = addr
			}
		}
	}
	for _, f := range m.prog.Functions {
		add(f.Name)
		add(functionFile(&f))
		for i := range f.Code {
			in := &f.Code[i]
			if in.Attr != "" {
				add(in.Attr)
			}
			if in.Var != "" {
				add(in.Var)
			}
			addValue(in.Value)
		}
	}
	for _, n := range m.prog.Natives {
		add(n)
	}
	for _, o := range m.prog.Objects {
		add(o.Name)
		for i := range o.Attrs {
			add(o.Attrs[i].Name)
			addValue(&o.Attrs[i].Value)
		}
	}
}

func functionFile(f *Function) string {
	if f.File != "" {
		return f.File
	}
	return "<program>"
}

func (m *machine) strObject(s string) uint64 {
	h, sl := m.h, m.l.Str
	addr := h.alloc(int(sl.Data) + len(s) + 1)
	h.header(addr, m.types["str"])
	h.putPtr(addr+sl.Length, uint64(len(s)))
	h.put(addr+sl.Data, append([]byte(s), 0))
	return addr
}

func (m *machine) codeObject(fn *Function) (*codeObject, error) {
	h, cl, bl := m.h, m.l.Code, m.l.Bytes
	co := &codeObject{fn: fn, opcodes: make([]int, len(fn.Code))}

	raw := make([]byte, 0, 2*len(fn.Code))
	for i, in := range fn.Code {
		op, err := m.l.OpcodeNumber(in.Op)
		if err != nil {
			return nil, fmt.Errorf("function %q offset %d: %w", fn.Name, 2*i, err)
		}
		co.opcodes[i] = op
		raw = append(raw, byte(op), byte(in.Arg))
	}

	bc := h.alloc(int(bl.Data) + len(raw) + 1)
	h.header(bc, m.types["bytes"])
	h.putPtr(bc+bl.Size, uint64(len(raw)))
	h.put(bc+bl.Data, raw)

	co.addr = h.alloc(structSize(h.ptrSize(), cl.FirstLine, cl.Bytecode, cl.Filename, cl.Name))
	h.header(co.addr, m.types["code"])
	h.putInt32(co.addr+cl.FirstLine, int32(fn.Line))
	h.putPtr(co.addr+cl.Bytecode, bc)
	h.putPtr(co.addr+cl.Filename, m.strs[functionFile(fn)])
	h.putPtr(co.addr+cl.Name, m.strs[fn.Name])
	return co, nil
}

func (m *machine) nativeFunction(name string) uint64 {
	h := m.h
	def := h.alloc(structSize(h.ptrSize(), m.l.MethodDef.Name) + 3*h.ptrSize())
	h.putPtr(def+m.l.MethodDef.Name, h.cstring(name))

	fn := h.alloc(structSize(h.ptrSize(), m.l.Object.Type, m.l.CFunction.Def))
	h.header(fn, m.types["builtin_function_or_method"])
	h.putPtr(fn+m.l.CFunction.Def, def)
	return fn
}

func (m *machine) value(v Value) uint64 {
	switch v.Kind {
	case ValueInt:
		return m.ints[v.Int]
	case ValueStr:
		return m.strs[v.Str]
	case ValueRef:
		return m.objects[v.Str]
	default:
		return m.none
	}
}

// write is one pending memory write of a step.
type write struct {
	addr uint64
	data []byte
}

func (m *machine) ptr(addr, v uint64) write {
	return write{addr: addr, data: encodeUint(v, m.h.ptrSize())}
}

func (m *machine) int32(addr uint64, v int32) write {
	return write{addr: addr, data: encodeUint(uint64(uint32(v)), 4)}
}

// step records one elementary step: it applies the writes to the image and
// keeps the overwritten bytes for reverse execution.
func (m *machine) step(pc uint64, writes ...write) error {
	if len(m.steps) >= m.opts.maxSteps {
		return fmt.Errorf("recording exceeded %d elementary steps", m.opts.maxSteps)
	}
	st := ir.Step{PC: pc, Writes: make([]ir.Write, 0, len(writes))}
	for _, w := range writes {
		m.h.img.MapRange(w.addr, len(w.data))
		old, err := m.h.img.Read(w.addr, len(w.data))
		if err != nil {
			return err
		}
		if err := m.h.img.Write(w.addr, w.data); err != nil {
			return err
		}
		st.Writes = append(st.Writes, ir.Write{Addr: w.addr, Old: old, New: bytes.Clone(w.data)})
	}
	m.steps = append(m.steps, st)
	return nil
}

func (m *machine) seq() int64 {
	return int64(len(m.steps))
}

func (m *machine) mark(lm Landmark) {
	lm.Seq = m.seq()
	lm.Depth = m.depth
	m.landmarks = append(m.landmarks, lm)
}

// allocFrame returns a frame slot, reusing a freed one first like the
// interpreter's frame free list does. The writes initialize a fresh slot's
// locals table, or empty a reused one.
func (m *machine) allocFrame() (*frameSlot, []write) {
	if n := len(m.free); n > 0 {
		slot := m.free[n-1]
		m.free = m.free[:n-1]
		return slot, m.resetDict(slot.locals)
	}
	fl := m.l.Frame
	addr := m.h.alloc(structSize(m.h.ptrSize(), m.l.Object.Type, fl.Back, fl.Code, fl.Globals, fl.Locals, fl.Lasti))
	locals := m.h.reserveDict(localsCapacity)
	return &frameSlot{addr: addr, locals: locals}, m.h.dictInit(locals, m.types["dict"])
}

// call records the frame prologue, runs fn and records the epilogue.
// The frame is transiently inconsistent between linking it into the thread
// state and setting its code object.
func (m *machine) call(name string, back uint64) (bool, error) {
	co := m.code[name]
	if m.depth >= maxCallDepth {
		return false, fmt.Errorf("call to %q exceeds depth %d", name, maxCallDepth)
	}
	fl := m.l.Frame
	slot, setup := m.allocFrame()

	prologue := []write{
		m.ptr(slot.addr, 1),
		m.ptr(slot.addr+m.l.Object.Type, m.types["frame"]),
		m.ptr(slot.addr+fl.Back, back),
		m.ptr(slot.addr+fl.Code, 0),
		m.ptr(slot.addr+fl.Globals, m.globals.addr),
		m.ptr(slot.addr+fl.Locals, slot.locals.addr),
		m.int32(slot.addr+fl.Lasti, frameLastiUnset),
	}
	prologue = append(prologue, setup...)
	if err := m.step(pcFrameAlloc, prologue...); err != nil {
		return false, err
	}
	if err := m.step(pcFrameLink, m.ptr(frameCell, slot.addr)); err != nil {
		return false, err
	}
	m.depth++
	if err := m.step(pcFrameInit, m.ptr(slot.addr+fl.Code, co.addr)); err != nil {
		return false, err
	}
	m.mark(Landmark{Kind: LandmarkCall, Function: name})

	exited, err := m.run(co, slot)
	if err != nil {
		return false, err
	}

	if err := m.step(pcFrameUnlink, m.ptr(frameCell, back)); err != nil {
		return false, err
	}
	m.depth--
	m.mark(Landmark{Kind: LandmarkReturn, Function: name})
	m.free = append(m.free, slot)
	return exited, nil
}

// resetDict empties a reused locals table.
func (m *machine) resetDict(d *dictTable) []write {
	if len(d.entries) == 0 {
		return nil
	}
	kl := m.l.DictKeys
	var ws []write
	for i := range d.entries {
		e := m.h.entryAddr(d, i)
		ws = append(ws, m.ptr(e+kl.EntryHash, 0), m.ptr(e+kl.EntryKey, 0), m.ptr(e+kl.EntryValue, 0))
	}
	ws = append(ws, m.ptr(d.keys+kl.Nentries, 0), m.ptr(d.addr+m.l.Dict.Used, 0))
	d.entries = nil
	d.used = 0
	return ws
}

// run executes a code object's instructions in the given frame until its
// RETURN_VALUE. It reports whether that return was the process exit.
func (m *machine) run(co *codeObject, slot *frameSlot) (bool, error) {
	fn := co.fn
	taken := make(map[int]int)
	scale := m.l.Build.LastiScale

	for idx := 0; idx < len(fn.Code); {
		in := &fn.Code[idx]
		op := co.opcodes[idx]
		opName := m.l.OpcodeName(op)
		offset := 2 * idx

		if err := m.step(pcDispatch, m.int32(slot.addr+m.l.Frame.Lasti, int32(offset/scale))); err != nil {
			return false, err
		}
		m.mark(Landmark{Kind: LandmarkDispatch, Function: fn.Name, Offset: offset, Opcode: opName})

		m.counter++
		if err := m.step(pcExecBase+uint64(op)*16, m.ptr(scratchCell, m.counter)); err != nil {
			return false, err
		}

		switch {
		case opName == "RETURN_VALUE":
			return in.Exit, nil
		case opName == "STORE_ATTR":
			if err := m.storeAttr(m.dicts[in.Object], in.Attr, m.value(*in.Value)); err != nil {
				return false, fmt.Errorf("function %q offset %d: %w", fn.Name, offset, err)
			}
			m.mark(Landmark{Kind: LandmarkSetAttr, Function: fn.Name, Offset: offset, Object: in.Object, Attr: in.Attr})
		case opName == "DELETE_ATTR":
			if err := m.deleteAttr(m.dicts[in.Object], in.Attr); err != nil {
				return false, fmt.Errorf("function %q offset %d: %w", fn.Name, offset, err)
			}
			m.mark(Landmark{Kind: LandmarkDelAttr, Function: fn.Name, Offset: offset, Object: in.Object, Attr: in.Attr})
		case in.Var != "":
			if err := m.storeAttr(slot.locals, in.Var, m.value(*in.Value)); err != nil {
				return false, fmt.Errorf("function %q offset %d: %w", fn.Name, offset, err)
			}
		case in.Call != "":
			if err := m.invoke(in.Call, slot.addr); err != nil {
				return false, err
			}
		}

		if in.Jump != nil {
			limit := in.Times
			if limit == 0 {
				limit = 1
			}
			if taken[idx] < limit {
				taken[idx]++
				idx = *in.Jump / 2
				continue
			}
		}
		idx++
	}
	return false, fmt.Errorf("function %q: fell off the end of its code", fn.Name)
}

func (m *machine) invoke(callee string, caller uint64) error {
	if fn, ok := m.natives[callee]; ok {
		if err := m.step(pcNativeEnter, m.ptr(nativeCell, fn)); err != nil {
			return err
		}
		m.mark(Landmark{Kind: LandmarkNativeCall, Function: callee})
		m.counter++
		if err := m.step(pcNativeBody, m.ptr(scratchCell, m.counter)); err != nil {
			return err
		}
		if err := m.step(pcNativeReturn, m.ptr(nativeCell, 0)); err != nil {
			return err
		}
		m.mark(Landmark{Kind: LandmarkNativeReturn, Function: callee})
		return nil
	}
	_, err := m.call(callee, caller)
	return err
}

// storeAttr binds name in d. A new key takes two steps: the entry is written
// first and becomes visible when the entry count is bumped.
func (m *machine) storeAttr(d *dictTable, name string, value uint64) error {
	kl := m.l.DictKeys
	if i := d.find(name); i >= 0 {
		d.entries[i].value = value
		return m.step(pcAttrCommit, m.ptr(m.h.entryAddr(d, i)+kl.EntryValue, value))
	}
	i := len(d.entries)
	if i >= d.usable() {
		return fmt.Errorf("attribute table full storing %q (raise capacity)", name)
	}
	key := m.strs[name]
	e := m.h.entryAddr(d, i)
	if err := m.step(pcAttrEntry,
		m.ptr(e+kl.EntryHash, nameHash(name)),
		m.ptr(e+kl.EntryKey, key),
		m.ptr(e+kl.EntryValue, value),
	); err != nil {
		return err
	}
	d.entries = append(d.entries, dictEntry{name: name, key: key, value: value, live: true})
	d.used++
	return m.step(pcAttrCommit,
		m.ptr(d.keys+kl.Nentries, uint64(len(d.entries))),
		m.ptr(d.addr+m.l.Dict.Used, uint64(d.used)),
	)
}

// deleteAttr clears the entry in place; the slot is not reused.
func (m *machine) deleteAttr(d *dictTable, name string) error {
	i := d.find(name)
	if i < 0 {
		return fmt.Errorf("AttributeError: no attribute %q", name)
	}
	kl := m.l.DictKeys
	e := m.h.entryAddr(d, i)
	d.entries[i].live = false
	d.used--
	return m.step(pcAttrCommit,
		m.ptr(e+kl.EntryKey, 0),
		m.ptr(e+kl.EntryValue, 0),
		m.ptr(d.addr+m.l.Dict.Used, uint64(d.used)),
	)
}
