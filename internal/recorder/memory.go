package recorder

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/substrate"
)

// Fixed addresses of the synthetic runtime.
const (
	versionAddr = 0x1000
	frameCell   = 0x1100 // thread state: current frame
	nativeCell  = 0x1108 // thread state: native function being called
	scratchCell = 0x1110 // eval loop register, bumped by every execute step
	heapBase    = 0x100000
	allocAlign  = 16
)

// Program counters of the eval loop's elementary steps.
const (
	pcEvalEntry    = 0x400000
	pcDispatch     = 0x401000
	pcExecBase     = 0x402000 // + opcode*16
	pcAttrEntry    = 0x403000
	pcAttrCommit   = 0x403010
	pcFrameAlloc   = 0x404000
	pcFrameLink    = 0x404010
	pcFrameInit    = 0x404020
	pcFrameUnlink  = 0x405000
	pcNativeEnter  = 0x406000
	pcNativeBody   = 0x406010
	pcNativeReturn = 0x406020
)

// Symbol names for eval loop locations, resolvable like any other symbol.
const (
	SymbolEvalFrame = "_PyEval_EvalFrameDefault"
	SymbolDispatch  = "_PyEval_EvalFrameDefault.dispatch_opcode"
)

// heap builds interpreter objects according to the layout. Before recording
// starts it writes directly into the image; during recording all writes go
// through the machine so they are captured as steps.
type heap struct {
	img  *substrate.Image
	l    *layout.Layout
	next uint64
}

func newHeap(l *layout.Layout) *heap {
	return &heap{img: substrate.NewImage(), l: l, next: heapBase}
}

func (h *heap) ptrSize() int {
	return h.l.Build.PointerSize
}

// alloc reserves n zeroed bytes.
func (h *heap) alloc(n int) uint64 {
	addr := h.next
	size := uint64(n+allocAlign-1) &^ (allocAlign - 1)
	if size == 0 {
		size = allocAlign
	}
	h.next += size
	h.img.MapRange(addr, n)
	return addr
}

func (h *heap) put(addr uint64, data []byte) {
	if err := h.img.Write(addr, data); err != nil {
		panic(fmt.Sprintf("heap write 0x%x: %v", addr, err))
	}
}

func (h *heap) putPtr(addr, v uint64) {
	h.put(addr, encodeUint(v, h.ptrSize()))
}

func (h *heap) putInt32(addr uint64, v int32) {
	h.put(addr, encodeUint(uint64(uint32(v)), 4))
}

// header writes the object header (refcount 1, type pointer).
func (h *heap) header(addr, typ uint64) {
	h.putPtr(addr, 1)
	h.putPtr(addr+h.l.Object.Type, typ)
}

func (h *heap) cstring(s string) uint64 {
	addr := h.alloc(len(s) + 1)
	h.put(addr, append([]byte(s), 0))
	return addr
}

func encodeUint(v uint64, size int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b[:size]
}

// structSize returns the smallest size covering every offset plus one word.
func structSize(ptr int, offsets ...uint64) int {
	var hi uint64
	for _, o := range offsets {
		hi = max(hi, o)
	}
	return int(hi) + ptr
}

// indexWidth is the byte width of one slot of a hash index of the given size.
func indexWidth(size int) int {
	switch {
	case size <= 0xff:
		return 1
	case size <= 0xffff:
		return 2
	case int64(size) <= 0xffffffff:
		return 4
	default:
		return 8
	}
}

func nameHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

type dictEntry struct {
	name  string
	key   uint64
	value uint64
	live  bool
}

// dictTable mirrors one attribute table in the image.
type dictTable struct {
	addr    uint64
	keys    uint64
	size    int
	entries []dictEntry
	used    int
}

func (d *dictTable) usable() int {
	return d.size * 2 / 3
}

func (d *dictTable) find(name string) int {
	for i, e := range d.entries {
		if e.live && e.name == name {
			return i
		}
	}
	return -1
}

// reserveDict allocates memory for a table of the given size (a power of
// two) without initializing it.
func (h *heap) reserveDict(size int) *dictTable {
	dl, kl := h.l.Dict, h.l.DictKeys
	d := &dictTable{size: size}
	d.addr = h.alloc(structSize(h.ptrSize(), h.l.Object.Type, dl.Used, dl.Keys))
	entriesStart := kl.Indices + uint64(size*indexWidth(size))
	d.keys = h.alloc(int(entriesStart) + d.usable()*int(kl.EntrySize))
	return d
}

// dictInit returns the writes that initialize an empty reserved table.
func (h *heap) dictInit(d *dictTable, dictType uint64) []write {
	dl, kl := h.l.Dict, h.l.DictKeys
	ptr := h.ptrSize()
	empty := make([]byte, d.size*indexWidth(d.size))
	for i := range empty {
		empty[i] = 0xff
	}
	return []write{
		{addr: d.addr, data: encodeUint(1, ptr)},
		{addr: d.addr + h.l.Object.Type, data: encodeUint(dictType, ptr)},
		{addr: d.addr + dl.Keys, data: encodeUint(d.keys, ptr)},
		{addr: d.keys, data: encodeUint(1, ptr)},
		{addr: d.keys + kl.Size, data: encodeUint(uint64(d.size), ptr)},
		{addr: d.keys + kl.Indices, data: empty},
	}
}

// newDict allocates and initializes an empty table in the initial image.
func (h *heap) newDict(dictType uint64, size int) *dictTable {
	d := h.reserveDict(size)
	for _, w := range h.dictInit(d, dictType) {
		h.put(w.addr, w.data)
	}
	return d
}

func (h *heap) entryAddr(d *dictTable, i int) uint64 {
	kl := h.l.DictKeys
	return d.keys + kl.Indices + uint64(d.size*indexWidth(d.size)) + uint64(i)*kl.EntrySize
}

// fill inserts entries directly into the image (initial state only).
func (h *heap) fill(d *dictTable, name string, key, value uint64) error {
	if len(d.entries) >= d.usable() {
		return fmt.Errorf("attribute table full inserting %q", name)
	}
	kl := h.l.DictKeys
	e := h.entryAddr(d, len(d.entries))
	h.putPtr(e+kl.EntryHash, nameHash(name))
	h.putPtr(e+kl.EntryKey, key)
	h.putPtr(e+kl.EntryValue, value)
	d.entries = append(d.entries, dictEntry{name: name, key: key, value: value, live: true})
	d.used++
	h.putPtr(d.keys+kl.Nentries, uint64(len(d.entries)))
	h.putPtr(d.addr+h.l.Dict.Used, uint64(d.used))
	return nil
}
