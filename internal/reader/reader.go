// Package reader is the interpreter state reader: it resolves raw target
// memory at the current position into frames, instructions and attribute
// stores using the introspection schema.
//
// Nothing is cached. Every call reads the target afresh, because the same
// address can hold a different frame once execution has moved.
package reader

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/layout"
	"github.com/roach88/pyrewind/internal/substrate"
)

const (
	maxChainDepth  = 4096
	maxCString     = 256
	maxStrLength   = 1 << 16
	maxCodeSize    = 1 << 20
	maxTableSize   = 1 << 24
	maxStringBytes = 64
)

// Reader reads interpreter state through a substrate memory view.
type Reader struct {
	mem substrate.Memory
	l   *layout.Layout
}

// New returns a Reader for the given memory and layout.
func New(mem substrate.Memory, l *layout.Layout) *Reader {
	return &Reader{mem: mem, l: l}
}

// Layout returns the schema the reader uses.
func (r *Reader) Layout() *layout.Layout {
	return r.l
}

func (r *Reader) readUint(addr uint64, size int) (uint64, error) {
	b, err := r.mem.Read(addr, size)
	if err != nil {
		return 0, unavailable("read 0x%x: %v", addr, err)
	}
	return substrate.DecodeUint(b)
}

func (r *Reader) readPtr(addr uint64) (uint64, error) {
	return r.readUint(addr, r.l.Build.PointerSize)
}

func (r *Reader) readInt32(addr uint64) (int32, error) {
	v, err := r.readUint(addr, 4)
	return int32(uint32(v)), err
}

// readCString reads a NUL-terminated string of at most maxCString bytes.
func (r *Reader) readCString(addr uint64) (string, error) {
	if addr == 0 {
		return "", unavailable("null string pointer")
	}
	var out []byte
	for len(out) < maxCString {
		chunk, err := r.mem.Read(addr+uint64(len(out)), 16)
		if err != nil {
			// The string may end right before an unmapped page.
			chunk, err = r.mem.Read(addr+uint64(len(out)), 1)
			if err != nil {
				return "", unavailable("read string 0x%x: %v", addr, err)
			}
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
	}
	return "", unavailable("string at 0x%x is not terminated", addr)
}

// readStr reads a compact ASCII string object.
func (r *Reader) readStr(obj uint64) (string, error) {
	if obj == 0 {
		return "", unavailable("null str object")
	}
	n, err := r.readPtr(obj + r.l.Str.Length)
	if err != nil {
		return "", err
	}
	if n > maxStrLength {
		return "", unavailable("str at 0x%x has implausible length %d", obj, n)
	}
	b, err := r.mem.Read(obj+r.l.Str.Data, int(n))
	if err != nil {
		return "", unavailable("read str 0x%x: %v", obj, err)
	}
	return string(b), nil
}

// TypeName returns the type name of the object at addr.
func (r *Reader) TypeName(obj ir.ObjectRef) (string, error) {
	if obj == 0 {
		return "", unavailable("null object")
	}
	typ, err := r.readPtr(uint64(obj) + r.l.Object.Type)
	if err != nil {
		return "", err
	}
	name, err := r.readPtr(typ + r.l.Type.Name)
	if err != nil {
		return "", err
	}
	return r.readCString(name)
}

// Verify checks that the target matches the schema: every schema symbol
// resolves and the target's version string has the schema build's
// major.minor. It returns the target's version string.
func (r *Reader) Verify() (string, error) {
	syms := r.l.Symbols
	for _, name := range []string{syms.Version, syms.CurrentFrame, syms.NativeCall} {
		if _, ok := r.mem.Symbol(name); !ok {
			return "", &MismatchError{Reason: "missing symbol " + name}
		}
	}
	addr, _ := r.mem.Symbol(syms.Version)
	version, err := r.readCString(addr)
	if err != nil {
		return "", &MismatchError{Reason: fmt.Sprintf("cannot read %s: %v", syms.Version, err)}
	}
	if !r.l.VersionMatches(version) {
		return version, &MismatchError{
			Reason:   "interpreter version does not match schema " + r.l.Build.Name,
			Expected: r.l.Build.MajorMinor(),
			Found:    version,
		}
	}
	return version, nil
}

// symbolPtr reads the pointer stored at a schema symbol.
func (r *Reader) symbolPtr(name string) (uint64, error) {
	addr, ok := r.mem.Symbol(name)
	if !ok {
		return 0, &MismatchError{Reason: "missing symbol " + name}
	}
	return r.readPtr(addr)
}

// IsTransient reports whether err should be treated as "keep stepping".
func IsTransient(err error) bool {
	return errors.Is(err, ErrStateUnavailable)
}
