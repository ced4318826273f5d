package reader

import (
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
)

// AttributesOf returns the attribute store of an instance. An object without
// an attribute dictionary has an empty snapshot.
func (r *Reader) AttributesOf(obj ir.ObjectRef) (ir.AttributeSnapshot, error) {
	if obj == 0 {
		return ir.AttributeSnapshot{}, unavailable("null object")
	}
	dict, err := r.readPtr(uint64(obj) + r.l.Instance.Dict)
	if err != nil {
		return ir.AttributeSnapshot{}, err
	}
	snap := ir.AttributeSnapshot{Object: obj}
	if dict == 0 {
		return snap, nil
	}
	snap.Entries, err = r.dictEntries(dict)
	if err != nil {
		return ir.AttributeSnapshot{}, err
	}
	return snap, nil
}

// dictEntries walks a combined-table dictionary in insertion order.
func (r *Reader) dictEntries(dict uint64) ([]ir.AttributeEntry, error) {
	kl := r.l.DictKeys
	keys, err := r.readPtr(dict + r.l.Dict.Keys)
	if err != nil {
		return nil, err
	}
	if keys == 0 {
		return nil, unavailable("dict 0x%x has no keys table", dict)
	}
	size, err := r.readPtr(keys + kl.Size)
	if err != nil {
		return nil, err
	}
	if size == 0 || size&(size-1) != 0 || size > maxTableSize {
		return nil, unavailable("dict 0x%x has invalid table size %d", dict, size)
	}
	n, err := r.readPtr(keys + kl.Nentries)
	if err != nil {
		return nil, err
	}
	if n > size {
		return nil, unavailable("dict 0x%x has %d entries for size %d", dict, n, size)
	}

	entries := keys + kl.Indices + size*uint64(IndexWidth(size))
	var out []ir.AttributeEntry
	for i := uint64(0); i < n; i++ {
		e := entries + i*kl.EntrySize
		key, err := r.readPtr(e + kl.EntryKey)
		if err != nil {
			return nil, err
		}
		value, err := r.readPtr(e + kl.EntryValue)
		if err != nil {
			return nil, err
		}
		if key == 0 || value == 0 {
			continue
		}
		name, err := r.readStr(key)
		if err != nil {
			return nil, err
		}
		out = append(out, ir.AttributeEntry{Name: name, Value: value})
	}
	return out, nil
}

// IndexWidth is the byte width of one hash index slot for a table size.
func IndexWidth(size uint64) int {
	switch {
	case size <= 0xff:
		return 1
	case size <= 0xffff:
		return 2
	case size <= 0xffffffff:
		return 4
	default:
		return 8
	}
}

// Scope says where LookupVariable found a name.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
)

// LookupVariable resolves a name in the current frame's locals, then its
// globals.
func (r *Reader) LookupVariable(name string) (ir.ObjectRef, Scope, error) {
	f, err := r.CurrentFrame()
	if err != nil {
		return 0, "", err
	}
	want := ir.NormalizeName(name)
	for _, scope := range []struct {
		dict  uint64
		scope Scope
	}{{f.Locals, ScopeLocal}, {f.Globals, ScopeGlobal}} {
		if scope.dict == 0 {
			continue
		}
		entries, err := r.dictEntries(scope.dict)
		if err != nil {
			return 0, "", err
		}
		for _, e := range entries {
			if e.Name == want {
				return ir.ObjectRef(e.Value), scope.scope, nil
			}
		}
	}
	return 0, "", fmt.Errorf("%q in %s: %w", name, f.Name(), ErrNotFound)
}
