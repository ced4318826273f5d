package layout

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks structural rules the CUE definition cannot express:
// pointer-sized fields must be pointer aligned, the instruction index must
// be 4-byte aligned, and the opcodes the reader depends on must exist.
// All problems are reported, joined.
func (l *Layout) Validate() error {
	var errs []error
	ptr := uint64(l.Build.PointerSize)
	if ptr != 4 && ptr != 8 {
		return &CompileError{Field: "build.pointer_size", Message: fmt.Sprintf("unsupported pointer size %d", ptr)}
	}

	pointerFields := map[string]uint64{
		"object.type":           l.Object.Type,
		"frame.back":            l.Frame.Back,
		"frame.code":            l.Frame.Code,
		"frame.globals":         l.Frame.Globals,
		"frame.locals":          l.Frame.Locals,
		"code.bytecode":         l.Code.Bytecode,
		"code.filename":         l.Code.Filename,
		"code.name":             l.Code.Name,
		"bytes.size":            l.Bytes.Size,
		"str.length":            l.Str.Length,
		"dict.used":             l.Dict.Used,
		"dict.keys":             l.Dict.Keys,
		"dict_keys.size":        l.DictKeys.Size,
		"dict_keys.nentries":    l.DictKeys.Nentries,
		"dict_keys.entry_size":  l.DictKeys.EntrySize,
		"dict_keys.entry_key":   l.DictKeys.EntryKey,
		"dict_keys.entry_value": l.DictKeys.EntryValue,
		"instance.dict":         l.Instance.Dict,
		"cfunction.def":         l.CFunction.Def,
		"methoddef.name":        l.MethodDef.Name,
	}
	for _, field := range sortedKeys(pointerFields) {
		if pointerFields[field]%ptr != 0 {
			errs = append(errs, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("offset %d is not aligned to pointer size %d", pointerFields[field], ptr),
			})
		}
	}
	if l.Frame.Lasti%4 != 0 {
		errs = append(errs, &CompileError{Field: "frame.lasti", Message: "offset is not 4-byte aligned"})
	}
	if l.DictKeys.EntryValue+ptr > l.DictKeys.EntrySize || l.DictKeys.EntryKey+ptr > l.DictKeys.EntrySize {
		errs = append(errs, &CompileError{Field: "dict_keys.entry_size", Message: "entry fields exceed entry size"})
	}

	for _, name := range RequiredOpcodes {
		if _, ok := l.opcodes[name]; !ok {
			errs = append(errs, &CompileError{Field: "opcodes." + name, Message: "opcode is required"})
		}
	}
	return errors.Join(errs...)
}

// RequiredOpcodes are the opcodes whose numbers the recorder and the
// disassembler rely on.
var RequiredOpcodes = []string{
	"RETURN_VALUE", "STORE_ATTR", "DELETE_ATTR", "CALL_FUNCTION",
	"CALL_METHOD", "JUMP_ABSOLUTE", "LOAD_FAST", "LOAD_CONST", "NOP",
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
