// Package layout is the introspection schema: a data-only description of the
// memory layout of one fixed interpreter build.
//
// Everything the state reader needs to know about interpreter internals
// (structure offsets, symbol names, the opcode table) lives here and nowhere
// else. The schema is written in CUE and validated against the #Layout
// definition in schemas/layout.cue.
package layout

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Build identifies the interpreter build the layout describes.
type Build struct {
	Name        string
	Version     string
	PointerSize int
	// LastiScale converts the frame's instruction index to a byte offset.
	LastiScale int
}

// MajorMinor returns the "X.Y" prefix of Version.
func (b Build) MajorMinor() string {
	return majorMinor(b.Version)
}

// Symbols names the target symbols the reader resolves through the substrate.
type Symbols struct {
	Version      string
	CurrentFrame string
	NativeCall   string
}

type ObjectLayout struct{ Type uint64 }

type TypeLayout struct{ Name uint64 }

type FrameLayout struct {
	Back, Code, Globals, Locals, Lasti uint64
}

type CodeLayout struct {
	FirstLine, Bytecode, Filename, Name uint64
}

type BytesLayout struct{ Size, Data uint64 }

type StrLayout struct{ Length, Data uint64 }

type DictLayout struct{ Used, Keys uint64 }

type DictKeysLayout struct {
	Size, Nentries, Indices                    uint64
	EntrySize, EntryHash, EntryKey, EntryValue uint64
}

type InstanceLayout struct{ Dict uint64 }

type CFunctionLayout struct{ Def uint64 }

type MethodDefLayout struct{ Name uint64 }

// Layout is a compiled introspection schema. It is immutable after Compile.
type Layout struct {
	Build     Build
	Symbols   Symbols
	Object    ObjectLayout
	Type      TypeLayout
	Frame     FrameLayout
	Code      CodeLayout
	Bytes     BytesLayout
	Str       StrLayout
	Dict      DictLayout
	DictKeys  DictKeysLayout
	Instance  InstanceLayout
	CFunction CFunctionLayout
	MethodDef MethodDefLayout

	// HaveArgument is the first opcode that takes an operand.
	HaveArgument int

	opcodes map[string]int
	names   map[int]string
}

// OpcodeNumber resolves an opcode given by name or as a decimal number.
// Names are matched case-insensitively. A number is accepted only if some
// opcode in the table has it.
func (l *Layout) OpcodeNumber(nameOrNumber string) (int, error) {
	s := strings.TrimSpace(nameOrNumber)
	if s == "" {
		return 0, fmt.Errorf("empty opcode")
	}
	if n, ok := l.opcodes[strings.ToUpper(s)]; ok {
		return n, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := l.names[n]; ok {
			return n, nil
		}
		return 0, fmt.Errorf("opcode number %d is not used by %s", n, l.Build.Name)
	}
	return 0, fmt.Errorf("unknown opcode %q for %s", nameOrNumber, l.Build.Name)
}

// OpcodeName returns the name of opcode n, or "" if n is unused.
func (l *Layout) OpcodeName(n int) string {
	return l.names[n]
}

// OpcodeNames returns all opcode names sorted by number.
func (l *Layout) OpcodeNames() []string {
	nums := make([]int, 0, len(l.names))
	for n := range l.names {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = l.names[n]
	}
	return out
}

// HasArgument reports whether opcode n uses its operand.
func (l *Layout) HasArgument(n int) bool {
	return n >= l.HaveArgument
}

// VersionMatches reports whether a target version string (e.g. the
// interpreter's PY_VERSION) has the same major.minor as the layout build.
func (l *Layout) VersionMatches(target string) bool {
	mm := l.Build.MajorMinor()
	return mm != "" && majorMinor(target) == mm
}

func majorMinor(version string) string {
	parts := strings.SplitN(strings.TrimSpace(version), ".", 3)
	if len(parts) < 2 {
		return ""
	}
	minor := parts[1]
	if i := strings.IndexFunc(minor, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minor = minor[:i]
	}
	if parts[0] == "" || minor == "" {
		return ""
	}
	return parts[0] + "." + minor
}
