package layout

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schemas/layout.cue
var schemaSource []byte

//go:embed schemas/cpython310.cue
var defaultSource []byte

// DefaultName is the file name reported for the embedded layout.
const DefaultName = "cpython310.cue"

// CompileError is a schema error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var defaultLayout = sync.OnceValues(func() (*Layout, error) {
	return Parse(DefaultName, defaultSource)
})

// Default returns the embedded CPython 3.10 layout.
func Default() (*Layout, error) {
	return defaultLayout()
}

// Load reads and compiles a layout file. An empty path selects Default.
func Load(path string) (*Layout, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return Parse(path, src)
}

// Parse compiles CUE source containing a top-level "layout" struct,
// unified with the #Layout definition.
func Parse(filename string, src []byte) (*Layout, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("layout.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	lv := data.LookupPath(cue.ParsePath("layout"))
	if !lv.Exists() {
		return nil, &CompileError{
			Field:   "layout",
			Message: "layout is required",
			Pos:     data.Pos(),
		}
	}

	v := schema.LookupPath(cue.ParsePath("#Layout")).Unify(lv)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile converts a concrete, schema-checked CUE value into a Layout and
// runs Validate on it.
func Compile(v cue.Value) (*Layout, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := &fieldReader{root: v}
	l := &Layout{
		Build: Build{
			Name:        r.str("build.name"),
			Version:     r.str("build.version"),
			PointerSize: int(r.num("build.pointer_size")),
			LastiScale:  int(r.num("build.lasti_scale")),
		},
		Symbols: Symbols{
			Version:      r.str("symbols.version"),
			CurrentFrame: r.str("symbols.current_frame"),
			NativeCall:   r.str("symbols.native_call"),
		},
		Object: ObjectLayout{Type: r.num("object.type")},
		Type:   TypeLayout{Name: r.num("type.name")},
		Frame: FrameLayout{
			Back:    r.num("frame.back"),
			Code:    r.num("frame.code"),
			Globals: r.num("frame.globals"),
			Locals:  r.num("frame.locals"),
			Lasti:   r.num("frame.lasti"),
		},
		Code: CodeLayout{
			FirstLine: r.num("code.firstlineno"),
			Bytecode:  r.num("code.bytecode"),
			Filename:  r.num("code.filename"),
			Name:      r.num("code.name"),
		},
		Bytes: BytesLayout{Size: r.num("bytes.size"), Data: r.num("bytes.data")},
		Str:   StrLayout{Length: r.num("str.length"), Data: r.num("str.data")},
		Dict:  DictLayout{Used: r.num("dict.used"), Keys: r.num("dict.keys")},
		DictKeys: DictKeysLayout{
			Size:       r.num("dict_keys.size"),
			Nentries:   r.num("dict_keys.nentries"),
			Indices:    r.num("dict_keys.indices"),
			EntrySize:  r.num("dict_keys.entry_size"),
			EntryHash:  r.num("dict_keys.entry_hash"),
			EntryKey:   r.num("dict_keys.entry_key"),
			EntryValue: r.num("dict_keys.entry_value"),
		},
		Instance:     InstanceLayout{Dict: r.num("instance.dict")},
		CFunction:    CFunctionLayout{Def: r.num("cfunction.def")},
		MethodDef:    MethodDefLayout{Name: r.num("methoddef.name")},
		HaveArgument: int(r.num("have_argument")),
		opcodes:      make(map[string]int),
		names:        make(map[int]string),
	}
	if r.err != nil {
		return nil, r.err
	}

	ops := v.LookupPath(cue.ParsePath("opcodes"))
	if !ops.Exists() {
		return nil, &CompileError{Field: "opcodes", Message: "opcodes is required", Pos: v.Pos()}
	}
	iter, err := ops.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if prev, dup := l.names[int(n)]; dup {
			return nil, &CompileError{
				Field:   "opcodes." + name,
				Message: fmt.Sprintf("opcode %d already assigned to %s", n, prev),
				Pos:     iter.Value().Pos(),
			}
		}
		l.opcodes[name] = int(n)
		l.names[int(n)] = name
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// fieldReader looks up required fields and keeps the first error.
type fieldReader struct {
	root cue.Value
	err  error
}

func (r *fieldReader) lookup(path string) (cue.Value, bool) {
	if r.err != nil {
		return cue.Value{}, false
	}
	v := r.root.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		r.err = &CompileError{Field: path, Message: "field is required", Pos: r.root.Pos()}
		return cue.Value{}, false
	}
	return v, true
}

func (r *fieldReader) str(path string) string {
	v, ok := r.lookup(path)
	if !ok {
		return ""
	}
	s, err := v.String()
	if err != nil {
		r.err = formatCUEError(err)
	}
	return s
}

func (r *fieldReader) num(path string) uint64 {
	v, ok := r.lookup(path)
	if !ok {
		return 0
	}
	n, err := v.Int64()
	if err != nil {
		r.err = formatCUEError(err)
		return 0
	}
	if n < 0 {
		r.err = &CompileError{Field: path, Message: "must not be negative", Pos: v.Pos()}
		return 0
	}
	return uint64(n)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
