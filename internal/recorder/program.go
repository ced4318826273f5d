package recorder

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Program is a small declarative interpreter program. Recording it produces
// the memory-level execution a real interpreter would go through.
type Program struct {
	// Entry names the function executed first.
	Entry string `yaml:"entry"`

	Functions []Function `yaml:"functions"`

	// Natives lists natively implemented functions callable by name.
	Natives []string `yaml:"natives,omitempty"`

	// Objects are module-level instances, bound in globals by name.
	Objects []Object `yaml:"objects,omitempty"`
}

// Function is one code object.
type Function struct {
	Name string `yaml:"name"`
	File string `yaml:"file,omitempty"`
	Line int    `yaml:"line,omitempty"`
	Code []Instr `yaml:"code"`
}

// Instr is one bytecode instruction plus the effect it has when executed.
type Instr struct {
	Op  string `yaml:"op"`
	Arg int    `yaml:"arg,omitempty"`

	// Call names the callee of a CALL_* instruction, a function or a native.
	Call string `yaml:"call,omitempty"`

	// Object and Attr select the attribute written by STORE_ATTR or removed
	// by DELETE_ATTR. Value is the new binding.
	Object string `yaml:"object,omitempty"`
	Attr   string `yaml:"attr,omitempty"`
	Value  *Value `yaml:"value,omitempty"`

	// Var binds Value in the frame's locals (STORE_FAST, STORE_NAME).
	Var string `yaml:"var,omitempty"`

	// Jump makes the instruction jump to the given offset the first Times
	// times it executes (default once), then fall through.
	Jump  *int `yaml:"jump,omitempty"`
	Times int  `yaml:"times,omitempty"`

	// Exit marks the entry function's RETURN_VALUE as process exit.
	Exit bool `yaml:"exit,omitempty"`
}

// Object is a module-level instance with an initial attribute store.
type Object struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class,omitempty"`
	Attrs Attrs  `yaml:"attrs,omitempty"`
	// Capacity is the attribute table size, a power of two (default 32).
	Capacity int `yaml:"capacity,omitempty"`
}

// Attr is one initial attribute binding.
type Attr struct {
	Name  string
	Value Value
}

// Attrs keeps attributes in declaration order, which becomes the attribute
// store's insertion order.
type Attrs []Attr

// UnmarshalYAML decodes a mapping preserving key order.
func (a *Attrs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attrs must be a mapping", node.Line)
	}
	out := make(Attrs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v Value
		if err := node.Content[i+1].Decode(&v); err != nil {
			return err
		}
		out = append(out, Attr{Name: node.Content[i].Value, Value: v})
	}
	*a = out
	return nil
}

// ValueKind is the kind of a program value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueInt
	ValueStr
	ValueRef
)

// Value is an attribute or local binding: an integer, a string, None, or a
// reference to a declared object ({ref: name}).
type Value struct {
	Kind ValueKind
	Int  int64
	Str  string
}

// UnmarshalYAML accepts scalars, null and {ref: name}.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			*v = Value{Kind: ValueNone}
		case "!!int":
			var n int64
			if err := node.Decode(&n); err != nil {
				return err
			}
			*v = Value{Kind: ValueInt, Int: n}
		case "!!str":
			*v = Value{Kind: ValueStr, Str: node.Value}
		default:
			return fmt.Errorf("line %d: unsupported value type %s", node.Line, node.Tag)
		}
		return nil
	case yaml.MappingNode:
		var ref struct {
			Ref string `yaml:"ref"`
		}
		if err := node.Decode(&ref); err != nil {
			return err
		}
		if ref.Ref == "" {
			return fmt.Errorf("line %d: value mapping must be {ref: name}", node.Line)
		}
		*v = Value{Kind: ValueRef, Str: ref.Ref}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported value", node.Line)
	}
}

func (v Value) key() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("i:%d", v.Int)
	case ValueStr:
		return "s:" + v.Str
	case ValueRef:
		return "r:" + v.Str
	default:
		return "none"
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("%d", v.Int)
	case ValueStr:
		return fmt.Sprintf("%q", v.Str)
	case ValueRef:
		return "<" + v.Str + ">"
	default:
		return "None"
	}
}

// LoadProgram reads and parses a program YAML file.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}
	prog, err := ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// ParseProgram parses program YAML, rejecting unknown fields.
func ParseProgram(data []byte) (*Program, error) {
	var prog Program
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&prog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateProgram(&prog); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}
	return &prog, nil
}

// validateProgram checks structure that does not depend on the layout.
// Opcode names are checked when the program is recorded.
func validateProgram(p *Program) error {
	if p.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if len(p.Functions) == 0 {
		return fmt.Errorf("at least one function is required")
	}

	funcs := make(map[string]bool, len(p.Functions))
	for _, f := range p.Functions {
		if f.Name == "" {
			return fmt.Errorf("function name is required")
		}
		if funcs[f.Name] {
			return fmt.Errorf("duplicate function %q", f.Name)
		}
		funcs[f.Name] = true
	}
	if !funcs[p.Entry] {
		return fmt.Errorf("entry function %q is not defined", p.Entry)
	}

	natives := make(map[string]bool, len(p.Natives))
	for _, n := range p.Natives {
		if n == "" || funcs[n] || natives[n] {
			return fmt.Errorf("native %q is empty or already defined", n)
		}
		natives[n] = true
	}

	objects := make(map[string]bool, len(p.Objects))
	for _, o := range p.Objects {
		if o.Name == "" || objects[o.Name] || funcs[o.Name] || natives[o.Name] {
			return fmt.Errorf("object %q is empty or already defined", o.Name)
		}
		if o.Capacity != 0 && (o.Capacity < 8 || o.Capacity&(o.Capacity-1) != 0) {
			return fmt.Errorf("object %q: capacity must be a power of two >= 8", o.Name)
		}
		objects[o.Name] = true
	}
	checkValue := func(where string, v *Value) error {
		if v != nil && v.Kind == ValueRef && !objects[v.Str] {
			return fmt.Errorf("%s: unknown object %q", where, v.Str)
		}
		return nil
	}
	for _, o := range p.Objects {
		for _, a := range o.Attrs {
			if err := checkValue("object "+o.Name, &a.Value); err != nil {
				return err
			}
		}
	}

	for _, f := range p.Functions {
		if len(f.Code) == 0 {
			return fmt.Errorf("function %q: code is empty", f.Name)
		}
		if last := strings.ToUpper(f.Code[len(f.Code)-1].Op); last != "RETURN_VALUE" {
			return fmt.Errorf("function %q: must end with RETURN_VALUE, got %s", f.Name, last)
		}
		for i, in := range f.Code {
			where := fmt.Sprintf("function %q offset %d", f.Name, 2*i)
			op := strings.ToUpper(in.Op)
			if op == "" {
				return fmt.Errorf("%s: op is required", where)
			}
			if in.Arg < 0 || in.Arg > 255 {
				return fmt.Errorf("%s: arg %d out of range", where, in.Arg)
			}
			if in.Call != "" {
				if !strings.HasPrefix(op, "CALL_") {
					return fmt.Errorf("%s: call on non-call opcode %s", where, op)
				}
				if !funcs[in.Call] && !natives[in.Call] {
					return fmt.Errorf("%s: unknown callee %q", where, in.Call)
				}
			}
			switch op {
			case "STORE_ATTR", "DELETE_ATTR":
				if in.Object == "" || in.Attr == "" {
					return fmt.Errorf("%s: %s requires object and attr", where, op)
				}
				if !objects[in.Object] {
					return fmt.Errorf("%s: unknown object %q", where, in.Object)
				}
				if op == "STORE_ATTR" && in.Value == nil {
					return fmt.Errorf("%s: STORE_ATTR requires value", where)
				}
			}
			if in.Var != "" && in.Value == nil {
				return fmt.Errorf("%s: var requires value", where)
			}
			if err := checkValue(where, in.Value); err != nil {
				return err
			}
			if in.Jump != nil {
				if *in.Jump < 0 || *in.Jump%2 != 0 || *in.Jump >= 2*len(f.Code) {
					return fmt.Errorf("%s: jump target %d out of range", where, *in.Jump)
				}
			}
			if in.Times < 0 {
				return fmt.Errorf("%s: times must not be negative", where)
			}
			if in.Exit && (op != "RETURN_VALUE" || f.Name != p.Entry) {
				return fmt.Errorf("%s: exit is only allowed on the entry function's RETURN_VALUE", where)
			}
		}
	}
	return nil
}
