package ir

import (
	"cmp"
	"fmt"
	"strings"
)

// Direction is the time direction of a navigation or an elementary step.
type Direction int

const (
	// Forward moves toward later positions.
	Forward Direction = iota + 1
	// Backward moves toward earlier positions.
	Backward
)

// String returns "forward" or "backward".
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

// Valid reports whether d is Forward or Backward.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts the names understood by ParseDirection.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection parses "forward"/"backward" (or "f"/"b").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "forwards", "f":
		return Forward, nil
	case "backward", "backwards", "b":
		return Backward, nil
	default:
		return 0, fmt.Errorf("invalid direction %q: must be forward or backward", s)
	}
}

// Position is a point in one recorded (or live) execution.
//
// Seq counts elementary steps from the start of recorded history: Seq 0 is
// the earliest position. PC is the machine program counter at that point and
// is informational only; ordering uses Seq.
type Position struct {
	Seq int64  `json:"seq"`
	PC  uint64 `json:"pc"`
}

// Compare returns -1, 0 or +1 ordering p relative to o.
func (p Position) Compare(o Position) int {
	return cmp.Compare(p.Seq, o.Seq)
}

// Before reports whether p is strictly earlier than o.
func (p Position) Before(o Position) bool {
	return p.Seq < o.Seq
}

// After reports whether p is strictly later than o.
func (p Position) After(o Position) bool {
	return p.Seq > o.Seq
}

func (p Position) String() string {
	return fmt.Sprintf("#%d@0x%x", p.Seq, p.PC)
}

// CodeIdentity identifies a code object (or a native function).
//
// Name and Filename are empty when the target's metadata could not be read;
// DisplayName then falls back to the raw address.
type CodeIdentity struct {
	Addr      uint64 `json:"addr"`
	Name      string `json:"name,omitempty"`
	Filename  string `json:"filename,omitempty"`
	FirstLine int    `json:"first_line,omitempty"`
}

// DisplayName returns the function name, or a raw-address placeholder.
func (c CodeIdentity) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("<code 0x%x>", c.Addr)
}

// FrameKind distinguishes interpreter frames from native calls.
type FrameKind int

const (
	// FrameBytecode is an interpreter frame executing bytecode.
	FrameBytecode FrameKind = iota + 1
	// FrameNative is a natively implemented function currently being called.
	// It has no bytecode offset.
	FrameNative
)

// MarshalText encodes the kind by name.
func (k FrameKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k FrameKind) String() string {
	switch k {
	case FrameBytecode:
		return "bytecode"
	case FrameNative:
		return "native"
	default:
		return "unknown"
	}
}

// NoOffset marks a frame that has not dispatched its first instruction yet.
const NoOffset = -1

// Frame is one activation in the call chain, as read at a single position.
type Frame struct {
	Kind    FrameKind    `json:"kind"`
	Addr    uint64       `json:"addr"`
	Code    CodeIdentity `json:"code"`
	Offset  int          `json:"offset"`
	Parent  uint64       `json:"parent,omitempty"`
	Locals  uint64       `json:"locals,omitempty"`
	Globals uint64       `json:"globals,omitempty"`
}

// Name returns the display name of the frame's function.
func (f Frame) Name() string {
	return f.Code.DisplayName()
}

// Started reports whether the frame has dispatched at least one instruction.
func (f Frame) Started() bool {
	return f.Kind == FrameBytecode && f.Offset >= 0
}

// SameActivation reports whether f and o are the same frame executing the
// same code object. Both the frame address and the code address must match.
func (f Frame) SameActivation(o Frame) bool {
	return f.Kind == o.Kind && f.Addr == o.Addr && f.Code.Addr == o.Code.Addr
}

// SameCode reports whether f and o execute the same code (or native function).
func (f Frame) SameCode(o Frame) bool {
	return f.Kind == o.Kind && f.Code.Addr == o.Code.Addr
}

func (f Frame) String() string {
	if f.Kind == FrameNative {
		return fmt.Sprintf("%s (native)", f.Name())
	}
	if f.Code.Filename != "" {
		return fmt.Sprintf("%s (%s) offset %d", f.Name(), f.Code.Filename, f.Offset)
	}
	return fmt.Sprintf("%s offset %d", f.Name(), f.Offset)
}

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Offset int    `json:"offset"`
	Opcode int    `json:"opcode"`
	Name   string `json:"name"`
	Arg    int    `json:"arg"`
}

func (i Instruction) String() string {
	if i.Name == "" {
		return fmt.Sprintf("%4d <%d> %d", i.Offset, i.Opcode, i.Arg)
	}
	return fmt.Sprintf("%4d %s %d", i.Offset, i.Name, i.Arg)
}

// ObjectRef is the address of an interpreter object in the target.
type ObjectRef uint64

func (r ObjectRef) String() string {
	return fmt.Sprintf("0x%x", uint64(r))
}
