package session

import (
	"errors"
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
	"github.com/roach88/pyrewind/internal/reader"
)

// Location is what the target is doing at the current position.
type Location struct {
	Position    ir.Position     `json:"position"`
	Frames      []ir.Frame      `json:"frames"`
	Instruction *ir.Instruction `json:"instruction,omitempty"`
}

// Listing is the decoded bytecode of one code object.
type Listing struct {
	Code         ir.CodeIdentity  `json:"code"`
	Instructions []ir.Instruction `json:"instructions"`
	// Current is the index of the instruction at the frame's offset, -1
	// before the frame starts.
	Current int `json:"current"`
}

// Where returns the call chain and current instruction. Before the first
// call and after the last return the chain is empty.
func (s *Session) Where() (Location, error) {
	st, err := s.rd.Capture(reader.Request{Frames: true})
	if err != nil {
		return Location{}, fmt.Errorf("where: %w", err)
	}
	frames := st.Chain
	if frames == nil {
		frames = []ir.Frame{}
	}
	return Location{
		Position:    s.eng.Position(),
		Frames:      frames,
		Instruction: st.Instruction,
	}, nil
}

// Disassemble decodes the code of the innermost interpreter frame.
func (s *Session) Disassemble() (Listing, error) {
	st, err := s.rd.Capture(reader.Request{Frames: true})
	if err != nil {
		return Listing{}, fmt.Errorf("disassemble: %w", err)
	}
	f, ok := st.InnermostBytecode()
	if !ok {
		return Listing{}, fmt.Errorf("disassemble: %w", reader.ErrNoFrame)
	}
	ins, err := s.rd.Instructions(f.Code.Addr)
	if err != nil {
		return Listing{}, fmt.Errorf("disassemble %s: %w", f.Name(), err)
	}
	l := Listing{Code: f.Code, Instructions: ins, Current: -1}
	for i, in := range ins {
		if in.Offset == f.Offset {
			l.Current = i
			break
		}
	}
	return l, nil
}

// ResolveOpcode maps an opcode name or number to both forms.
func (s *Session) ResolveOpcode(nameOrNumber string) (int, string, error) {
	n, err := s.layout.OpcodeNumber(nameOrNumber)
	if err != nil {
		return 0, "", err
	}
	return n, s.layout.OpcodeName(n), nil
}

// IsUnavailable reports whether err means the position has no consistent
// interpreter state to show.
func IsUnavailable(err error) bool {
	return errors.Is(err, reader.ErrStateUnavailable)
}
