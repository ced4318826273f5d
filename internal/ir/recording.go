package ir

// Segment is a contiguous run of initialized target memory.
type Segment struct {
	Addr uint64 `cbor:"1,keyasint" json:"addr"`
	Data []byte `cbor:"2,keyasint" json:"data"`
}

// Write is one memory write performed by an elementary step.
// Old holds the bytes that were overwritten so the step can be reverted.
type Write struct {
	Addr uint64 `cbor:"1,keyasint" json:"addr"`
	Old  []byte `cbor:"2,keyasint" json:"old"`
	New  []byte `cbor:"3,keyasint" json:"new"`
}

// Step is one elementary step of recorded execution.
// PC is the program counter after the step.
type Step struct {
	PC     uint64  `cbor:"1,keyasint" json:"pc"`
	Writes []Write `cbor:"2,keyasint" json:"writes"`
}

// Recording is a complete record of one execution.
//
// Position k of the recording is the initial image (Segments) with
// Steps[0..k) applied. If Exited is true the process exited after the last
// step; otherwise the recording ends at a fixed historical point.
type Recording struct {
	ID        string            `json:"id"`
	Build     string            `json:"build"`
	Symbols   map[string]uint64 `json:"symbols"`
	InitialPC uint64            `json:"initial_pc"`
	Segments  []Segment         `json:"segments"`
	Steps     []Step            `json:"steps"`
	Exited    bool              `json:"exited"`
	ExitCode  int               `json:"exit_code"`
}

// End returns the last position of the recording.
func (r *Recording) End() Position {
	pc := r.InitialPC
	if n := len(r.Steps); n > 0 {
		pc = r.Steps[n-1].PC
	}
	return Position{Seq: int64(len(r.Steps)), PC: pc}
}

// PositionAt returns the position with the given sequence number.
// The caller must ensure 0 <= seq <= len(Steps).
func (r *Recording) PositionAt(seq int64) Position {
	if seq == 0 {
		return Position{Seq: 0, PC: r.InitialPC}
	}
	return Position{Seq: seq, PC: r.Steps[seq-1].PC}
}
