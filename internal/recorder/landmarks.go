package recorder

import "fmt"

// LandmarkKind classifies a notable position in a recording.
type LandmarkKind string

const (
	// LandmarkDispatch is the position right after an instruction's offset
	// became current: an instruction boundary.
	LandmarkDispatch LandmarkKind = "dispatch"
	// LandmarkCall is the first position where a new frame is consistent.
	LandmarkCall LandmarkKind = "call"
	// LandmarkReturn is the position right after a frame was unlinked.
	LandmarkReturn LandmarkKind = "return"
	// LandmarkSetAttr is the position where a STORE_ATTR became visible.
	LandmarkSetAttr LandmarkKind = "setattr"
	// LandmarkDelAttr is the position where a DELETE_ATTR became visible.
	LandmarkDelAttr LandmarkKind = "delattr"
	// LandmarkNativeCall is the position where a native call started.
	LandmarkNativeCall LandmarkKind = "native_call"
	// LandmarkNativeReturn is the position where a native call finished.
	LandmarkNativeReturn LandmarkKind = "native_return"
)

// Landmark is a position of interest, noted while recording.
type Landmark struct {
	Kind     LandmarkKind `json:"kind" yaml:"kind"`
	Seq      int64        `json:"seq" yaml:"seq"`
	Function string       `json:"function,omitempty" yaml:"function,omitempty"`
	Offset   int          `json:"offset" yaml:"offset"`
	Opcode   string       `json:"opcode,omitempty" yaml:"opcode,omitempty"`
	Object   string       `json:"object,omitempty" yaml:"object,omitempty"`
	Attr     string       `json:"attr,omitempty" yaml:"attr,omitempty"`
	Depth    int          `json:"depth" yaml:"depth"`
}

func (lm Landmark) String() string {
	switch lm.Kind {
	case LandmarkDispatch:
		return fmt.Sprintf("#%d dispatch %s@%d %s", lm.Seq, lm.Function, lm.Offset, lm.Opcode)
	case LandmarkSetAttr, LandmarkDelAttr:
		return fmt.Sprintf("#%d %s %s.%s", lm.Seq, lm.Kind, lm.Object, lm.Attr)
	default:
		return fmt.Sprintf("#%d %s %s", lm.Seq, lm.Kind, lm.Function)
	}
}

// Query selects landmarks. Zero fields match anything, except Offset which
// is compared only when HasOffset is set.
type Query struct {
	Kind      LandmarkKind
	Function  string
	Offset    int
	HasOffset bool
	Opcode    string
	Object    string
	Attr      string
}

func (q Query) matches(lm Landmark) bool {
	return (q.Kind == "" || q.Kind == lm.Kind) &&
		(q.Function == "" || q.Function == lm.Function) &&
		(!q.HasOffset || q.Offset == lm.Offset) &&
		(q.Opcode == "" || q.Opcode == lm.Opcode) &&
		(q.Object == "" || q.Object == lm.Object) &&
		(q.Attr == "" || q.Attr == lm.Attr)
}

// FindAll returns matching landmarks in recording order.
func (r *Result) FindAll(q Query) []Landmark {
	var out []Landmark
	for _, lm := range r.Landmarks {
		if q.matches(lm) {
			out = append(out, lm)
		}
	}
	return out
}

// Find returns the first matching landmark.
func (r *Result) Find(q Query) (Landmark, bool) {
	for _, lm := range r.Landmarks {
		if q.matches(lm) {
			return lm, true
		}
	}
	return Landmark{}, false
}

// Nth returns the n-th (0-based) matching landmark.
func (r *Result) Nth(q Query, n int) (Landmark, error) {
	all := r.FindAll(q)
	if n < 0 || n >= len(all) {
		return Landmark{}, fmt.Errorf("landmark %+v #%d not found (%d matches)", q, n, len(all))
	}
	return all[n], nil
}

// Dispatch is a shorthand query for an instruction boundary.
func Dispatch(function string, offset int) Query {
	return Query{Kind: LandmarkDispatch, Function: function, Offset: offset, HasOffset: true}
}
