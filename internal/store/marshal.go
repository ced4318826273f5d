package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/pyrewind/internal/ir"
)

// encMode is canonical CBOR so a write list always stores as the same bytes.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// marshalWrites encodes a step's write list as a CBOR BLOB.
func marshalWrites(ws []ir.Write) ([]byte, error) {
	if ws == nil {
		ws = []ir.Write{}
	}
	data, err := encMode.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("marshal writes: %w", err)
	}
	return data, nil
}

// unmarshalWrites decodes a write list BLOB.
func unmarshalWrites(data []byte) ([]ir.Write, error) {
	ws := []ir.Write{}
	if err := cbor.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("unmarshal writes: %w", err)
	}
	for i, w := range ws {
		if len(w.Old) != len(w.New) {
			return nil, fmt.Errorf("unmarshal writes: write %d at 0x%x changes size", i, w.Addr)
		}
	}
	return ws, nil
}

// marshalSegment encodes one initial-image segment.
func marshalSegment(seg ir.Segment) ([]byte, error) {
	data, err := encMode.Marshal(seg)
	if err != nil {
		return nil, fmt.Errorf("marshal segment 0x%x: %w", seg.Addr, err)
	}
	return data, nil
}

func unmarshalSegment(data []byte) (ir.Segment, error) {
	var seg ir.Segment
	if err := cbor.Unmarshal(data, &seg); err != nil {
		return ir.Segment{}, fmt.Errorf("unmarshal segment: %w", err)
	}
	return seg, nil
}
