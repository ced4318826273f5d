package ir

// AttributeEntry is one name → value-identity binding in an attribute store.
type AttributeEntry struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// AttributeSnapshot is the attribute store of one object at one position.
//
// Entries are kept in the store's insertion order. Two snapshots are
// compared by key set and per-key value identity only.
type AttributeSnapshot struct {
	Object  ObjectRef        `json:"object"`
	Entries []AttributeEntry `json:"entries"`
}

// Lookup returns the value identity bound to name.
func (s AttributeSnapshot) Lookup(name string) (uint64, bool) {
	for _, e := range s.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Names returns attribute names in insertion order.
func (s AttributeSnapshot) Names() []string {
	names := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of attributes.
func (s AttributeSnapshot) Len() int {
	return len(s.Entries)
}

// ChangeKind classifies an attribute change.
type ChangeKind string

const (
	// ChangeAdded means the key is present after but not before.
	ChangeAdded ChangeKind = "added"
	// ChangeRemoved means the key is present before but not after.
	ChangeRemoved ChangeKind = "removed"
	// ChangeRebound means the key is bound to a different value identity.
	ChangeRebound ChangeKind = "rebound"
)

// AttributeChange describes one changed key between two snapshots.
type AttributeChange struct {
	Name   string     `json:"name"`
	Kind   ChangeKind `json:"kind"`
	Before uint64     `json:"before,omitempty"`
	After  uint64     `json:"after,omitempty"`
}

// DiffAttributes returns the keys that differ between before and after.
//
// The order is deterministic: keys of after in insertion order (added or
// rebound), followed by keys removed from before in before's insertion order.
// Returns nil when nothing changed.
func DiffAttributes(before, after AttributeSnapshot) []AttributeChange {
	prev := make(map[string]uint64, len(before.Entries))
	for _, e := range before.Entries {
		prev[e.Name] = e.Value
	}
	next := make(map[string]struct{}, len(after.Entries))

	var changes []AttributeChange
	for _, e := range after.Entries {
		next[e.Name] = struct{}{}
		old, ok := prev[e.Name]
		switch {
		case !ok:
			changes = append(changes, AttributeChange{Name: e.Name, Kind: ChangeAdded, After: e.Value})
		case old != e.Value:
			changes = append(changes, AttributeChange{Name: e.Name, Kind: ChangeRebound, Before: old, After: e.Value})
		}
	}
	for _, e := range before.Entries {
		if _, ok := next[e.Name]; !ok {
			changes = append(changes, AttributeChange{Name: e.Name, Kind: ChangeRemoved, Before: e.Value})
		}
	}
	return changes
}
