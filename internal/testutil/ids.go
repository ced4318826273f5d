package testutil

// FixedIDGenerator generates the same ID every time.
//
// Unlike engine.FixedGenerator which returns IDs in sequence, this generator
// never runs out, which suits scenarios that make an unknown number of
// navigation calls and only compare outcomes.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed ID generator.
// If id is empty, Generate() returns "test-nav-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-nav-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
