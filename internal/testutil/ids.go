package testutil

import "github.com/roach88/georesolve/internal/record"

// SequenceIDs returns a generator yielding prefix1, prefix2, ...
//
// Scenario runs pass one to the resolver and another to the engine so that
// golden snapshots carry stable ids.
func SequenceIDs(prefix string) *record.SequenceGenerator {
	return record.NewSequenceGenerator(prefix)
}

// ConstantIDs generates the same id every time.
//
// Tests use it to force id collisions and exercise reissuing.
//
// Thread-safety: ConstantIDs is stateless and safe for concurrent use.
type ConstantIDs struct {
	id string
}

// NewConstantIDs creates a generator that always returns id.
//
// If id is empty, Generate() returns "test-id".
func NewConstantIDs(id string) *ConstantIDs {
	if id == "" {
		id = "test-id"
	}
	return &ConstantIDs{id: id}
}

// Generate returns the constant id.
//
// Implements record.IDGenerator.
func (g *ConstantIDs) Generate() string {
	return g.id
}
