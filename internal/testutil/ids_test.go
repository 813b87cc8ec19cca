package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/georesolve/internal/record"
)

func TestSequenceIDs(t *testing.T) {
	gen := SequenceIDs("r-")
	assert.Equal(t, "r-1", gen.Generate())
	assert.Equal(t, "r-2", gen.Generate())

	other := SequenceIDs("r-")
	assert.Equal(t, "r-1", other.Generate(), "generators do not share state")
}

func TestConstantIDs(t *testing.T) {
	gen := NewConstantIDs("fixed")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "fixed", gen.Generate())
	}
	assert.Equal(t, "test-id", NewConstantIDs("").Generate())
}

func TestConstantIDs_Concurrent(t *testing.T) {
	gen := NewConstantIDs("x")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "x", gen.Generate())
		}()
	}
	wg.Wait()
}

func TestConstantIDs_ForcesCollisions(t *testing.T) {
	recs := []*record.GeoRecord{
		Record("a", "water", "", 0, 0, 0, 1, 1),
		Record("a", "water", "", 0, 1, 0, 2, 1),
		Record("", "water", "", 0, 2, 0, 3, 1),
	}
	n := record.EnsureUniqueIDs(recs, NewConstantIDs("dup"))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "dup", "dup"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})
}
