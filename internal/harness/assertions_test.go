package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
)

func outRec(id, class, parent string, x0, y0, x1, y1 float64) *record.GeoRecord {
	return &record.GeoRecord{
		Geometry: geometry.Rect(x0, y0, x1, y1),
		Class:    class,
		ID:       id,
		Parent:   parent,
	}
}

func intPtr(n int) *int { return &n }

func TestAssertCount(t *testing.T) {
	recs := []*record.GeoRecord{
		outRec("a", "water", "", 0, 0, 1, 1),
		outRec("b", "forest", "", 1, 0, 2, 1),
		outRec("c", "water", "", 2, 0, 3, 1),
	}
	assert.NoError(t, assertCount(recs, Assertion{Count: intPtr(3)}))
	assert.NoError(t, assertCount(recs, Assertion{Count: intPtr(2), Class: "water"}))

	err := assertCount(recs, Assertion{Count: intPtr(1), Class: "forest"})
	assert.NoError(t, err)

	err = assertCount(recs, Assertion{Count: intPtr(4)})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "3 records", ae.Actual)
}

func TestAssertNoOverlap(t *testing.T) {
	touching := []*record.GeoRecord{outRec("a", "w", "", 0, 0, 1, 1), outRec("b", "w", "", 1, 0, 2, 1)}
	assert.NoError(t, assertNoOverlap(touching))

	overlapping := []*record.GeoRecord{outRec("a", "w", "", 0, 0, 2, 2), outRec("b", "w", "", 1, 1, 3, 3)}
	err := assertNoOverlap(overlapping)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a and b overlap by 1")
}

func TestAssertCoverage(t *testing.T) {
	in := []*record.GeoRecord{outRec("a", "w", "", 0, 0, 2, 2), outRec("b", "w", "", 1, 1, 3, 3)}
	gone := outRec("g", "w", "", 10, 10, 11, 11)
	gone.Removed = true
	in = append(in, gone)

	split := []*record.GeoRecord{outRec("a", "w", "", 0, 0, 2, 2), outRec("b1", "w", "", 2, 1, 3, 3), outRec("b2", "w", "", 1, 2, 2, 3)}
	assert.NoError(t, assertCoverage(in, split), "tombstoned inputs are not expected in the output")

	short := split[:2]
	err := assertCoverage(in, short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 1")

	assert.NoError(t, assertCoverage(nil, nil))
}

func TestAssertClassAt(t *testing.T) {
	recs := []*record.GeoRecord{outRec("a", "water", "", 0, 0, 1, 1), outRec("b", "forest", "", 1, 0, 2, 1)}

	assert.NoError(t, assertClassAt(recs, Assertion{X: 0.5, Y: 0.5, Class: "water"}))
	assert.NoError(t, assertClassAt(recs, Assertion{X: 5, Y: 5}))
	assert.Error(t, assertClassAt(recs, Assertion{X: 1.5, Y: 0.5, Class: "water"}))
	assert.Error(t, assertClassAt(recs, Assertion{X: 0.5, Y: 0.5}))

	// A point on the shared edge is covered by both classes.
	assert.Error(t, assertClassAt(recs, Assertion{X: 1, Y: 0.5, Class: "water"}))
}

func TestAssertMembershipZero(t *testing.T) {
	recs := []*record.GeoRecord{outRec("a", "water", "", 0, 0, 1, 1)}
	assert.NoError(t, assertMembershipZero(recs))

	recs[0].Membership = 0.3
	assert.ErrorContains(t, assertMembershipZero(recs), "a has membership 0.3")
}

func TestAssertDistinctIDs(t *testing.T) {
	recs := []*record.GeoRecord{outRec("a", "water", "", 0, 0, 1, 1), outRec("b", "water", "", 1, 0, 2, 1)}
	assert.NoError(t, assertDistinctIDs(recs))

	recs[1].ID = "a"
	assert.ErrorContains(t, assertDistinctIDs(recs), "appears more than once")

	recs[1].ID = "b"
	recs[1].Class = ""
	assert.ErrorContains(t, assertDistinctIDs(recs), "has no class")
}

func TestAssertParent(t *testing.T) {
	recs := []*record.GeoRecord{outRec("a", "water", "R1", 0, 0, 1, 1), outRec("b", "forest", "R2", 1, 0, 2, 1)}
	assert.NoError(t, assertParent(recs, Assertion{Class: "water", Parent: "R1"}))
	assert.Error(t, assertParent(recs, Assertion{Parent: "R1"}))
}

func TestEvaluateAssertions_CollectsAll(t *testing.T) {
	result := &Result{Records: []*record.GeoRecord{outRec("a", "water", "R1", 0, 0, 1, 1)}}
	result.Records[0].Membership = 1

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertCount, Count: intPtr(1)},
		{Type: AssertMembershipZero},
		{Type: AssertParent, Parent: "R9"},
		{Type: "bogus"},
	})
	assert.Len(t, errs, 3)
}
