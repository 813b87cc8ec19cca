package harness

import (
	"fmt"
	"strings"

	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
)

// areaTolerance absorbs floating-point noise in overlay results.
const areaTolerance = 1e-6

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Records  []*record.GeoRecord // Output records for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Records) > 0 {
		fmt.Fprintf(&buf, "\nOutput records:\n")
		for i, r := range e.Records {
			fmt.Fprintf(&buf, "  [%d] %s class=%s parent=%s area=%g\n",
				i+1, r.ID, r.Class, r.Parent, geometry.Area(r.Geometry))
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCount:
		return assertCount(result.Records, a)
	case AssertNoOverlap:
		return assertNoOverlap(result.Records)
	case AssertCoverage:
		return assertCoverage(result.Inputs, result.Records)
	case AssertClassAt:
		return assertClassAt(result.Records, a)
	case AssertMembershipZero:
		return assertMembershipZero(result.Records)
	case AssertDistinctIDs:
		return assertDistinctIDs(result.Records)
	case AssertParent:
		return assertParent(result.Records, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertCount checks the number of output records, optionally of one class.
func assertCount(recs []*record.GeoRecord, a Assertion) error {
	n := 0
	for _, r := range recs {
		if a.Class == "" || r.Class == a.Class {
			n++
		}
	}
	if n == *a.Count {
		return nil
	}
	what := "records"
	if a.Class != "" {
		what = a.Class + " records"
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%d %s", *a.Count, what),
		Actual:   fmt.Sprintf("%d %s", n, what),
		Records:  recs,
	}
}

// assertNoOverlap checks that no two output records share positive area.
func assertNoOverlap(recs []*record.GeoRecord) error {
	for i := range recs {
		for j := i + 1; j < len(recs); j++ {
			area, err := geometry.OverlapArea(recs[i].Geometry, recs[j].Geometry)
			if err != nil {
				return fmt.Errorf("no_overlap: %s vs %s: %w", recs[i].ID, recs[j].ID, err)
			}
			if area > areaTolerance {
				return &AssertionError{
					Type:     AssertNoOverlap,
					Expected: "pairwise disjoint interiors",
					Actual:   fmt.Sprintf("%s and %s overlap by %g", recs[i].ID, recs[j].ID, area),
					Records:  recs,
				}
			}
		}
	}
	return nil
}

// assertCoverage checks that the output union equals the union of the live
// inputs.
func assertCoverage(inputs, recs []*record.GeoRecord) error {
	in, err := union(record.Live(inputs))
	if err != nil {
		return fmt.Errorf("coverage: inputs: %w", err)
	}
	out, err := union(recs)
	if err != nil {
		return fmt.Errorf("coverage: outputs: %w", err)
	}

	missing, err := differenceArea(in, out)
	if err != nil {
		return fmt.Errorf("coverage: %w", err)
	}
	extra, err := differenceArea(out, in)
	if err != nil {
		return fmt.Errorf("coverage: %w", err)
	}
	if missing > areaTolerance || extra > areaTolerance {
		return &AssertionError{
			Type:     AssertCoverage,
			Expected: fmt.Sprintf("output union equal to input union (area %g)", geometry.Area(in)),
			Actual:   fmt.Sprintf("missing %g, extra %g", missing, extra),
			Records:  recs,
		}
	}
	return nil
}

// assertClassAt checks the class of the record covering (x, y). An empty
// class asserts that no record covers the point.
func assertClassAt(recs []*record.GeoRecord, a Assertion) error {
	var found []string
	for _, r := range recs {
		p, err := geometry.Prepare(r.Geometry)
		if err != nil {
			return fmt.Errorf("class_at: %s: %w", r.ID, err)
		}
		if p.CoversXY(a.X, a.Y) {
			found = append(found, r.Class)
		}
	}

	actual := "nothing"
	if len(found) > 0 {
		actual = strings.Join(found, ", ")
	}
	switch {
	case a.Class == "" && len(found) == 0:
		return nil
	case a.Class != "" && len(found) > 0 && allEqual(found, a.Class):
		return nil
	}

	expected := "nothing"
	if a.Class != "" {
		expected = a.Class
	}
	return &AssertionError{
		Type:     AssertClassAt,
		Expected: fmt.Sprintf("%s at (%g, %g)", expected, a.X, a.Y),
		Actual:   actual,
		Records:  recs,
	}
}

// assertMembershipZero checks that every output record is resolved.
func assertMembershipZero(recs []*record.GeoRecord) error {
	for _, r := range recs {
		if r.Membership != 0 {
			return &AssertionError{
				Type:     AssertMembershipZero,
				Expected: "membership 0 on every record",
				Actual:   fmt.Sprintf("%s has membership %g", r.ID, r.Membership),
				Records:  recs,
			}
		}
	}
	return nil
}

// assertDistinctIDs checks id uniqueness and the emitted-record invariant.
func assertDistinctIDs(recs []*record.GeoRecord) error {
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if err := record.Validate(r); err != nil {
			return &AssertionError{
				Type:     AssertDistinctIDs,
				Expected: "valid records",
				Actual:   err.Error(),
				Records:  recs,
			}
		}
		if seen[r.ID] {
			return &AssertionError{
				Type:     AssertDistinctIDs,
				Expected: "unique ids",
				Actual:   fmt.Sprintf("id %s appears more than once", r.ID),
				Records:  recs,
			}
		}
		seen[r.ID] = true
	}
	return nil
}

// assertParent checks the parent of every record, optionally of one class.
func assertParent(recs []*record.GeoRecord, a Assertion) error {
	for _, r := range recs {
		if a.Class != "" && r.Class != a.Class {
			continue
		}
		if r.Parent != a.Parent {
			return &AssertionError{
				Type:     AssertParent,
				Expected: fmt.Sprintf("parent %s", a.Parent),
				Actual:   fmt.Sprintf("%s has parent %q", r.ID, r.Parent),
				Records:  recs,
			}
		}
	}
	return nil
}

func union(recs []*record.GeoRecord) (*geos.Geom, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	geoms := make([]*geos.Geom, len(recs))
	for i, r := range recs {
		geoms[i] = r.Geometry
	}
	return geometry.RepairAndUnion(geoms)
}

// differenceArea returns area(a - b), treating nil as empty.
func differenceArea(a, b *geos.Geom) (float64, error) {
	switch {
	case a == nil:
		return 0, nil
	case b == nil:
		return geometry.Area(a), nil
	}
	d, err := geometry.Difference(a, b)
	if err != nil {
		return 0, err
	}
	return geometry.Area(d), nil
}

func allEqual(values []string, want string) bool {
	for _, v := range values {
		if v != want {
			return false
		}
	}
	return true
}
