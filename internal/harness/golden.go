package harness

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/georesolve/internal/geometry"
)

// Snapshot is the golden form of a scenario run. Geometry is reduced to
// area and bounding box, rounded to 1e-6, so snapshots do not depend on
// the vertex order chosen by the overlay engine.
type Snapshot struct {
	Scenario string           `json:"scenario"`
	Mode     string           `json:"mode"`
	Groups   int              `json:"groups"`
	In       int              `json:"in"`
	Out      int              `json:"out"`
	Skipped  map[string]int   `json:"skipped,omitempty"`
	Records  []RecordSnapshot `json:"records"`
	Errors   []string         `json:"errors,omitempty"`
}

// RecordSnapshot is the golden form of one output record.
type RecordSnapshot struct {
	ID         string            `json:"id"`
	Class      string            `json:"class"`
	Parent     string            `json:"parent,omitempty"`
	Tile       string            `json:"tile,omitempty"`
	Membership float64           `json:"membership"`
	Area       float64           `json:"area"`
	Bounds     [4]float64        `json:"bounds"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewSnapshot builds the snapshot of a finished run.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{
		Scenario: name,
		Mode:     result.Summary.Mode,
		Groups:   result.Summary.Groups,
		In:       result.Summary.In,
		Out:      result.Summary.Out,
		Records:  make([]RecordSnapshot, 0, len(result.Records)),
		Errors:   result.Errors,
	}
	if len(result.Summary.Skipped) > 0 {
		snap.Skipped = result.Summary.Skipped
	}
	for _, r := range result.Records {
		b := geometry.Bounds(r.Geometry)
		rs := RecordSnapshot{
			ID:         r.ID,
			Class:      r.Class,
			Parent:     r.Parent,
			Tile:       r.Tile,
			Membership: r.Membership,
			Area:       round6(geometry.Area(r.Geometry)),
			Bounds:     [4]float64{round6(b.Min[0]), round6(b.Min[1]), round6(b.Max[0]), round6(b.Max[1])},
		}
		if len(r.Attributes) > 0 {
			rs.Attributes = r.Attributes
		}
		snap.Records = append(snap.Records, rs)
	}
	return snap
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's snapshot against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}

func round6(v float64) float64 {
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
