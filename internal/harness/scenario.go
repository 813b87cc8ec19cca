package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/georesolve/internal/config"
	"github.com/roach88/georesolve/internal/resolve"
)

// Scenario defines one resolve scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Mode selects and parameterises the resolve mode.
	Mode ModeSpec `yaml:"mode"`

	// GroupBy overrides the mode's default group key.
	GroupBy string `yaml:"group_by,omitempty"`

	// Grid is the tile grid; required when ROIs are given.
	Grid *config.Grid `yaml:"grid,omitempty"`

	// ROIs are the regions of interest used by clip.
	ROIs []ROISpec `yaml:"rois,omitempty"`

	// Rasters preloads per-tile raster metadata used by raster mode.
	Rasters []RasterSpec `yaml:"rasters,omitempty"`

	// Batches are the independently produced inputs, in order.
	Batches [][]RecordSpec `yaml:"batches"`

	// Assertions validate the output batch.
	Assertions []Assertion `yaml:"assertions"`
}

// ModeSpec is the flat mode configuration.
type ModeSpec struct {
	Name    string   `yaml:"name"`
	MinArea float64  `yaml:"min_area,omitempty"`
	Image   string   `yaml:"image,omitempty"`
	Classes []string `yaml:"classes,omitempty"`
}

// ROISpec is one region of interest.
type ROISpec struct {
	Code     string `yaml:"code"`
	Geometry string `yaml:"geometry"`
}

// RasterSpec is the metadata of one image tile.
type RasterSpec struct {
	Image  string     `yaml:"image"`
	Tile   string     `yaml:"tile"`
	Width  int        `yaml:"width"`
	Height int        `yaml:"height"`
	Bounds [4]float64 `yaml:"bounds"` // west, south, east, north
}

// RecordSpec is one input record. Fields map onto the wire tuple.
type RecordSpec struct {
	ID         string            `yaml:"id"`
	Class      string            `yaml:"class"`
	Membership float64           `yaml:"membership"`
	Tile       string            `yaml:"tile,omitempty"`
	Parent     string            `yaml:"parent,omitempty"`
	CRS        string            `yaml:"crs,omitempty"`
	Geometry   string            `yaml:"geometry"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Removed    bool              `yaml:"removed,omitempty"`
}

// Assertion validates the output batch.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected number of records (count).
	Count *int `yaml:"count,omitempty"`

	// Class filters count and parent, and is the expected class of class_at.
	Class string `yaml:"class,omitempty"`

	// X and Y locate the sample point (class_at).
	X float64 `yaml:"x,omitempty"`
	Y float64 `yaml:"y,omitempty"`

	// Parent is the expected parent (parent).
	Parent string `yaml:"parent,omitempty"`
}

// Assertion type constants.
const (
	AssertCount          = "count"
	AssertNoOverlap      = "no_overlap"
	AssertCoverage       = "coverage"
	AssertClassAt        = "class_at"
	AssertMembershipZero = "membership_zero"
	AssertDistinctIDs    = "distinct_ids"
	AssertParent         = "parent"
)

var assertionTypes = map[string]bool{
	AssertCount:          true,
	AssertNoOverlap:      true,
	AssertCoverage:       true,
	AssertClassAt:        true,
	AssertMembershipZero: true,
	AssertDistinctIDs:    true,
	AssertParent:         true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario under dir, sorted by path.
// A path naming a file loads just that file.
func LoadScenarios(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios: %w", err)
	}
	if !info.IsDir() {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []*Scenario{s}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	scenarios := make([]*Scenario, 0, len(files))
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := s.resolveMode(); err != nil {
		return fmt.Errorf("mode: %w", err)
	}

	if len(s.Batches) == 0 {
		return fmt.Errorf("batches list is required and must be non-empty")
	}

	if len(s.ROIs) > 0 && s.Grid == nil {
		return fmt.Errorf("rois require a grid")
	}

	for i, batch := range s.Batches {
		for k, r := range batch {
			if r.Geometry == "" {
				return fmt.Errorf("batches[%d][%d]: geometry is required", i, k)
			}
			if r.Class == "" {
				return fmt.Errorf("batches[%d][%d]: class is required", i, k)
			}
		}
	}

	for i, a := range s.Assertions {
		if !assertionTypes[a.Type] {
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		if a.Type == AssertCount && a.Count == nil {
			return fmt.Errorf("assertions[%d]: count requires count", i)
		}
		if a.Type == AssertParent && a.Parent == "" {
			return fmt.Errorf("assertions[%d]: parent requires parent", i)
		}
	}

	return nil
}

func (s *Scenario) resolveMode() (resolve.Mode, error) {
	return resolve.ParseMode(resolve.Params{
		Name:    s.Mode.Name,
		MinArea: s.Mode.MinArea,
		Image:   s.Mode.Image,
		Classes: s.Mode.Classes,
	})
}
