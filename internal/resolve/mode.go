package resolve

import (
	"fmt"
	"strings"
)

// Mode selects the resolution algorithm and carries its parameters.
// The set of modes is closed; parameters are fixed at construction.
type Mode interface {
	// Name is the configuration name of the mode.
	Name() string

	// DefaultGroupBy names the record property groups are keyed on.
	DefaultGroupBy() string

	validate() error
}

// Group-by keys.
const (
	GroupByTile   = "tile"
	GroupByParent = "parent"
	GroupByID     = "id"
)

// Raster paints each tile's records onto the tile's pixel grid in
// ascending membership order and vectorises the surviving pixels.
type Raster struct {
	// MinArea drops output components smaller than this.
	MinArea float64

	// Image names the raster whose per-tile metadata defines the pixels.
	Image string
}

// NestedLoop compares records of earlier batches against later batches and
// subtracts the higher-membership geometry from the lower.
type NestedLoop struct {
	// MinArea drops pieces of shrunk records smaller than this.
	MinArea float64
}

// Duplicate keeps one record per id: highest membership, then greatest class.
type Duplicate struct{}

// Clip emits each record once per ROI it meets, clipped to the ROI.
type Clip struct {
	MinArea float64
}

// MergeAggregate unions all same-class records of a group per class.
type MergeAggregate struct {
	// Classes is the allow-list; other classes pass through.
	Classes []string
}

// MergeIndexed grows each record by absorbing intersecting same-class
// neighbours found through a spatial index.
type MergeIndexed struct {
	Classes []string
}

// MergeResolved reunites fragments sharing an id.
type MergeResolved struct{}

func (Raster) Name() string         { return "raster" }
func (NestedLoop) Name() string     { return "nested_loop" }
func (Duplicate) Name() string      { return "duplicate" }
func (Clip) Name() string           { return "clip" }
func (MergeAggregate) Name() string { return "merge_aggregate" }
func (MergeIndexed) Name() string   { return "merge_indexed" }
func (MergeResolved) Name() string  { return "merge_resolved" }

func (Raster) DefaultGroupBy() string         { return GroupByTile }
func (NestedLoop) DefaultGroupBy() string     { return GroupByTile }
func (Duplicate) DefaultGroupBy() string      { return GroupByID }
func (Clip) DefaultGroupBy() string           { return GroupByTile }
func (MergeAggregate) DefaultGroupBy() string { return GroupByParent }
func (MergeIndexed) DefaultGroupBy() string   { return GroupByParent }
func (MergeResolved) DefaultGroupBy() string  { return GroupByID }

func (m Raster) validate() error {
	if m.MinArea < 0 {
		return fmt.Errorf("raster: min area must be >= 0, got %v", m.MinArea)
	}
	if m.Image == "" {
		return fmt.Errorf("raster: image is required")
	}
	return nil
}

func (m NestedLoop) validate() error {
	if m.MinArea < 0 {
		return fmt.Errorf("nested_loop: min area must be >= 0, got %v", m.MinArea)
	}
	return nil
}

func (Duplicate) validate() error { return nil }

func (m Clip) validate() error {
	if m.MinArea < 0 {
		return fmt.Errorf("clip: min area must be >= 0, got %v", m.MinArea)
	}
	return nil
}

func (m MergeAggregate) validate() error { return validateClasses("merge_aggregate", m.Classes) }
func (m MergeIndexed) validate() error   { return validateClasses("merge_indexed", m.Classes) }
func (MergeResolved) validate() error    { return nil }

func validateClasses(mode string, classes []string) error {
	if len(classes) == 0 {
		return fmt.Errorf("%s: class allow-list is empty", mode)
	}
	for _, c := range classes {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%s: blank class in allow-list", mode)
		}
	}
	return nil
}

// Params is the flat form of a mode used by configuration files.
type Params struct {
	Name    string
	MinArea float64
	Image   string
	Classes []string
}

// ModeNames lists every mode name.
var ModeNames = []string{
	"raster", "nested_loop", "duplicate", "clip",
	"merge_aggregate", "merge_indexed", "merge_resolved",
}

// ParseMode builds and validates the mode named by p.Name.
func ParseMode(p Params) (Mode, error) {
	var m Mode
	switch p.Name {
	case "raster":
		m = Raster{MinArea: p.MinArea, Image: p.Image}
	case "nested_loop":
		m = NestedLoop{MinArea: p.MinArea}
	case "duplicate":
		m = Duplicate{}
	case "clip":
		m = Clip{MinArea: p.MinArea}
	case "merge_aggregate":
		m = MergeAggregate{Classes: append([]string(nil), p.Classes...)}
	case "merge_indexed":
		m = MergeIndexed{Classes: append([]string(nil), p.Classes...)}
	case "merge_resolved":
		m = MergeResolved{}
	default:
		return nil, fmt.Errorf("unknown mode %q (want one of %s)", p.Name, strings.Join(ModeNames, ", "))
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func classSet(classes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return set
}
