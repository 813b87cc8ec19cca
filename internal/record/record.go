// Package record defines GeoRecord, the classified spatial object that flows
// through every resolve mode, together with its wire tuple codec and the
// identifier generators used when geometries are split or derived.
package record

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
)

// Attributes is the opaque pass-through bag copied between stages.
// The resolver never interprets its contents.
type Attributes map[string]string

// Clone returns a deep copy. A nil bag clones to an empty one.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// GeoRecord is one classified spatial object.
type GeoRecord struct {
	// Geometry is polygonal, in the CRS named by CRS.
	Geometry *geos.Geom

	// Attributes is copied verbatim by every mode.
	Attributes Attributes

	// Class is the classification label.
	Class string

	// Membership is the fuzzy confidence of Class, in [0,1].
	// Resolved output always carries 0.
	Membership float64

	// Tile is the grid cell code the record belongs to, "" after a merge.
	Tile string

	// CRS identifies the coordinate reference system, e.g. "EPSG:32723".
	CRS string

	// ID is unique within an output batch. It is regenerated whenever
	// the geometry is split or derived.
	ID string

	// Parent points at the logical predecessor (ROI code or pre-split id).
	Parent string

	// Removed tombstones a record absorbed during processing.
	// Tombstoned records are never emitted.
	Removed bool

	// Area caches the geometry area when the upstream stage supplied it.
	Area *float64
}

// Clone returns a copy that can be modified without affecting r.
// The geometry pointer is shared; overlay operations always produce new
// geometries rather than mutating in place.
func (r *GeoRecord) Clone() *GeoRecord {
	c := *r
	c.Attributes = r.Attributes.Clone()
	if r.Area != nil {
		a := *r.Area
		c.Area = &a
	}
	return &c
}

// Derive returns a new record for a geometry split or computed from r.
// Class, CRS, Tile, Membership and Parent are inherited; attributes are
// deep-copied; the id is left for the caller to assign.
func (r *GeoRecord) Derive(g *geos.Geom) *GeoRecord {
	area := geometry.Area(g)
	return &GeoRecord{
		Geometry:   g,
		Attributes: r.Attributes.Clone(),
		Class:      r.Class,
		Membership: r.Membership,
		Tile:       r.Tile,
		CRS:        r.CRS,
		Parent:     r.Parent,
		Area:       &area,
	}
}

// AreaOrCompute returns the cached area when present, computing it otherwise.
func (r *GeoRecord) AreaOrCompute() float64 {
	if r.Area != nil {
		return *r.Area
	}
	return geometry.Area(r.Geometry)
}

// SetGeometry replaces the geometry and refreshes the cached area.
func (r *GeoRecord) SetGeometry(g *geos.Geom) {
	r.Geometry = g
	a := geometry.Area(g)
	r.Area = &a
}

// ErrInvalidRecord is wrapped by Validate failures.
var ErrInvalidRecord = errors.New("invalid record")

// ErrBadGeometry marks a tuple whose geometry is missing, empty or cannot be
// decoded.
var ErrBadGeometry = errors.New("bad geometry")

// Validate checks the emitted-record invariant: non-empty geometry, a class
// and an id. Tombstoned records are never valid output.
func Validate(r *GeoRecord) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case r.Removed:
		return fmt.Errorf("%w: %s is tombstoned", ErrInvalidRecord, r.ID)
	case geometry.IsEmpty(r.Geometry):
		return fmt.Errorf("%w: %s has empty geometry", ErrInvalidRecord, r.ID)
	case r.Class == "":
		return fmt.Errorf("%w: %s has no class", ErrInvalidRecord, r.ID)
	case r.ID == "":
		return fmt.Errorf("%w: record without id", ErrInvalidRecord)
	}
	return nil
}

// EnsureUniqueIDs reissues the id of every record whose id already appeared
// earlier in recs (or is empty). It returns the number of reissued ids.
func EnsureUniqueIDs(recs []*GeoRecord, gen IDGenerator) int {
	seen := make(map[string]struct{}, len(recs))
	reissued := 0
	for _, r := range recs {
		if _, dup := seen[r.ID]; dup || r.ID == "" {
			r.ID = gen.Generate()
			reissued++
		}
		seen[r.ID] = struct{}{}
	}
	return reissued
}

// Live returns the records of recs that are not tombstoned, preserving order.
func Live(recs []*GeoRecord) []*GeoRecord {
	out := make([]*GeoRecord, 0, len(recs))
	for _, r := range recs {
		if r != nil && !r.Removed {
			out = append(out, r)
		}
	}
	return out
}
