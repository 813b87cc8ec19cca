package geometry

import (
	"github.com/twpayne/go-geos"
)

// RepairAndUnion unions geoms into one geometry. The inputs are gathered into
// a geometry collection and buffered by zero, which dissolves shared edges
// and repairs self-intersections left by rasterisation or prior overlays.
//
// The inputs are cloned; callers keep ownership of their geometries.
func RepairAndUnion(geoms []*geos.Geom) (*geos.Geom, error) {
	return RepairAndUnionIn(geos.DefaultContext, geoms)
}

// RepairAndUnionIn is RepairAndUnion for geometries of ctx.
func RepairAndUnionIn(ctx *geos.Context, geoms []*geos.Geom) (*geos.Geom, error) {
	parts := make([]*geos.Geom, 0, len(geoms))
	for _, g := range geoms {
		if IsEmpty(g) {
			continue
		}
		parts = append(parts, g)
	}
	if len(parts) == 0 {
		return nil, ErrEmptyGeometry
	}

	var out *geos.Geom
	err := Safe("union", func() error {
		clones := make([]*geos.Geom, len(parts))
		for i, g := range parts {
			clones[i] = g.Clone()
		}
		coll := ctx.NewCollection(geos.TypeIDGeometryCollection, clones)
		out = coll.Buffer(0, 8)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if IsEmpty(out) {
		return nil, ErrEmptyGeometry
	}
	return out, nil
}

// Repair returns g unchanged when it is a valid polygonal geometry and the
// zero-buffer repair of its polygonal part otherwise.
func Repair(g *geos.Geom) (*geos.Geom, error) {
	return RepairIn(geos.DefaultContext, g)
}

// RepairIn is Repair for a geometry of ctx.
func RepairIn(ctx *geos.Context, g *geos.Geom) (*geos.Geom, error) {
	if IsEmpty(g) {
		return nil, ErrEmptyGeometry
	}
	var valid bool
	if err := Safe("validate", func() error {
		valid = g.IsValid()
		return nil
	}); err != nil {
		return nil, err
	}
	if valid {
		return PolygonalIn(ctx, g)
	}
	return RepairAndUnionIn(ctx, []*geos.Geom{g})
}

// SplitComponents flattens g into one geometry per polygon. Multi-polygons
// and collections are walked recursively; points and lines are dropped.
// Each returned polygon is an independent clone.
func SplitComponents(g *geos.Geom) []*geos.Geom {
	parts, _ := splitCounting(g)
	return parts
}

// SplitPolygons is SplitComponents that also reports how many non-polygon
// leftovers were discarded.
func SplitPolygons(g *geos.Geom) (polygons []*geos.Geom, dropped int) {
	return splitCounting(g)
}

func splitCounting(g *geos.Geom) ([]*geos.Geom, int) {
	if IsEmpty(g) {
		return nil, 0
	}
	var out []*geos.Geom
	dropped := 0
	var walk func(*geos.Geom)
	walk = func(cur *geos.Geom) {
		if cur.IsEmpty() {
			return
		}
		switch cur.TypeID() {
		case geos.TypeIDPolygon:
			out = append(out, cur.Clone())
		case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
			for i := 0; i < cur.NumGeometries(); i++ {
				walk(cur.Geometry(i))
			}
		default:
			dropped++
		}
	}
	walk(g)
	return out, dropped
}

// Polygonal drops non-polygon parts of g and returns a Polygon or
// MultiPolygon. ErrEmptyGeometry is returned when nothing polygonal remains.
func Polygonal(g *geos.Geom) (*geos.Geom, error) {
	return PolygonalIn(geos.DefaultContext, g)
}

// PolygonalIn is Polygonal for a geometry of ctx.
func PolygonalIn(ctx *geos.Context, g *geos.Geom) (*geos.Geom, error) {
	if IsEmpty(g) {
		return nil, ErrEmptyGeometry
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return g, nil
	}
	parts := SplitComponents(g)
	switch len(parts) {
	case 0:
		return nil, ErrEmptyGeometry
	case 1:
		return parts[0], nil
	}
	var out *geos.Geom
	err := Safe("collect", func() error {
		out = ctx.NewCollection(geos.TypeIDMultiPolygon, parts)
		return nil
	})
	return out, err
}

// FilterMinArea keeps polygons with positive area of at least minArea.
func FilterMinArea(geoms []*geos.Geom, minArea float64) (kept []*geos.Geom, dropped int) {
	kept = make([]*geos.Geom, 0, len(geoms))
	for _, g := range geoms {
		a := Area(g)
		if a <= 0 || a < minArea {
			dropped++
			continue
		}
		kept = append(kept, g)
	}
	return kept, dropped
}

// Difference returns a minus b.
func Difference(a, b *geos.Geom) (*geos.Geom, error) {
	var out *geos.Geom
	err := Safe("difference", func() error {
		out = a.Difference(b)
		return nil
	})
	return out, err
}

// Intersection returns the overlay of a and b.
func Intersection(a, b *geos.Geom) (*geos.Geom, error) {
	var out *geos.Geom
	err := Safe("intersection", func() error {
		out = a.Intersection(b)
		return nil
	})
	return out, err
}

// Intersects reports whether a and b share any point.
func Intersects(a, b *geos.Geom) (bool, error) {
	var ok bool
	err := Safe("intersects", func() error {
		ok = a.Intersects(b)
		return nil
	})
	return ok, err
}

// Covers reports whether every point of b lies in a.
func Covers(a, b *geos.Geom) (bool, error) {
	var ok bool
	err := Safe("covers", func() error {
		ok = a.Covers(b)
		return nil
	})
	return ok, err
}

// OverlapArea returns the area of the intersection of a and b.
func OverlapArea(a, b *geos.Geom) (float64, error) {
	inter, err := Intersection(a, b)
	if err != nil {
		return 0, err
	}
	return Area(inter), nil
}
