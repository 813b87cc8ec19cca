package geometry

import (
	"github.com/twpayne/go-geos"
)

// Prepared is a geometry indexed for repeated point-in-polygon tests.
type Prepared struct {
	ctx *geos.Context
	pg  *geos.PrepGeom
}

// Prepare builds the point-test index for g.
func Prepare(g *geos.Geom) (*Prepared, error) {
	return PrepareIn(geos.DefaultContext, g)
}

// PrepareIn is Prepare for a geometry of ctx.
func PrepareIn(ctx *geos.Context, g *geos.Geom) (*Prepared, error) {
	if IsEmpty(g) {
		return nil, ErrEmptyGeometry
	}
	var p *Prepared
	err := Safe("prepare", func() error {
		p = &Prepared{ctx: ctx, pg: g.Prepare()}
		return nil
	})
	return p, err
}

// CoversXY reports whether the point (x, y) lies in the geometry or on its
// boundary.
func (p *Prepared) CoversXY(x, y float64) bool {
	return p.pg.Covers(p.ctx.NewPointFromXY(x, y))
}
