package resolve

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/sideinput"
)

const tol = 1e-9

func rect(x0, y0, x1, y1 float64) *geos.Geom {
	return geometry.Rect(x0, y0, x1, y1)
}

func newRec(id, class string, m float64, g *geos.Geom) *record.GeoRecord {
	return &record.GeoRecord{
		Geometry:   g,
		Attributes: record.Attributes{"src": id},
		Class:      class,
		Membership: m,
		Tile:       "T1",
		CRS:        "EPSG:32723",
		ID:         id,
		Parent:     "P-" + id,
	}
}

func newResolver(t *testing.T, mode Mode, wc *sideinput.WorkerContext) *Resolver {
	t.Helper()
	r, err := New(mode, wc, WithIDGenerator(record.NewSequenceGenerator("out-")))
	require.NoError(t, err)
	return r
}

func resolve(t *testing.T, r *Resolver, batches ...[]*record.GeoRecord) Result {
	t.Helper()
	res, err := r.Resolve(context.Background(), Group{Key: "g", Batches: batches})
	require.NoError(t, err)
	return res
}

// rasterContext has a 10x10 raster of unit pixels over [0,10]x[0,10] for
// image "img", tile "T1".
func rasterContext() *sideinput.WorkerContext {
	meta := sideinput.RasterMeta{Width: 10, Height: 10, Bounds: orb.Bound{Max: orb.Point{10, 10}}}
	return sideinput.New(nil, nil, "", nil, sideinput.WithRasterMeta("img", "T1", meta))
}

func geoms(recs []*record.GeoRecord) []*geos.Geom {
	out := make([]*geos.Geom, len(recs))
	for i, r := range recs {
		out[i] = r.Geometry
	}
	return out
}

func totalArea(recs []*record.GeoRecord) float64 {
	a := 0.0
	for _, r := range recs {
		a += r.Geometry.Area()
	}
	return a
}

// requireSameShape asserts that a and b cover the same area.
func requireSameShape(t *testing.T, a, b *geos.Geom) {
	t.Helper()
	d1, err := geometry.Difference(a, b)
	require.NoError(t, err)
	d2, err := geometry.Difference(b, a)
	require.NoError(t, err)
	require.InDelta(t, 0, d1.Area()+d2.Area(), 1e-6, "shapes differ: %s vs %s", a.ToWKT(), b.ToWKT())
}

// requireNoOverlap asserts that no two records overlap with positive area.
func requireNoOverlap(t *testing.T, recs []*record.GeoRecord) {
	t.Helper()
	for i := range recs {
		for j := i + 1; j < len(recs); j++ {
			a, err := geometry.OverlapArea(recs[i].Geometry, recs[j].Geometry)
			require.NoError(t, err)
			require.InDelta(t, 0, a, 1e-6, "%s overlaps %s", recs[i].ID, recs[j].ID)
		}
	}
}

// requireCoverage asserts that the union of out equals the union of in.
func requireCoverage(t *testing.T, in, out []*record.GeoRecord) {
	t.Helper()
	uin, err := geometry.RepairAndUnion(geoms(in))
	require.NoError(t, err)
	uout, err := geometry.RepairAndUnion(geoms(out))
	require.NoError(t, err)
	requireSameShape(t, uin, uout)
}

func requireDistinctIDs(t *testing.T, recs []*record.GeoRecord) {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range recs {
		require.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
		require.NoError(t, record.Validate(r))
	}
}
