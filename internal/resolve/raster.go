package resolve

import (
	"context"
	"math"

	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/priority"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/sideinput"
)

// raster paints the group onto the tile's pixel grid and vectorises it.
//
// Records are painted in ascending membership order, so in a contested
// pixel the highest membership is drawn last and wins. Among equal
// memberships the later draw wins.
func (run *groupRun) raster(ctx context.Context, m Raster, batches [][]*record.GeoRecord) ([]*record.GeoRecord, error) {
	recs := flatten(batches)
	if len(recs) == 0 {
		return nil, nil
	}
	first := recs[0]

	meta, err := run.wc.RasterMeta(ctx, m.Image, first.Tile)
	if err != nil {
		return nil, err
	}

	pl := priority.New(len(recs))
	for _, rec := range recs {
		if rec.Tile != first.Tile {
			run.logger.Debug("record tile differs from group raster",
				"group", run.key, "id", rec.ID, "tile", rec.Tile, "raster_tile", first.Tile)
		}
		pl.Insert(rec)
	}

	canvas := newCanvas(run.geo, meta)
	owners := []*record.GeoRecord{nil} // paint ids start at 1
	for !pl.IsEmpty() {
		rec := pl.MustRemoveFront()
		paintID := int32(len(owners))
		owners = append(owners, rec)

		painted, err := canvas.paint(rec.Geometry, paintID)
		if err != nil {
			run.skip(rec, ReasonGeometryError, err)
			continue
		}
		if !painted {
			run.skip(rec, ReasonOutOfRange, nil)
		}
	}

	shared := first.Attributes
	var out []*record.GeoRecord
	runs := canvas.vectorize()
	for paintID := 1; paintID < len(owners); paintID++ {
		rects := runs[int32(paintID)]
		if len(rects) == 0 {
			continue
		}
		owner := owners[paintID]
		for _, part := range run.unionSplit(owner, rects, m.MinArea) {
			rec := run.emit(owner, part)
			rec.Attributes = shared.Clone()
			rec.CRS = first.CRS
			out = append(out, rec)
		}
	}
	return out, nil
}

// canvas is the per-group label raster. Row 0 is the northern edge.
type canvas struct {
	geo    *geos.Context
	meta   sideinput.RasterMeta
	resX   float64
	resY   float64 // negative
	labels []int32
}

func newCanvas(geo *geos.Context, meta sideinput.RasterMeta) *canvas {
	return &canvas{
		geo:    geo,
		meta:   meta,
		resX:   meta.ResX(),
		resY:   meta.ResY(),
		labels: make([]int32, meta.Width*meta.Height),
	}
}

// pixelRange returns the inclusive pixel window under the geometry's box,
// clipped to the raster. ok is false when the box misses the raster.
func (c *canvas) pixelRange(g *geos.Geom) (i0, j0, i1, j1 int, ok bool) {
	b := geometry.Bounds(g)
	west, north := c.meta.Bounds.Min[0], c.meta.Bounds.Max[1]

	i0 = int(math.Floor((b.Min[0] - west) / c.resX))
	i1 = int(math.Floor((b.Max[0] - west) / c.resX))
	j0 = int(math.Floor((b.Max[1] - north) / c.resY))
	j1 = int(math.Floor((b.Min[1] - north) / c.resY))

	i0, j0 = max(i0, 0), max(j0, 0)
	i1, j1 = min(i1, c.meta.Width-1), min(j1, c.meta.Height-1)
	return i0, j0, i1, j1, i0 <= i1 && j0 <= j1
}

// paint labels every pixel whose centre lies in g, overwriting earlier
// labels. It reports whether the geometry's box met the raster at all.
func (c *canvas) paint(g *geos.Geom, id int32) (bool, error) {
	i0, j0, i1, j1, ok := c.pixelRange(g)
	if !ok {
		return false, nil
	}
	prep, err := geometry.PrepareIn(c.geo, g)
	if err != nil {
		return true, err
	}
	west, north := c.meta.Bounds.Min[0], c.meta.Bounds.Max[1]
	err = geometry.Safe("paint", func() error {
		for j := j0; j <= j1; j++ {
			cy := north + (float64(j)+0.5)*c.resY
			row := j * c.meta.Width
			for i := i0; i <= i1; i++ {
				cx := west + (float64(i)+0.5)*c.resX
				if prep.CoversXY(cx, cy) {
					c.labels[row+i] = id
				}
			}
		}
		return nil
	})
	return true, err
}

// vectorize turns each horizontal run of equal labels into one rectangle.
// The union of a label's rectangles equals the union of its pixel squares.
func (c *canvas) vectorize() map[int32][]*geos.Geom {
	out := make(map[int32][]*geos.Geom)
	west, north := c.meta.Bounds.Min[0], c.meta.Bounds.Max[1]
	w := c.meta.Width
	for j := 0; j < c.meta.Height; j++ {
		top := north + float64(j)*c.resY
		bottom := north + float64(j+1)*c.resY
		row := c.labels[j*w : (j+1)*w]
		for i := 0; i < w; {
			id := row[i]
			start := i
			for i < w && row[i] == id {
				i++
			}
			if id == 0 {
				continue
			}
			left := west + float64(start)*c.resX
			right := west + float64(i)*c.resX
			out[id] = append(out[id], geometry.RectIn(c.geo, left, bottom, right, top))
		}
	}
	return out
}
