package resolve

import (
	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
)

// clip emits each record once per ROI it meets, cut to the ROI. Fragments
// get a fresh id and parent = ROI code; everything else is copied.
//
// Without both a grid and an ROI set the records pass through unchanged.
// A record whose tile meets no ROI emits nothing.
func (run *groupRun) clip(m Clip, recs []*record.GeoRecord) ([]*record.GeoRecord, error) {
	if !run.wc.HasClip() {
		return recs, nil
	}

	var out []*record.GeoRecord
	for _, rec := range recs {
		if !run.wc.TileSelected(rec.Tile) {
			run.skip(rec, ReasonOutsideROIGrid, nil)
			continue
		}
		for _, roi := range run.wc.ROIsIntersecting(geometry.Bounds(rec.Geometry)) {
			area, err := run.roi(roi.Geometry)
			if err != nil {
				run.skip(rec, ReasonGeometryError, err)
				continue
			}
			hit, err := geometry.Intersects(rec.Geometry, area)
			if err != nil {
				run.skip(rec, ReasonGeometryError, err)
				continue
			}
			if !hit {
				continue
			}
			inter, err := geometry.Intersection(rec.Geometry, area)
			if err != nil {
				run.skip(rec, ReasonGeometryError, err)
				continue
			}
			for _, part := range run.splitFiltered(inter, m.MinArea) {
				frag := rec.Derive(part)
				frag.ID = run.ids.Generate()
				frag.Parent = roi.Code
				out = append(out, frag)
			}
		}
	}
	return out, nil
}
