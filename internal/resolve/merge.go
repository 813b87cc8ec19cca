package resolve

import (
	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/spatialindex"
)

// mergeAggregate unions the allow-listed classes of the group, one union
// per class, and splits each union into connected polygons. Parent, CRS
// and attributes come from the first record of each class. Other classes
// pass through unchanged, ahead of the merged output.
func (run *groupRun) mergeAggregate(m MergeAggregate, recs []*record.GeoRecord) ([]*record.GeoRecord, error) {
	allow := classSet(m.Classes)

	type bag struct {
		first *record.GeoRecord
		geoms []*geos.Geom
	}
	bags := make(map[string]*bag)
	var order []string
	var out []*record.GeoRecord

	for _, rec := range recs {
		if _, ok := allow[rec.Class]; !ok {
			out = append(out, rec)
			continue
		}
		b, ok := bags[rec.Class]
		if !ok {
			b = &bag{first: rec}
			bags[rec.Class] = b
			order = append(order, rec.Class)
		}
		b.geoms = append(b.geoms, rec.Geometry)
	}

	for _, class := range order {
		b := bags[class]
		for _, part := range run.unionSplit(b.first, b.geoms, 0) {
			out = append(out, run.emit(b.first, part))
		}
	}
	return out, nil
}

// mergeIndexed grows each allow-listed record by absorbing every
// intersecting record of the same class, repeating until the seed stops
// growing. The index is built once; absorbed records are tombstoned and
// skipped, their stale boxes only cost a failed lookup.
//
// Seeds keep their id and metadata; only the geometry changes.
func (run *groupRun) mergeIndexed(m MergeIndexed, recs []*record.GeoRecord) ([]*record.GeoRecord, error) {
	allow := classSet(m.Classes)

	items := make([]spatialindex.Item[int], 0, len(recs))
	for k, rec := range recs {
		if _, ok := allow[rec.Class]; ok {
			items = append(items, spatialindex.Item[int]{Bounds: geometry.Bounds(rec.Geometry), Value: k})
		}
	}
	idx := spatialindex.Build(items)

	for k, seed := range recs {
		if seed.Removed {
			continue
		}
		if _, ok := allow[seed.Class]; !ok {
			continue
		}
		for grew := true; grew; {
			grew = false
			for _, c := range sortedInts(idx.Query(geometry.Bounds(seed.Geometry))) {
				cand := recs[c]
				if c == k || cand.Removed || cand.Class != seed.Class {
					continue
				}
				hit, err := geometry.Intersects(seed.Geometry, cand.Geometry)
				if err != nil {
					run.skip(cand, ReasonGeometryError, err)
					continue
				}
				if !hit {
					continue
				}
				merged, err := geometry.RepairAndUnionIn(run.geo, []*geos.Geom{seed.Geometry, cand.Geometry})
				if err != nil {
					run.skip(cand, ReasonGeometryError, err)
					continue
				}
				seed.SetGeometry(merged)
				cand.Removed = true
				run.skipN(ReasonConsumed, 1)
				grew = true
			}
		}
	}
	return record.Live(recs), nil
}

// mergeResolved reunites fragments sharing an id. Each id's fragments are
// unioned and split into connected polygons; every polygon becomes a record
// with a fresh id, the first fragment's class, parent, CRS and attributes,
// no tile and membership 0.
func (run *groupRun) mergeResolved(recs []*record.GeoRecord) ([]*record.GeoRecord, error) {
	type bag struct {
		first *record.GeoRecord
		geoms []*geos.Geom
	}
	bags := make(map[string]*bag)
	var order []string
	for _, rec := range recs {
		b, ok := bags[rec.ID]
		if !ok {
			b = &bag{first: rec}
			bags[rec.ID] = b
			order = append(order, rec.ID)
		}
		b.geoms = append(b.geoms, rec.Geometry)
	}

	var out []*record.GeoRecord
	for _, id := range order {
		b := bags[id]
		for _, part := range run.unionSplit(b.first, b.geoms, 0) {
			out = append(out, run.emit(b.first, part))
		}
	}
	return out, nil
}
