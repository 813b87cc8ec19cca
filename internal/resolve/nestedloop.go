package resolve

import (
	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/spatialindex"
)

// nestedLoop resolves overlaps between batches: every record of batch i is
// compared with the index-pruned candidates of each batch j > i.
//
// For an intersecting pair the higher membership wins: the loser is
// tombstoned when the winner covers it and shrunk by the winner otherwise.
// Equal memberships only tombstone on full coverage; a partial overlap
// between equals is left as is.
//
// Untouched survivors keep their id and are dropped below m.MinArea, judged
// by their precomputed area when they carry one. A shrunk survivor is split
// into single polygons, filtered by m.MinArea and re-emitted with fresh ids.
func (run *groupRun) nestedLoop(m NestedLoop, batches [][]*record.GeoRecord) ([]*record.GeoRecord, error) {
	indexes := make([]*spatialindex.Index[int], len(batches))
	for j := 1; j < len(batches); j++ {
		items := make([]spatialindex.Item[int], len(batches[j]))
		for k, rec := range batches[j] {
			items[k] = spatialindex.Item[int]{Bounds: geometry.Bounds(rec.Geometry), Value: k}
		}
		indexes[j] = spatialindex.Build(items)
	}

	shrunk := make(map[*record.GeoRecord]bool)
	for i := 0; i < len(batches)-1; i++ {
		for _, a := range batches[i] {
			for j := i + 1; j < len(batches) && !a.Removed; j++ {
				for _, k := range sortedInts(indexes[j].Query(geometry.Bounds(a.Geometry))) {
					b := batches[j][k]
					if b.Removed {
						continue
					}
					if loser := run.resolvePair(a, b); loser != nil {
						shrunk[loser] = true
					}
					if a.Removed {
						break
					}
				}
			}
		}
	}

	var out []*record.GeoRecord
	for _, batch := range batches {
		for _, rec := range batch {
			if rec.Removed {
				continue
			}
			if shrunk[rec] {
				for _, part := range run.splitFiltered(rec.Geometry, m.MinArea) {
					out = append(out, run.emit(rec, part))
				}
				continue
			}
			if rec.AreaOrCompute() < m.MinArea {
				run.skip(rec, ReasonBelowMinArea, nil)
				continue
			}
			rec.Membership = 0
			rec.Tile = ""
			out = append(out, rec)
		}
	}
	return out, nil
}

// resolvePair applies the membership rule to one candidate pair and
// returns the record it shrank, if any.
func (run *groupRun) resolvePair(a, b *record.GeoRecord) *record.GeoRecord {
	hit, err := geometry.Intersects(a.Geometry, b.Geometry)
	if err != nil {
		run.logger.Debug("intersects failed", "group", run.key, "a", a.ID, "b", b.ID, "error", err)
		return nil
	}
	if !hit {
		return nil
	}

	switch {
	case a.Membership > b.Membership:
		return run.subtract(a, b)
	case a.Membership < b.Membership:
		return run.subtract(b, a)
	default:
		if run.covers(a, b) {
			run.consume(b)
		} else if run.covers(b, a) {
			run.consume(a)
		}
		return nil
	}
}

// subtract tombstones loser when winner covers it and shrinks it otherwise.
// It returns loser when the geometry changed.
func (run *groupRun) subtract(winner, loser *record.GeoRecord) *record.GeoRecord {
	if run.covers(winner, loser) {
		run.consume(loser)
		return nil
	}
	diff, err := geometry.Difference(loser.Geometry, winner.Geometry)
	if err != nil {
		run.logger.Debug("difference failed", "group", run.key, "id", loser.ID, "error", err)
		return nil
	}
	poly, err := geometry.PolygonalIn(run.geo, diff)
	if err != nil || geometry.Area(poly) <= 0 {
		run.consume(loser)
		return nil
	}
	if geometry.Area(poly) >= geometry.Area(loser.Geometry) {
		return nil
	}
	loser.SetGeometry(poly)
	return loser
}

func (run *groupRun) covers(a, b *record.GeoRecord) bool {
	ok, err := geometry.Covers(a.Geometry, b.Geometry)
	if err != nil {
		run.logger.Debug("covers failed", "group", run.key, "a", a.ID, "b", b.ID, "error", err)
		return false
	}
	return ok
}

func (run *groupRun) consume(rec *record.GeoRecord) {
	rec.Removed = true
	run.skipN(ReasonConsumed, 1)
}
