package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/metrics"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/sideinput"
)

// Skip reasons reported in Stats.Skipped and metrics.
const (
	ReasonTombstoned     = "tombstoned"
	ReasonEmptyGeometry  = "empty_geometry"
	ReasonInvalid        = "invalid_geometry"
	ReasonGeometryError  = "geometry_error"
	ReasonOutOfRange     = "out_of_range"
	ReasonBelowMinArea   = "below_min_area"
	ReasonNonPolygon     = "non_polygon"
	ReasonOutsideROIGrid = "outside_roi_grid"
	ReasonConsumed       = "consumed"
	ReasonDuplicate      = "duplicate"
)

// Group is one unit of resolution: records sharing a tile, parent or id.
// Batches separate independently produced inputs; modes other than
// NestedLoop treat them as one sequence in batch order.
type Group struct {
	Key     string
	Batches [][]*record.GeoRecord
}

// Records returns every record of every batch in order.
func (g Group) Records() []*record.GeoRecord {
	var out []*record.GeoRecord
	for _, b := range g.Batches {
		out = append(out, b...)
	}
	return out
}

// Stats counts what happened to a group.
type Stats struct {
	In      int
	Out     int
	Skipped map[string]int
}

// SkippedTotal sums the skip counters.
func (s Stats) SkippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Result is the reconciled output of one group.
type Result struct {
	Records []*record.GeoRecord
	Stats   Stats
}

// Resolver applies one Mode to groups. It holds no per-group state and is
// safe for concurrent use by multiple goroutines.
type Resolver struct {
	mode    Mode
	wc      *sideinput.WorkerContext
	ids     record.IDGenerator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIDGenerator sets the generator for new record ids.
func WithIDGenerator(g record.IDGenerator) Option {
	return func(r *Resolver) { r.ids = g }
}

// WithLogger sets the logger for per-record diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics records skip counters per group.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver. wc may be nil for modes that need no side input.
func New(mode Mode, wc *sideinput.WorkerContext, opts ...Option) (*Resolver, error) {
	if mode == nil {
		return nil, errors.New("resolve: nil mode")
	}
	if err := mode.validate(); err != nil {
		return nil, err
	}
	r := &Resolver{
		mode:   mode,
		wc:     wc,
		ids:    record.UUIDGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.wc == nil {
		r.wc = sideinput.New(nil, nil, "", nil)
	}
	return r, nil
}

// Mode returns the configured mode.
func (r *Resolver) Mode() Mode { return r.mode }

// Resolve reconciles one group. Per-record problems are skipped and counted;
// an error is returned only when a side input the mode depends on cannot
// be loaded, in which case the group emits nothing.
//
// Input records are never modified. The group is resolved in its own GEOS
// context; returned records belong to geos.DefaultContext.
func (r *Resolver) Resolve(ctx context.Context, g Group) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	run := &groupRun{
		Resolver: r,
		key:      g.Key,
		geo:      geometry.NewContext(),
		stats:    Stats{Skipped: map[string]int{}},
	}

	batches := run.admit(g)

	var out []*record.GeoRecord
	var err error
	switch m := r.mode.(type) {
	case Raster:
		out, err = run.raster(ctx, m, batches)
	case NestedLoop:
		out, err = run.nestedLoop(m, batches)
	case Duplicate:
		out, err = run.duplicate(flatten(batches))
	case Clip:
		out, err = run.clip(m, flatten(batches))
	case MergeAggregate:
		out, err = run.mergeAggregate(m, flatten(batches))
	case MergeIndexed:
		out, err = run.mergeIndexed(m, flatten(batches))
	case MergeResolved:
		out, err = run.mergeResolved(flatten(batches))
	default:
		err = fmt.Errorf("resolve: unsupported mode %T", r.mode)
	}
	if err != nil {
		return Result{}, err
	}
	out = run.export(out)

	run.stats.Out = len(out)
	r.metrics.ObserveSkipped(r.mode.Name(), run.stats.Skipped)
	return Result{Records: out, Stats: run.stats}, nil
}

// groupRun carries the bookkeeping of one Resolve call.
type groupRun struct {
	*Resolver
	key   string
	geo   *geos.Context
	rois  map[*geos.Geom]*geos.Geom
	stats Stats
}

func (run *groupRun) skip(rec *record.GeoRecord, reason string, err error) {
	run.stats.Skipped[reason]++
	attrs := []any{"group", run.key, "reason", reason}
	if rec != nil {
		attrs = append(attrs, "id", rec.ID, "tile", rec.Tile)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	run.logger.Debug("record skipped", attrs...)
}

func (run *groupRun) skipN(reason string, n int) {
	if n > 0 {
		run.stats.Skipped[reason] += n
	}
}

// admit clones the live records of g, repairing invalid polygons and
// dropping tombstoned or unusable ones.
func (run *groupRun) admit(g Group) [][]*record.GeoRecord {
	batches := make([][]*record.GeoRecord, len(g.Batches))
	for bi, batch := range g.Batches {
		live := make([]*record.GeoRecord, 0, len(batch))
		for _, rec := range batch {
			if rec == nil {
				continue
			}
			run.stats.In++
			if rec.Removed {
				run.skip(rec, ReasonTombstoned, nil)
				continue
			}
			if geometry.IsEmpty(rec.Geometry) {
				run.skip(rec, ReasonEmptyGeometry, nil)
				continue
			}
			local, err := geometry.Import(run.geo, rec.Geometry)
			if err != nil {
				run.skip(rec, ReasonGeometryError, err)
				continue
			}
			geom, err := geometry.RepairIn(run.geo, local)
			if err != nil {
				run.skip(rec, ReasonInvalid, err)
				continue
			}
			c := rec.Clone()
			if geom == local {
				c.Geometry = local
			} else {
				c.SetGeometry(geom)
			}
			live = append(live, c)
		}
		batches[bi] = live
	}
	return batches
}

// export moves the output geometries back to geos.DefaultContext.
func (run *groupRun) export(recs []*record.GeoRecord) []*record.GeoRecord {
	out := recs[:0]
	for _, rec := range recs {
		g, err := geometry.Import(geos.DefaultContext, rec.Geometry)
		if err != nil {
			run.skip(rec, ReasonGeometryError, err)
			continue
		}
		rec.Geometry = g
		out = append(out, rec)
	}
	return out
}

// roi returns the group-local copy of an ROI geometry.
func (run *groupRun) roi(g *geos.Geom) (*geos.Geom, error) {
	if local, ok := run.rois[g]; ok {
		return local, nil
	}
	local, err := geometry.Import(run.geo, g)
	if err != nil {
		return nil, err
	}
	if run.rois == nil {
		run.rois = map[*geos.Geom]*geos.Geom{}
	}
	run.rois[g] = local
	return local, nil
}

// emit builds an output record for a geometry derived from src: fresh id,
// resolved membership, no tile.
func (run *groupRun) emit(src *record.GeoRecord, g *geos.Geom) *record.GeoRecord {
	out := src.Derive(g)
	out.ID = run.ids.Generate()
	out.Membership = 0
	out.Tile = ""
	return out
}

// unionSplit is the repair, union, split and area filter sequence shared by
// every mode that derives new geometry.
func (run *groupRun) unionSplit(owner *record.GeoRecord, geoms []*geos.Geom, minArea float64) []*geos.Geom {
	u, err := geometry.RepairAndUnionIn(run.geo, geoms)
	if err != nil {
		reason := ReasonGeometryError
		if errors.Is(err, geometry.ErrEmptyGeometry) {
			reason = ReasonEmptyGeometry
		}
		run.skip(owner, reason, err)
		return nil
	}
	return run.splitFiltered(u, minArea)
}

// splitFiltered splits g into polygons and drops those under minArea.
func (run *groupRun) splitFiltered(g *geos.Geom, minArea float64) []*geos.Geom {
	parts, dropped := geometry.SplitPolygons(g)
	run.skipN(ReasonNonPolygon, dropped)
	kept, small := geometry.FilterMinArea(parts, minArea)
	run.skipN(ReasonBelowMinArea, small)
	return kept
}

func flatten(batches [][]*record.GeoRecord) []*record.GeoRecord {
	var out []*record.GeoRecord
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// sortedInts returns idx sorted ascending.
func sortedInts(idx []int) []int {
	sort.Ints(idx)
	return idx
}
