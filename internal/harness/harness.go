package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/roach88/georesolve/internal/engine"
	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/resolve"
	"github.com/roach88/georesolve/internal/sideinput"
	"github.com/roach88/georesolve/internal/store"
	"github.com/roach88/georesolve/internal/testutil"
	"github.com/roach88/georesolve/internal/tilegrid"
)

const (
	inBatch  = "scenario-in"
	outBatch = "scenario-out"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Decode the batches through the wire tuple codec
//  2. Write batch i as input i of the input batch
//  3. Build the side inputs named by the scenario
//  4. Resolve through the engine, one group at a time
//  5. Evaluate assertions against the output batch
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	result := NewResult()
	for i, batch := range scenario.Batches {
		recs, err := decodeBatch(batch)
		if err != nil {
			return nil, fmt.Errorf("batches[%d]: %w", i, err)
		}
		if err := st.WriteRecords(ctx, inBatch, i, recs); err != nil {
			return nil, fmt.Errorf("batches[%d]: %w", i, err)
		}
		result.Inputs = append(result.Inputs, recs...)
	}

	wc, err := buildSideInputs(scenario)
	if err != nil {
		return nil, err
	}

	mode, err := scenario.resolveMode()
	if err != nil {
		return nil, err
	}

	// Suppress logs in scenario runs
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := resolve.New(mode, wc,
		resolve.WithIDGenerator(testutil.SequenceIDs("r-")),
		resolve.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	eng := engine.New(st, r,
		engine.WithWorkers(1),
		engine.WithIDGenerator(testutil.SequenceIDs("e-")),
		engine.WithLogger(logger),
	)

	result.Summary, err = eng.Run(ctx, engine.RunSpec{
		InBatch:  inBatch,
		OutBatch: outBatch,
		GroupBy:  scenario.GroupBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve: %w", err)
	}

	result.Records, err = st.ReadBatch(ctx, outBatch)
	if err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// decodeBatch converts record specs through the wire tuple codec.
func decodeBatch(specs []RecordSpec) ([]*record.GeoRecord, error) {
	recs := make([]*record.GeoRecord, 0, len(specs))
	for k, s := range specs {
		props := map[string]any{
			record.PropClass:      s.Class,
			record.PropMembership: s.Membership,
			record.PropTile:       s.Tile,
			record.PropCRS:        s.CRS,
			record.PropID:         s.ID,
			record.PropParent:     s.Parent,
		}
		if s.Removed {
			props[record.PropRemoved] = true
		}
		r, err := record.Decode(record.Tuple{
			Geometry:   s.Geometry,
			Attributes: s.Attributes,
			Properties: props,
		})
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", k, s.ID, err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// buildSideInputs assembles the WorkerContext for the scenario.
func buildSideInputs(s *Scenario) (*sideinput.WorkerContext, error) {
	var cells []sideinput.GridCell
	if s.Grid != nil {
		g := s.Grid
		tg, err := tilegrid.New(g.West, g.South, g.East, g.North, g.CellSize, g.CRS)
		if err != nil {
			return nil, fmt.Errorf("grid: %w", err)
		}
		data, err := sideinput.GenerateGrid(tg, tg.World())
		if err != nil {
			return nil, fmt.Errorf("grid: %w", err)
		}
		if cells, err = sideinput.ParseGrid(data); err != nil {
			return nil, fmt.Errorf("grid: %w", err)
		}
	}

	rois := make([]sideinput.ROI, 0, len(s.ROIs))
	for _, roi := range s.ROIs {
		g, err := geometry.Parse(roi.Geometry)
		if err != nil {
			return nil, fmt.Errorf("roi %s: %w", roi.Code, err)
		}
		rois = append(rois, sideinput.ROI{Code: roi.Code, Geometry: g, Bounds: geometry.Bounds(g)})
	}

	var opts []sideinput.Option
	for _, rs := range s.Rasters {
		opts = append(opts, sideinput.WithRasterMeta(rs.Image, rs.Tile, sideinput.RasterMeta{
			Width:  rs.Width,
			Height: rs.Height,
			Bounds: orb.Bound{
				Min: orb.Point{rs.Bounds[0], rs.Bounds[1]},
				Max: orb.Point{rs.Bounds[2], rs.Bounds[3]},
			},
		}))
	}
	opts = append(opts, sideinput.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	return sideinput.New(cells, rois, "", nil, opts...), nil
}
