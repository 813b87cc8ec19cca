// Package sideinput loads the static inputs shared by every group a worker
// resolves: the tile grid, the ROI set and per-tile raster metadata.
//
// A WorkerContext is built once per process and passed by reference into
// each group invocation. Grid and ROI data are loaded eagerly and never
// change. Raster metadata is loaded lazily, exactly once per tile even when
// several groups ask for the same tile concurrently, and is read-only
// afterwards.
package sideinput

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/georesolve/internal/spatialindex"
)

// Kind names a side input in errors and logs.
type Kind string

const (
	KindGrid   Kind = "grid"
	KindROI    Kind = "roi"
	KindRaster Kind = "raster"
)

// LoadError reports a side input that could not be fetched or parsed.
// It is fatal for the group that needed it.
type LoadError struct {
	Kind Kind
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s side input %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// Config names the side-input locations. Empty URLs disable the input.
type Config struct {
	GridURL   string
	ROIURL    string
	RasterURL string
}

// WorkerContext holds the static side inputs of one worker process.
type WorkerContext struct {
	grid      []GridCell
	gridIndex *spatialindex.Index[int]
	gridIDs   map[string]struct{}

	rois     []ROI
	roiIndex *spatialindex.Index[int]

	rasterURL string
	fetcher   Fetcher
	logger    *slog.Logger

	metaGroup singleflight.Group
	meta      sync.Map // map[string]RasterMeta
}

// Option configures a WorkerContext.
type Option func(*WorkerContext)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(wc *WorkerContext) { wc.logger = l }
}

// WithRasterMeta preloads metadata for image/tile, bypassing the fetcher.
func WithRasterMeta(image, tile string, m RasterMeta) Option {
	return func(wc *WorkerContext) { wc.meta.Store(metaKey(image, tile), m) }
}

// Load fetches and parses the grid and ROI inputs named by cfg.
func Load(ctx context.Context, cfg Config, f Fetcher, opts ...Option) (*WorkerContext, error) {
	var grid []GridCell
	if cfg.GridURL != "" {
		data, err := f.Fetch(ctx, cfg.GridURL)
		if err != nil {
			return nil, &LoadError{Kind: KindGrid, URL: cfg.GridURL, Err: err}
		}
		if grid, err = ParseGrid(data); err != nil {
			return nil, &LoadError{Kind: KindGrid, URL: cfg.GridURL, Err: err}
		}
	}

	var rois []ROI
	if cfg.ROIURL != "" {
		data, err := f.Fetch(ctx, cfg.ROIURL)
		if err != nil {
			return nil, &LoadError{Kind: KindROI, URL: cfg.ROIURL, Err: err}
		}
		if rois, err = ParseROIs(data); err != nil {
			return nil, &LoadError{Kind: KindROI, URL: cfg.ROIURL, Err: err}
		}
	}

	wc := New(grid, rois, cfg.RasterURL, f, opts...)
	wc.logger.Info("side inputs loaded",
		"grid_cells", len(grid),
		"rois", len(rois),
		"selected_tiles", len(wc.gridIDs))
	return wc, nil
}

// New assembles a WorkerContext from already-parsed inputs. The grid and
// ROI slices must not be modified afterwards.
func New(grid []GridCell, rois []ROI, rasterURL string, f Fetcher, opts ...Option) *WorkerContext {
	wc := &WorkerContext{
		grid:      grid,
		rois:      rois,
		rasterURL: rasterURL,
		fetcher:   f,
		logger:    slog.Default(),
		gridIDs:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(wc)
	}

	gridItems := make([]spatialindex.Item[int], len(grid))
	for i, c := range grid {
		gridItems[i] = spatialindex.Item[int]{Bounds: c.Bounds, Value: i}
	}
	wc.gridIndex = spatialindex.Build(gridItems)

	roiItems := make([]spatialindex.Item[int], len(rois))
	for i, r := range rois {
		roiItems[i] = spatialindex.Item[int]{Bounds: r.Bounds, Value: i}
	}
	wc.roiIndex = spatialindex.Build(roiItems)

	// A tile is selected when its box meets the box of any ROI.
	for _, r := range rois {
		for _, ci := range wc.gridIndex.Query(r.Bounds) {
			wc.gridIDs[grid[ci].Code] = struct{}{}
		}
	}
	return wc
}

// HasClip reports whether both grid and ROI inputs are present.
func (wc *WorkerContext) HasClip() bool {
	return len(wc.grid) > 0 && len(wc.rois) > 0
}

// TileSelected reports whether the tile code meets at least one ROI box.
func (wc *WorkerContext) TileSelected(code string) bool {
	_, ok := wc.gridIDs[code]
	return ok
}

// SelectedTiles returns the selected tile codes, sorted.
func (wc *WorkerContext) SelectedTiles() []string {
	out := make([]string, 0, len(wc.gridIDs))
	for code := range wc.gridIDs {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// ROIsIntersecting returns the ROIs whose boxes meet bbox, in input order.
func (wc *WorkerContext) ROIsIntersecting(bbox orb.Bound) []ROI {
	idx := wc.roiIndex.Query(bbox)
	sort.Ints(idx)
	out := make([]ROI, len(idx))
	for k, i := range idx {
		out[k] = wc.rois[i]
	}
	return out
}

// Grid returns the grid cells.
func (wc *WorkerContext) Grid() []GridCell { return wc.grid }

// ROIs returns the ROI set.
func (wc *WorkerContext) ROIs() []ROI { return wc.rois }

// RasterMeta returns the metadata of image/tile, fetching
// <rasterURL><image>/<tile>.meta on first use.
func (wc *WorkerContext) RasterMeta(ctx context.Context, image, tile string) (RasterMeta, error) {
	key := metaKey(image, tile)
	if m, ok := wc.meta.Load(key); ok {
		return m.(RasterMeta), nil
	}

	v, err, _ := wc.metaGroup.Do(key, func() (any, error) {
		if m, ok := wc.meta.Load(key); ok {
			return m, nil
		}
		url := wc.rasterURL + image + "/" + tile + ".meta"
		if wc.rasterURL == "" || wc.fetcher == nil {
			return nil, &LoadError{Kind: KindRaster, URL: url, Err: fmt.Errorf("no raster location configured")}
		}
		data, err := wc.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, &LoadError{Kind: KindRaster, URL: url, Err: err}
		}
		m, err := ParseRasterMeta(data)
		if err != nil {
			return nil, &LoadError{Kind: KindRaster, URL: url, Err: err}
		}
		wc.meta.Store(key, m)
		wc.logger.Debug("raster meta loaded", "tile", tile, "image", image, "width", m.Width, "height", m.Height)
		return m, nil
	})
	if err != nil {
		return RasterMeta{}, err
	}
	return v.(RasterMeta), nil
}

func metaKey(image, tile string) string {
	return image + "/" + tile
}
