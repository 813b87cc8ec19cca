package sideinput

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/tilegrid"
)

// GridCell is one entry of the grid side input.
type GridCell struct {
	ID       int
	Code     string
	Geometry *geos.Geom
	Bounds   orb.Bound
}

// ROI is one region of interest.
type ROI struct {
	Code     string
	Geometry *geos.Geom
	Bounds   orb.Bound
}

// RasterMeta describes the pixel grid shared by the records of one tile.
type RasterMeta struct {
	Width  int
	Height int
	// Bounds is the geographic box of the raster (west/south/east/north).
	Bounds orb.Bound
}

// ResX is the pixel width in world units.
func (m RasterMeta) ResX() float64 {
	return (m.Bounds.Max[0] - m.Bounds.Min[0]) / float64(m.Width)
}

// ResY is the pixel height in world units. It is negative: rows run from
// north to south.
func (m RasterMeta) ResY() float64 {
	return (m.Bounds.Min[1] - m.Bounds.Max[1]) / float64(m.Height)
}

type gridEntry struct {
	ID       int    `json:"id"`
	Code     string `json:"code"`
	Geometry string `json:"geometry"`
}

type roiEntry struct {
	Code     string `json:"code"`
	Geometry string `json:"geometry"`
}

// ParseGrid decodes `[{"id":1,"code":"T1","geometry":"POLYGON(...)"}]`.
func ParseGrid(data []byte) ([]GridCell, error) {
	var entries []gridEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	cells := make([]GridCell, 0, len(entries))
	for i, e := range entries {
		if e.Code == "" {
			return nil, fmt.Errorf("grid[%d]: missing code", i)
		}
		g, err := geometry.Parse(e.Geometry)
		if err != nil {
			return nil, fmt.Errorf("grid[%d] %s: %w", i, e.Code, err)
		}
		cells = append(cells, GridCell{ID: e.ID, Code: e.Code, Geometry: g, Bounds: geometry.Bounds(g)})
	}
	return cells, nil
}

// ParseROIs decodes `[{"code":"R1","geometry":"POLYGON(...)"}]`.
func ParseROIs(data []byte) ([]ROI, error) {
	var entries []roiEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode roi: %w", err)
	}
	rois := make([]ROI, 0, len(entries))
	for i, e := range entries {
		if e.Code == "" {
			return nil, fmt.Errorf("roi[%d]: missing code", i)
		}
		g, err := geometry.Parse(e.Geometry)
		if err != nil {
			return nil, fmt.Errorf("roi[%d] %s: %w", i, e.Code, err)
		}
		rois = append(rois, ROI{Code: e.Code, Geometry: g, Bounds: geometry.Bounds(g)})
	}
	return rois, nil
}

// ParseRasterMeta reads a per-tile descriptor. Blank lines are ignored; of
// the remaining lines the first is a free-form header, then width, height,
// west, south, east and north, one value per line.
func ParseRasterMeta(data []byte) (RasterMeta, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return RasterMeta{}, err
	}
	if len(lines) < 7 {
		return RasterMeta{}, fmt.Errorf("raster meta: want 7 non-blank lines, got %d", len(lines))
	}

	width, err := strconv.Atoi(lines[1])
	if err != nil {
		return RasterMeta{}, fmt.Errorf("raster meta width: %w", err)
	}
	height, err := strconv.Atoi(lines[2])
	if err != nil {
		return RasterMeta{}, fmt.Errorf("raster meta height: %w", err)
	}
	var box [4]float64
	for k := range box {
		box[k], err = strconv.ParseFloat(lines[3+k], 64)
		if err != nil {
			return RasterMeta{}, fmt.Errorf("raster meta bbox[%d]: %w", k, err)
		}
	}
	if width <= 0 || height <= 0 {
		return RasterMeta{}, fmt.Errorf("raster meta: non-positive size %dx%d", width, height)
	}
	if !(box[2] > box[0]) || !(box[3] > box[1]) {
		return RasterMeta{}, fmt.Errorf("raster meta: empty bbox %v", box)
	}
	return RasterMeta{
		Width:  width,
		Height: height,
		Bounds: orb.Bound{Min: orb.Point{box[0], box[1]}, Max: orb.Point{box[2], box[3]}},
	}, nil
}

// FormatRasterMeta writes the descriptor read by ParseRasterMeta.
func FormatRasterMeta(header string, m RasterMeta) []byte {
	return []byte(fmt.Sprintf("%s\n%d\n%d\n%v\n%v\n%v\n%v\n",
		header, m.Width, m.Height,
		m.Bounds.Min[0], m.Bounds.Min[1], m.Bounds.Max[0], m.Bounds.Max[1]))
}

// GenerateGrid writes the grid side input for every tile of tg touched by
// bbox, in the format read by ParseGrid.
func GenerateGrid(tg *tilegrid.Grid, bbox orb.Bound) ([]byte, error) {
	tiles := tg.Tiles(bbox)
	entries := make([]gridEntry, 0, len(tiles))
	for _, t := range tiles {
		entries = append(entries, gridEntry{
			ID:       t.J*tg.NumTilesX() + t.I + 1,
			Code:     t.Code,
			Geometry: t.Boundary().ToWKT(),
		})
	}
	return json.MarshalIndent(entries, "", "  ")
}

// FormatROIs writes the ROI side input.
func FormatROIs(rois []ROI) ([]byte, error) {
	entries := make([]roiEntry, 0, len(rois))
	for _, r := range rois {
		entries = append(entries, roiEntry{Code: r.Code, Geometry: r.Geometry.ToWKT()})
	}
	return json.MarshalIndent(entries, "", "  ")
}
