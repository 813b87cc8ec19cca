// Package tilegrid maps world coordinates onto a fixed grid of square tiles.
//
// Tiles are addressed by integer coordinates (i, j), with i growing east and
// j growing north from the south-west corner of the world box, and by codes
// of the form "T<id>" where id = j*NumTilesX + i + 1.
//
// A Grid is an immutable value; it is safe for concurrent use.
package tilegrid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
)

// CodePrefix starts every tile code.
const CodePrefix = "T"

// ParseError reports a malformed tile code or direction.
type ParseError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// Grid is the world box partitioned into cells of CellSize.
type Grid struct {
	world    orb.Bound
	cellSize float64
	crs      string
	numX     int
	numY     int
}

// New builds a grid over [west,east] x [south,north]. Column and row counts
// are ceil(extent / cellSize).
func New(west, south, east, north, cellSize float64, crs string) (*Grid, error) {
	if !(cellSize > 0) {
		return nil, fmt.Errorf("tilegrid: cell size must be positive, got %v", cellSize)
	}
	if !(east > west) || !(north > south) {
		return nil, fmt.Errorf("tilegrid: empty world box [%v %v %v %v]", west, south, east, north)
	}
	return &Grid{
		world:    orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}},
		cellSize: cellSize,
		crs:      crs,
		numX:     int(math.Ceil((east - west) / cellSize)),
		numY:     int(math.Ceil((north - south) / cellSize)),
	}, nil
}

// MustNew is New for fixed parameters. It panics on error.
func MustNew(west, south, east, north, cellSize float64, crs string) *Grid {
	g, err := New(west, south, east, north, cellSize, crs)
	if err != nil {
		panic(err)
	}
	return g
}

// NumTilesX returns the column count.
func (g *Grid) NumTilesX() int { return g.numX }

// NumTilesY returns the row count.
func (g *Grid) NumTilesY() int { return g.numY }

// CellSize returns the tile edge length.
func (g *Grid) CellSize() float64 { return g.cellSize }

// World returns the world box.
func (g *Grid) World() orb.Bound { return g.world }

// CRS returns the coordinate reference system of the grid.
func (g *Grid) CRS() string { return g.crs }

// InRange reports whether (i, j) addresses a tile of the grid.
func (g *Grid) InRange(i, j int) bool {
	return i >= 0 && i < g.numX && j >= 0 && j < g.numY
}

// Encode returns the code of tile (i, j). No range check is performed.
func (g *Grid) Encode(i, j int) string {
	return CodePrefix + strconv.Itoa(j*g.numX+i+1)
}

// Decode recovers (i, j) from a tile code. Codes that are not "T<n>" with
// n in [1, NumTilesX*NumTilesY] fail with *ParseError.
func (g *Grid) Decode(code string) (i, j int, err error) {
	rest, ok := strings.CutPrefix(code, CodePrefix)
	if !ok {
		return 0, 0, &ParseError{Input: code, Reason: "missing " + CodePrefix + " prefix"}
	}
	id, convErr := strconv.Atoi(rest)
	if convErr != nil || strings.HasPrefix(rest, "+") {
		return 0, 0, &ParseError{Input: code, Reason: "tile id is not an integer"}
	}
	if id < 1 || id > g.numX*g.numY {
		return 0, 0, &ParseError{Input: code, Reason: fmt.Sprintf("tile id outside [1, %d]", g.numX*g.numY)}
	}
	idx := id - 1
	return idx % g.numX, idx / g.numX, nil
}

// TileCoordinates returns the inclusive integer rectangle of tiles touched by
// bbox: floor((corner - origin) / cellSize) per axis. Results may be
// negative or beyond the grid; callers check range.
func (g *Grid) TileCoordinates(bbox orb.Bound) (minI, minJ, maxI, maxJ int) {
	minI = int(math.Floor((bbox.Min[0] - g.world.Min[0]) / g.cellSize))
	minJ = int(math.Floor((bbox.Min[1] - g.world.Min[1]) / g.cellSize))
	maxI = int(math.Floor((bbox.Max[0] - g.world.Min[0]) / g.cellSize))
	maxJ = int(math.Floor((bbox.Max[1] - g.world.Min[1]) / g.cellSize))
	return minI, minJ, maxI, maxJ
}

// TilesCovering returns the codes of every (i, j) in the rectangle computed
// by TileCoordinates, row by row from the south. It does not clamp against
// the grid; a box outside the world yields codes the caller must reject
// with InRange (or use Tiles, which clamps).
func (g *Grid) TilesCovering(bbox orb.Bound) []string {
	minI, minJ, maxI, maxJ := g.TileCoordinates(bbox)
	if maxI < minI || maxJ < minJ {
		return nil
	}
	codes := make([]string, 0, (maxI-minI+1)*(maxJ-minJ+1))
	for j := minJ; j <= maxJ; j++ {
		for i := minI; i <= maxI; i++ {
			codes = append(codes, g.Encode(i, j))
		}
	}
	return codes
}

// Neighbors returns the codes adjacent to code in the requested directions,
// in request order. Neighbours outside the grid are silently omitted.
func (g *Grid) Neighbors(code string, dirs []Direction) ([]string, error) {
	i, j, err := g.Decode(code)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		di, dj, ok := d.Offset()
		if !ok {
			return nil, &ParseError{Input: string(d), Reason: "unknown direction"}
		}
		ni, nj := i+di, j+dj
		if !g.InRange(ni, nj) {
			continue
		}
		out = append(out, g.Encode(ni, nj))
	}
	return out, nil
}

// TileBounds returns the world box of tile (i, j). The last column and row
// extend past the world box when the extent is not a multiple of the cell
// size.
func (g *Grid) TileBounds(i, j int) orb.Bound {
	x0 := g.world.Min[0] + float64(i)*g.cellSize
	y0 := g.world.Min[1] + float64(j)*g.cellSize
	return orb.Bound{
		Min: orb.Point{x0, y0},
		Max: orb.Point{x0 + g.cellSize, y0 + g.cellSize},
	}
}

// TileGeometry returns the boundary polygon of the tile named by code.
func (g *Grid) TileGeometry(code string) (*geos.Geom, error) {
	i, j, err := g.Decode(code)
	if err != nil {
		return nil, err
	}
	return geometry.BoundPolygon(g.TileBounds(i, j)), nil
}
