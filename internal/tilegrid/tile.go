package tilegrid

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/roach88/georesolve/internal/geometry"
)

// Tile is one grid cell.
type Tile struct {
	Code   string
	I      int
	J      int
	Bounds orb.Bound
}

// Boundary returns the square polygon of the tile.
func (t Tile) Boundary() *geos.Geom {
	return geometry.BoundPolygon(t.Bounds)
}

// Tiles returns the tiles touched by bbox, clamped to the grid. A box
// entirely outside the world yields no tiles.
func (g *Grid) Tiles(bbox orb.Bound) []Tile {
	minI, minJ, maxI, maxJ := g.TileCoordinates(bbox)
	minI, minJ = max(minI, 0), max(minJ, 0)
	maxI, maxJ = min(maxI, g.numX-1), min(maxJ, g.numY-1)
	if maxI < minI || maxJ < minJ {
		return nil
	}
	tiles := make([]Tile, 0, (maxI-minI+1)*(maxJ-minJ+1))
	for j := minJ; j <= maxJ; j++ {
		for i := minI; i <= maxI; i++ {
			tiles = append(tiles, Tile{
				Code:   g.Encode(i, j),
				I:      i,
				J:      j,
				Bounds: g.TileBounds(i, j),
			})
		}
	}
	return tiles
}

// Direction names one of the eight neighbour directions.
type Direction string

const (
	North     Direction = "N"
	NorthEast Direction = "NE"
	East      Direction = "E"
	SouthEast Direction = "SE"
	South     Direction = "S"
	SouthWest Direction = "SW"
	West      Direction = "W"
	NorthWest Direction = "NW"
)

// AllDirections lists the eight directions clockwise from north.
var AllDirections = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var offsets = map[Direction][2]int{
	North:     {0, 1},
	NorthEast: {1, 1},
	East:      {1, 0},
	SouthEast: {1, -1},
	South:     {0, -1},
	SouthWest: {-1, -1},
	West:      {-1, 0},
	NorthWest: {-1, 1},
}

// Offset returns the (di, dj) step of d. ok is false for an unknown
// direction.
func (d Direction) Offset() (di, dj int, ok bool) {
	o, ok := offsets[d]
	return o[0], o[1], ok
}

// ParseDirections parses a comma-separated list such as "N,NE,E".
// "*" or "all" selects every direction.
func ParseDirections(s string) ([]Direction, error) {
	s = strings.TrimSpace(s)
	if s == "*" || strings.EqualFold(s, "all") {
		return append([]Direction(nil), AllDirections...), nil
	}
	var dirs []Direction
	for _, part := range strings.Split(s, ",") {
		d := Direction(strings.ToUpper(strings.TrimSpace(part)))
		if d == "" {
			continue
		}
		if _, ok := offsets[d]; !ok {
			return nil, &ParseError{Input: part, Reason: "unknown direction"}
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}
