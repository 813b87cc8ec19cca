package testutil

import (
	"testing"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/store"
)

// OpenStore opens an in-memory store that is closed when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Record builds a live record covering the rectangle [x0,x1]x[y0,y1].
// The parent is "P-<id>" and the attributes carry the id under "src".
func Record(id, class, tile string, membership, x0, y0, x1, y1 float64) *record.GeoRecord {
	return &record.GeoRecord{
		Geometry:   geometry.Rect(x0, y0, x1, y1),
		Attributes: record.Attributes{"src": id},
		Class:      class,
		Membership: membership,
		Tile:       tile,
		CRS:        "EPSG:32723",
		ID:         id,
		Parent:     "P-" + id,
	}
}
