package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a unit square record at (x, y).
func createTestRecord(id, class, tile string, x, y float64) *record.GeoRecord {
	return &record.GeoRecord{
		Geometry:   geometry.Rect(x, y, x+1, y+1),
		Attributes: record.Attributes{"src": id},
		Class:      class,
		Membership: 0.5,
		Tile:       tile,
		CRS:        "EPSG:32723",
		ID:         id,
		Parent:     "P-" + id,
	}
}
