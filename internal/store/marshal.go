package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/georesolve/internal/geometry"
	"github.com/roach88/georesolve/internal/record"
)

// marshalGeometry converts a record geometry to WKB for storage.
func marshalGeometry(r *record.GeoRecord) ([]byte, error) {
	if r.Geometry == nil {
		return nil, errors.New("marshal geometry: nil geometry")
	}
	var wkb []byte
	err := geometry.Safe("wkb", func() error {
		wkb = r.Geometry.ToWKB()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("marshal geometry: %w", err)
	}
	return wkb, nil
}

// marshalAttributes converts attributes to canonical JSON TEXT.
func marshalAttributes(a record.Attributes) string {
	return string(record.MarshalCanonical(a))
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// recordColumns is the column list scanned by scanRecord, in order.
const recordColumns = `id, geometry, attributes, class, membership, tile, crs, parent, removed, area`

// scanRecord reads one row selected with recordColumns.
func scanRecord(row rowScanner) (*record.GeoRecord, error) {
	var (
		r       record.GeoRecord
		wkb     []byte
		attrs   string
		removed int
		area    sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &wkb, &attrs, &r.Class, &r.Membership, &r.Tile, &r.CRS, &r.Parent, &removed, &area); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	g, err := geometry.Parse(wkb)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	r.Geometry = g

	r.Attributes, err = record.UnmarshalAttributes([]byte(attrs))
	if err != nil {
		return nil, fmt.Errorf("record %s: attributes: %w", r.ID, err)
	}

	r.Removed = removed != 0
	if area.Valid {
		a := area.Float64
		r.Area = &a
	}
	return &r, nil
}

// nullableArea maps an unknown area to SQL NULL.
func nullableArea(a *float64) sql.NullFloat64 {
	if a == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *a, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
