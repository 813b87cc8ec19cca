package store

import (
	"context"
	"fmt"

	"github.com/roach88/georesolve/internal/record"
)

// Group is the set of records of one batch sharing a group key, split by
// input. Inputs appear in ascending order; inputs without records in the
// group are omitted.
type Group struct {
	Key     string
	Inputs  []int
	Batches [][]*record.GeoRecord
}

// groupColumns maps a group-by name to its column. Only these names are
// accepted, so the column can be spliced into SQL.
var groupColumns = map[string]string{
	"tile":   "tile",
	"parent": "parent",
	"id":     "id",
}

// ReadGroups returns the records of batch grouped by the named property
// ("tile", "parent" or "id"). Groups are ordered by key; records within a
// group by input, then write order.
//
// Returns an empty slice (not nil) when the batch has no records.
func (s *Store) ReadGroups(ctx context.Context, batch, groupBy string) ([]Group, error) {
	col, ok := groupColumns[groupBy]
	if !ok {
		return nil, fmt.Errorf("read groups: unknown group key %q", groupBy)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+col+`, input, `+recordColumns+`
		FROM records
		WHERE batch = ?
		ORDER BY `+col+` COLLATE BINARY ASC, input ASC, seq ASC
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []Group{}
	for rows.Next() {
		var (
			key   string
			input int
		)
		r, err := scanRecord(scanPrefix{rows, []any{&key, &input}})
		if err != nil {
			return nil, err
		}

		if n := len(groups); n == 0 || groups[n-1].Key != key {
			groups = append(groups, Group{Key: key})
		}
		g := &groups[len(groups)-1]
		if n := len(g.Inputs); n == 0 || g.Inputs[n-1] != input {
			g.Inputs = append(g.Inputs, input)
			g.Batches = append(g.Batches, nil)
		}
		last := len(g.Batches) - 1
		g.Batches[last] = append(g.Batches[last], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// ReadBatch returns every record of batch ordered by input, then write order.
func (s *Store) ReadBatch(ctx context.Context, batch string) ([]*record.GeoRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE batch = ?
		ORDER BY input ASC, seq ASC
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	defer rows.Close()

	recs := []*record.GeoRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch: %w", err)
	}
	return recs, nil
}

// CountRecords returns the number of records in batch, tombstones included.
func (s *Store) CountRecords(ctx context.Context, batch string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE batch = ?
	`, batch).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// scanPrefix scans leading columns into prefix before the record columns.
type scanPrefix struct {
	row    rowScanner
	prefix []any
}

func (p scanPrefix) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any{}, p.prefix...), dest...)...)
}
