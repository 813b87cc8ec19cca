package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/georesolve/internal/record"
)

// WriteRecords appends recs to batch under the given input number, in a
// single transaction. Sequence numbers continue after the highest already
// stored for (batch, input), so repeated calls preserve call order.
func (s *Store) WriteRecords(ctx context.Context, batch string, input int, recs []*record.GeoRecord) error {
	if batch == "" {
		return fmt.Errorf("write records: empty batch name")
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeRecordsTx(ctx, tx, batch, input, recs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write records: commit: %w", err)
	}
	return nil
}

func writeRecordsTx(ctx context.Context, tx *sql.Tx, batch string, input int, recs []*record.GeoRecord) error {
	var next int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM records WHERE batch = ? AND input = ?
	`, batch, input).Scan(&next); err != nil {
		return fmt.Errorf("write records: next seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(batch, input, seq, id, geometry, attributes, class, membership, tile, crs, parent, removed, area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write records: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		next++
		wkb, err := marshalGeometry(r)
		if err != nil {
			return fmt.Errorf("write records: record %q: %w", r.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			batch,
			input,
			next,
			r.ID,
			wkb,
			marshalAttributes(r.Attributes),
			r.Class,
			r.Membership,
			r.Tile,
			r.CRS,
			r.Parent,
			boolInt(r.Removed),
			nullableArea(r.Area),
		)
		if err != nil {
			return fmt.Errorf("write records: record %q: %w", r.ID, err)
		}
	}
	return nil
}

// ReplaceBatch deletes batch and writes each slice of groups under input, in
// one transaction. On error the batch keeps its previous contents.
func (s *Store) ReplaceBatch(ctx context.Context, batch string, input int, groups [][]*record.GeoRecord) error {
	if batch == "" {
		return fmt.Errorf("replace batch: empty batch name")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE batch = ?`, batch); err != nil {
		return fmt.Errorf("replace batch: delete: %w", err)
	}
	for i, recs := range groups {
		if len(recs) == 0 {
			continue
		}
		if err := writeRecordsTx(ctx, tx, batch, input, recs); err != nil {
			return fmt.Errorf("replace batch: group %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace batch: commit: %w", err)
	}
	return nil
}

// DeleteBatch removes every record of batch and returns how many were removed.
func (s *Store) DeleteBatch(ctx context.Context, batch string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE batch = ?`, batch)
	if err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	return n, nil
}
