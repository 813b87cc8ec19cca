package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/georesolve/internal/record"
)

// ImportTuples reads JSON-lines wire tuples from r and appends them to
// batch under input. Tuples whose geometry is missing, empty or undecodable
// are skipped and counted; any other malformed line aborts the import and
// nothing is written.
func (s *Store) ImportTuples(ctx context.Context, batch string, input int, r io.Reader) (written, skipped int, err error) {
	dec := json.NewDecoder(r)
	var recs []*record.GeoRecord
	for line := 1; ; line++ {
		var t record.Tuple
		err := dec.Decode(&t)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, fmt.Errorf("import tuples: record %d: %w", line, err)
		}
		rec, err := record.Decode(t)
		if errors.Is(err, record.ErrBadGeometry) {
			skipped++
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("import tuples: record %d: %w", line, err)
		}
		recs = append(recs, rec)
	}

	if err := s.WriteRecords(ctx, batch, input, recs); err != nil {
		return 0, 0, err
	}
	return len(recs), skipped, nil
}

// ExportTuples writes the live records of batch to w as JSON-lines wire
// tuples. Tombstoned records are not exported. It returns the number of
// records written.
func (s *Store) ExportTuples(ctx context.Context, batch string, w io.Writer) (int, error) {
	recs, err := s.ReadBatch(ctx, batch)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	n := 0
	for _, r := range record.Live(recs) {
		if err := enc.Encode(record.Encode(r)); err != nil {
			return n, fmt.Errorf("export tuples: record %q: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}
