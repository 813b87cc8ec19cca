package resolve

import (
	"github.com/roach88/georesolve/internal/record"
)

// duplicate keeps one record per id: the highest membership, ties broken
// by the lexicographically greatest class. Output follows the order in
// which ids first appear.
func (run *groupRun) duplicate(recs []*record.GeoRecord) ([]*record.GeoRecord, error) {
	best := make(map[string]*record.GeoRecord, len(recs))
	var order []string
	for _, rec := range recs {
		cur, seen := best[rec.ID]
		if !seen {
			best[rec.ID] = rec
			order = append(order, rec.ID)
			continue
		}
		if rec.Membership > cur.Membership ||
			(rec.Membership == cur.Membership && rec.Class > cur.Class) {
			best[rec.ID] = rec
		}
		run.skipN(ReasonDuplicate, 1)
	}

	out := make([]*record.GeoRecord, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out, nil
}
