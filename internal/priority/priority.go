// Package priority provides PriorityList, the membership-ordered sequence
// that fixes the paint order of the raster resolve mode.
package priority

import (
	"errors"
	"iter"

	"github.com/roach88/georesolve/internal/record"
)

// ErrEmpty is returned by RemoveFront on an empty list.
var ErrEmpty = errors.New("priority list is empty")

// List keeps records in non-decreasing membership order.
//
// Insert places a record before the first stored record whose membership is
// greater than or equal to its own, so among equal memberships the latest
// insert comes first. RemoveFront always returns the current minimum; the
// raster mode paints in that order so the highest membership is drawn last
// and wins contested pixels.
//
// List is not safe for concurrent use; it lives for one group.
type List struct {
	items []*record.GeoRecord
}

// New creates an empty list with room for capacityHint records.
func New(capacityHint int) *List {
	return &List{items: make([]*record.GeoRecord, 0, max(capacityHint, 0))}
}

// Insert adds r in membership order. O(n).
func (l *List) Insert(r *record.GeoRecord) {
	p := len(l.items)
	for i, cur := range l.items {
		if cur.Membership >= r.Membership {
			p = i
			break
		}
	}
	l.items = append(l.items, nil)
	copy(l.items[p+1:], l.items[p:])
	l.items[p] = r
}

// RemoveFront removes and returns the lowest-membership record.
func (l *List) RemoveFront() (*record.GeoRecord, error) {
	if len(l.items) == 0 {
		return nil, ErrEmpty
	}
	r := l.items[0]
	l.items[0] = nil // Allow GC
	l.items = l.items[1:]
	return r, nil
}

// MustRemoveFront is RemoveFront for callers that have checked Len.
// It panics on an empty list.
func (l *List) MustRemoveFront() *record.GeoRecord {
	r, err := l.RemoveFront()
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of stored records.
func (l *List) Len() int { return len(l.items) }

// IsEmpty reports whether the list holds no records.
func (l *List) IsEmpty() bool { return len(l.items) == 0 }

// At returns the record at position i (0 is the minimum).
func (l *List) At(i int) *record.GeoRecord { return l.items[i] }

// All iterates the stored records in order without removing them.
func (l *List) All() iter.Seq2[int, *record.GeoRecord] {
	return func(yield func(int, *record.GeoRecord) bool) {
		for i, r := range l.items {
			if !yield(i, r) {
				return
			}
		}
	}
}
