// Package spatialindex is a bounding-box index over one batch of records,
// backed by the ctessum/geom R-tree.
//
// The index is built once from a complete batch and never updated; a changed
// batch requires a rebuild. Query is a bounding-box filter only: callers
// re-test candidates with the exact geometric predicate.
package spatialindex

import (
	"math"
	"slices"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
)

// DefaultNodeCapacity is the maximum number of entries per node.
const DefaultNodeCapacity = 25

// Item is one entry to index.
type Item[T any] struct {
	Bounds orb.Bound
	Value  T
}

// entry is what the tree stores: the item's box as a polygon, plus the
// position of the item in the Build input.
type entry[T any] struct {
	geom.Polygon
	seq  int
	item Item[T]
}

// Index is an immutable R-tree. It is safe for concurrent readers.
type Index[T any] struct {
	tree *rtree.Rtree
	size int
}

type options struct {
	capacity int
}

// Option configures Build.
type Option func(*options)

// WithNodeCapacity sets the maximum entries per node (minimum 2).
func WithNodeCapacity(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.capacity = n
		}
	}
}

// Build loads items into a new tree. The input slice is not modified.
func Build[T any](items []Item[T], opts ...Option) *Index[T] {
	o := options{capacity: DefaultNodeCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	tree := rtree.NewTree(max(1, o.capacity/2), o.capacity)
	for i, it := range items {
		tree.Insert(&entry[T]{Polygon: boxPolygon(it.Bounds), seq: i, item: it})
	}
	return &Index[T]{tree: tree, size: len(items)}
}

// Len returns the number of indexed items.
func (ix *Index[T]) Len() int { return ix.size }

// Query returns the values whose bounds intersect bbox (boundaries touching
// count as intersecting), in Build order.
func (ix *Index[T]) Query(bbox orb.Bound) []T {
	var out []T
	ix.Search(bbox, func(it Item[T]) bool {
		out = append(out, it.Value)
		return true
	})
	return out
}

// Search calls fn, in Build order, for every item whose bounds intersect
// bbox until fn returns false.
func (ix *Index[T]) Search(bbox orb.Bound, fn func(Item[T]) bool) {
	if ix.size == 0 {
		return
	}
	hits := ix.tree.SearchIntersect(searchBounds(bbox))
	found := make([]*entry[T], 0, len(hits))
	for _, h := range hits {
		e := h.(*entry[T])
		if e.item.Bounds.Intersects(bbox) {
			found = append(found, e)
		}
	}
	slices.SortFunc(found, func(a, b *entry[T]) int { return a.seq - b.seq })
	for _, e := range found {
		if !fn(e.item) {
			return
		}
	}
}

func boxPolygon(b orb.Bound) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Max[1]},
		{X: b.Min[0], Y: b.Max[1]},
		{X: b.Min[0], Y: b.Min[1]},
	}}
}

// searchBounds pads the query box so that items sharing only a boundary are
// returned by the tree; Search re-tests them with closed intervals.
func searchBounds(b orb.Bound) *geom.Bounds {
	scale := max(math.Abs(b.Min[0]), math.Abs(b.Min[1]), math.Abs(b.Max[0]), math.Abs(b.Max[1]), 1)
	pad := scale * 1e-9
	return &geom.Bounds{
		Min: geom.Point{X: b.Min[0] - pad, Y: b.Min[1] - pad},
		Max: geom.Point{X: b.Max[0] + pad, Y: b.Max[1] + pad},
	}
}
