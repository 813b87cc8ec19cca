package spatialindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(minX, minY, maxX, maxY float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

func randomItems(n int, seed int64) []Item[int] {
	rng := rand.New(rand.NewSource(seed))
	items := make([]Item[int], n)
	for i := range items {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		w, h := rng.Float64()*40, rng.Float64()*40
		items[i] = Item[int]{Bounds: box(x, y, x+w, y+h), Value: i}
	}
	return items
}

func bruteForce(items []Item[int], q orb.Bound) []int {
	var out []int
	for _, it := range items {
		if it.Bounds.Intersects(q) {
			out = append(out, it.Value)
		}
	}
	return out
}

func TestBuild_Empty(t *testing.T) {
	idx := Build[int](nil)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Query(box(0, 0, 10, 10)))
}

func TestQuery_MatchesBruteForce(t *testing.T) {
	items := randomItems(500, 7)
	idx := Build(items)
	require.Equal(t, 500, idx.Len())

	rng := rand.New(rand.NewSource(11))
	for k := 0; k < 100; k++ {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		q := box(x, y, x+rng.Float64()*150, y+rng.Float64()*150)

		got := idx.Query(q)
		sort.Ints(got)
		assert.Equal(t, bruteForce(items, q), got)
	}
}

func TestQuery_TouchingCounts(t *testing.T) {
	idx := Build([]Item[string]{
		{Bounds: box(0, 0, 10, 10), Value: "a"},
		{Bounds: box(20, 20, 30, 30), Value: "b"},
	})
	assert.Equal(t, []string{"a"}, idx.Query(box(10, 10, 15, 15)))
	assert.Empty(t, idx.Query(box(11, 11, 15, 15)))
}

func TestBuild_NodeCapacity(t *testing.T) {
	items := randomItems(200, 3)
	idx := Build(items, WithNodeCapacity(4))
	require.Equal(t, 200, idx.Len())

	got := idx.Query(box(0, 0, 2000, 2000))
	assert.Len(t, got, 200)
}

func TestQuery_BuildOrder(t *testing.T) {
	items := randomItems(300, 17)
	idx := Build(items)

	got := idx.Query(box(200, 200, 700, 700))
	require.NotEmpty(t, got)
	assert.True(t, sort.IntsAreSorted(got))
}

func TestQuery_DegenerateBoxes(t *testing.T) {
	idx := Build([]Item[string]{
		{Bounds: box(5, 5, 5, 5), Value: "point"},
		{Bounds: box(0, 2, 10, 2), Value: "line"},
	})
	assert.Equal(t, []string{"point"}, idx.Query(box(5, 5, 6, 6)))
	assert.Equal(t, []string{"line"}, idx.Query(box(0, 0, 1, 2)))
}

func TestBuild_DoesNotModifyInput(t *testing.T) {
	items := randomItems(50, 5)
	before := append([]Item[int](nil), items...)
	Build(items)
	assert.Equal(t, before, items)
}

func TestSearch_StopsEarly(t *testing.T) {
	idx := Build(randomItems(300, 13))
	calls := 0
	idx.Search(box(0, 0, 1000, 1000), func(Item[int]) bool {
		calls++
		return calls < 5
	})
	assert.Equal(t, 5, calls)
}
