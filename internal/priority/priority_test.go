package priority

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/georesolve/internal/record"
)

func rec(id string, m float64) *record.GeoRecord {
	return &record.GeoRecord{ID: id, Membership: m}
}

func TestList_RemoveFrontReturnsMinimum(t *testing.T) {
	l := New(4)
	l.Insert(rec("a", 0.9))
	l.Insert(rec("b", 0.3))
	l.Insert(rec("c", 0.6))

	var got []string
	for !l.IsEmpty() {
		got = append(got, l.MustRemoveFront().ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, got)
}

func TestList_EqualMembershipInsertsBefore(t *testing.T) {
	l := New(0)
	l.Insert(rec("first", 0.5))
	l.Insert(rec("second", 0.5))
	assert.Equal(t, "second", l.At(0).ID)
	assert.Equal(t, "first", l.At(1).ID)
}

func TestList_OrderingProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := New(100)
	for i := 0; i < 200; i++ {
		l.Insert(rec("", float64(rng.Intn(20))/20))

		prev := -1.0
		for _, r := range l.All() {
			require.GreaterOrEqual(t, r.Membership, prev)
			prev = r.Membership
		}
	}

	prev := -1.0
	for !l.IsEmpty() {
		lowest := l.At(0).Membership
		r, err := l.RemoveFront()
		require.NoError(t, err)
		assert.Equal(t, lowest, r.Membership)
		assert.GreaterOrEqual(t, r.Membership, prev)
		prev = r.Membership
	}
}

func TestList_EmptyFailsLoudly(t *testing.T) {
	l := New(1)
	_, err := l.RemoveFront()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Panics(t, func() { l.MustRemoveFront() })
}

func TestList_Len(t *testing.T) {
	l := New(-1)
	assert.Equal(t, 0, l.Len())
	l.Insert(rec("a", 0.1))
	assert.Equal(t, 1, l.Len())
	l.MustRemoveFront()
	assert.Equal(t, 0, l.Len())
}
