package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/teeline/types"
)

func TestRing_BelowCapacity(t *testing.T) {
	r := New[int](4)
	for i := range 3 {
		require.False(t, r.Push(i))
	}
	assert.Equal(t, []int{0, 1, 2}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
}

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := New[int](3)
	for i := range 3 {
		r.Push(i)
	}

	require.True(t, r.Push(3))
	assert.Equal(t, []int{1, 2, 3}, r.Snapshot())

	require.True(t, r.Push(4))
	require.True(t, r.Push(5))
	require.True(t, r.Push(6))
	assert.Equal(t, []int{4, 5, 6}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
}

func TestRing_NeverExceedsCapacity(t *testing.T) {
	const capacity = 7
	r := New[int](capacity)
	evictions := 0
	for i := range 100 {
		if r.Push(i) {
			evictions++
		}
		require.LessOrEqual(t, r.Len(), capacity)
	}
	assert.Equal(t, 100-capacity, evictions)

	snap := r.Snapshot()
	for i, v := range snap {
		assert.Equal(t, 100-capacity+i, v)
	}
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	snap := r.Snapshot()
	snap[0] = 99
	assert.Equal(t, []int{1}, r.Snapshot())
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := New[string](0)
	r.Push("a")
	r.Push("b")
	assert.Equal(t, []string{"b"}, r.Snapshot())
}

func TestRingSet_LazyPerSource(t *testing.T) {
	s := NewRingSet(2)
	assert.Empty(t, s.Get("tab-1"))
	assert.NotNil(t, s.Get("tab-1"))

	_, created := s.Push("tab-1", types.RingEntry{Bytes: []byte("a")})
	assert.True(t, created)
	_, created = s.Push("tab-1", types.RingEntry{Bytes: []byte("b")})
	assert.False(t, created)
	s.Push("tab-2", types.RingEntry{Bytes: []byte("c")})

	evicted, _ := s.Push("tab-1", types.RingEntry{Bytes: []byte("d")})
	assert.True(t, evicted)

	assert.Equal(t, []types.RingEntry{{Bytes: []byte("b")}, {Bytes: []byte("d")}}, s.Get("tab-1"))
	assert.Equal(t, []types.SourceID{"tab-1", "tab-2"}, s.Sources())
	assert.Equal(t, 2, s.Len())

	all := s.All()
	require.Len(t, all, 2)
	assert.Len(t, all["tab-2"], 1)
}

func TestRingSet_DefaultCapacity(t *testing.T) {
	s := NewRingSet(0)
	for range DefaultCapacity + 10 {
		s.Push("x", types.RingEntry{})
	}
	assert.Len(t, s.Get("x"), DefaultCapacity)
}
