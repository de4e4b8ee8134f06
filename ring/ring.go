// Package ring provides bounded FIFO buffers and a per-source set of them.
package ring

import (
	"sort"
	"sync"

	"github.com/pithecene-io/teeline/types"
)

// DefaultCapacity is the per-source ring size.
const DefaultCapacity = 512

// Ring is a fixed-capacity FIFO. Once full, each push evicts exactly the
// oldest entry. Ring is not safe for concurrent use; RingSet serialises
// access to its rings.
type Ring[T any] struct {
	entries  []T
	head     int // index of the oldest entry once full
	capacity int
}

// New creates a ring with the given capacity. Capacity below 1 is raised to 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		entries:  make([]T, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

// Push appends v. It reports whether an entry was evicted to make room.
func (r *Ring[T]) Push(v T) (evicted bool) {
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, v)
		return false
	}
	r.entries[r.head] = v
	r.head = (r.head + 1) % r.capacity
	return true
}

// Len returns the number of entries held.
func (r *Ring[T]) Len() int {
	return len(r.entries)
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Snapshot returns the entries oldest first, in a new slice.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, 0, len(r.entries))
	out = append(out, r.entries[r.head:]...)
	out = append(out, r.entries[:r.head]...)
	return out
}

// RingSet keeps one ring of entries per source. Rings are created on first
// push and never removed.
type RingSet struct {
	mu       sync.RWMutex
	rings    map[types.SourceID]*Ring[types.RingEntry]
	capacity int
}

// NewRingSet creates an empty set whose rings have the given capacity.
func NewRingSet(capacity int) *RingSet {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingSet{
		rings:    make(map[types.SourceID]*Ring[types.RingEntry]),
		capacity: capacity,
	}
}

// Push appends an entry to the ring of source, creating the ring if needed.
// It reports whether an older entry was evicted and whether the ring is new.
func (s *RingSet) Push(source types.SourceID, entry types.RingEntry) (evicted, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[source]
	if !ok {
		r = New[types.RingEntry](s.capacity)
		s.rings[source] = r
	}
	return r.Push(entry), !ok
}

// Get returns a copy of the ring for source, oldest first. Unknown sources
// yield an empty, non-nil slice.
func (s *RingSet) Get(source types.SourceID) []types.RingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[source]
	if !ok {
		return []types.RingEntry{}
	}
	return r.Snapshot()
}

// All returns a copy of every ring keyed by source.
func (s *RingSet) All() map[types.SourceID][]types.RingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[types.SourceID][]types.RingEntry, len(s.rings))
	for id, r := range s.rings {
		out[id] = r.Snapshot()
	}
	return out
}

// Sources returns the known source ids in sorted order.
func (s *RingSet) Sources() []types.SourceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]types.SourceID, 0, len(s.rings))
	for id := range s.rings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of rings.
func (s *RingSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rings)
}
