package reader

import (
	"context"
	"errors"

	"github.com/pithecene-io/teeline/types"
)

// StubReader serves fixed rings, for tests and offline rendering.
type StubReader struct {
	rings map[types.SourceID][]types.RingEntry
	stats StatsView
	// Err, when set, is returned by every call.
	Err error
}

// NewStubReader creates a stub reader over rings.
func NewStubReader(rings map[types.SourceID][]types.RingEntry) *StubReader {
	if rings == nil {
		rings = map[types.SourceID][]types.RingEntry{}
	}
	s := &StubReader{rings: rings}
	for _, r := range NewRingsView(rings).Rings {
		s.stats.Sources = append(s.stats.Sources, r.Source)
	}
	return s
}

// Ring returns the stub ring of source, empty when unknown.
func (s *StubReader) Ring(_ context.Context, source string) (*RingView, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if source == "" {
		return nil, errors.New("source is required")
	}
	return NewRingView(types.SourceID(source), s.rings[types.SourceID(source)]), nil
}

// Rings returns every stub ring.
func (s *StubReader) Rings(context.Context) (*RingsView, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return NewRingsView(s.rings), nil
}

// Stats returns counters listing the stub sources.
func (s *StubReader) Stats(context.Context) (*StatsView, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := s.stats
	return &out, nil
}

// Close is a no-op.
func (s *StubReader) Close() error { return nil }

var _ Reader = (*StubReader)(nil)
