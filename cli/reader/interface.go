package reader

import "context"

// Reader abstracts read-only access to a running aggregator.
type Reader interface {
	Ring(ctx context.Context, source string) (*RingView, error)
	Rings(ctx context.Context) (*RingsView, error)
	Stats(ctx context.Context) (*StatsView, error)
	Close() error
}
