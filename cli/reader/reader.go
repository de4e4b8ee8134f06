package reader

import (
	"context"
	"errors"

	"github.com/pithecene-io/teeline/aggregator"
	"github.com/pithecene-io/teeline/types"
)

// RPCReader reads from the aggregator debug RPC.
type RPCReader struct {
	client *aggregator.DebugClient
}

// NewRPCReader returns a reader for the debug RPC endpoint at url
// (".../rpc").
func NewRPCReader(url string) *RPCReader {
	return &RPCReader{client: aggregator.DialDebug(url)}
}

// Ring returns the ring of one source.
func (r *RPCReader) Ring(ctx context.Context, source string) (*RingView, error) {
	if source == "" {
		return nil, errors.New("source is required")
	}
	entries, err := r.client.GetRing(ctx, types.SourceID(source))
	if err != nil {
		return nil, err
	}
	return NewRingView(types.SourceID(source), entries), nil
}

// Rings returns every ring.
func (r *RPCReader) Rings(ctx context.Context) (*RingsView, error) {
	all, err := r.client.GetRingAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewRingsView(all), nil
}

// Stats returns the batch counters.
func (r *RPCReader) Stats(ctx context.Context) (*StatsView, error) {
	s, err := r.client.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]string, len(s.Sources))
	for i, src := range s.Sources {
		sources[i] = string(src)
	}
	return &StatsView{
		Sources:          sources,
		FramesEnqueued:   s.FramesEnqueued,
		BytesEnqueued:    s.BytesEnqueued,
		PendingFrames:    s.PendingFrames,
		PendingBytes:     s.PendingBytes,
		FlushCount:       s.FlushCount,
		FlushByTrigger:   s.FlushByTrigger,
		Delivered:        s.Delivered,
		DeliveryFailures: s.DeliveryFailures,
	}, nil
}

// Close releases the RPC client.
func (r *RPCReader) Close() error {
	return r.client.Close()
}

var _ Reader = (*RPCReader)(nil)
