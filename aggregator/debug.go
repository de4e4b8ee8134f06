package aggregator

import (
	"context"
	"errors"
	"net/http"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pithecene-io/teeline/types"
)

// Debug RPC method names.
const (
	MethodGetRing    = "GetRing"
	MethodGetRingAll = "GetRingAll"
	MethodStats      = "Stats"
)

// GetRingParams are the parameters of GetRing.
type GetRingParams struct {
	Source types.SourceID `json:"source"`
}

// StatsResult is the result of Stats.
type StatsResult struct {
	Sources          []types.SourceID `json:"sources"`
	FramesEnqueued   int64            `json:"frames_enqueued"`
	BytesEnqueued    int64            `json:"bytes_enqueued"`
	PendingFrames    int64            `json:"pending_frames"`
	PendingBytes     int64            `json:"pending_bytes"`
	FlushCount       int64            `json:"flush_count"`
	FlushByTrigger   map[string]int64 `json:"flush_by_trigger"`
	Delivered        int64            `json:"delivered"`
	DeliveryFailures int64            `json:"delivery_failures"`
}

var errMissingSource = errors.New("source is required")

// debugMethods is the read-only inspection service over c.
func debugMethods(c *Coordinator) handler.Map {
	return handler.Map{
		MethodGetRing: handler.New(func(_ context.Context, p GetRingParams) ([]types.RingEntry, error) {
			if p.Source == "" {
				return nil, errMissingSource
			}
			return c.Ring(p.Source), nil
		}),
		MethodGetRingAll: handler.New(func(context.Context) (map[types.SourceID][]types.RingEntry, error) {
			return c.Rings(), nil
		}),
		MethodStats: handler.New(func(context.Context) (StatsResult, error) {
			s := c.BatchStats()
			byTrigger := make(map[string]int64, len(s.FlushByTrigger))
			for k, v := range s.FlushByTrigger {
				byTrigger[string(k)] = v
			}
			return StatsResult{
				Sources:          c.Sources(),
				FramesEnqueued:   s.FramesEnqueued,
				BytesEnqueued:    s.BytesEnqueued,
				PendingFrames:    s.PendingFrames,
				PendingBytes:     s.PendingBytes,
				FlushCount:       s.FlushCount,
				FlushByTrigger:   byTrigger,
				Delivered:        s.Delivered,
				DeliveryFailures: s.DeliveryFailures,
			}, nil
		}),
	}
}

// DebugServer serves the inspection RPC on /rpc and, when a gatherer is
// given, Prometheus metrics on /metrics.
type DebugServer struct {
	bridge jhttp.Bridge
	mux    *http.ServeMux
}

// NewDebugServer builds the debug HTTP handler for c. gatherer may be nil.
func NewDebugServer(c *Coordinator, gatherer prometheus.Gatherer) *DebugServer {
	bridge := jhttp.NewBridge(debugMethods(c), nil)

	mux := http.NewServeMux()
	mux.Handle("/rpc", bridge)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return &DebugServer{bridge: bridge, mux: mux}
}

func (s *DebugServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close shuts down the RPC bridge.
func (s *DebugServer) Close() error {
	return s.bridge.Close()
}

// DebugClient calls the inspection RPC of a running aggregator.
type DebugClient struct {
	cli *jrpc2.Client
}

// DialDebug returns a client for the debug server at url (".../rpc").
func DialDebug(url string) *DebugClient {
	return &DebugClient{cli: jrpc2.NewClient(jhttp.NewChannel(url, nil), nil)}
}

// GetRing returns the ring of one source, oldest first.
func (d *DebugClient) GetRing(ctx context.Context, source types.SourceID) ([]types.RingEntry, error) {
	var out []types.RingEntry
	if err := d.cli.CallResult(ctx, MethodGetRing, GetRingParams{Source: source}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRingAll returns every ring keyed by source.
func (d *DebugClient) GetRingAll(ctx context.Context) (map[types.SourceID][]types.RingEntry, error) {
	var out map[types.SourceID][]types.RingEntry
	if err := d.cli.CallResult(ctx, MethodGetRingAll, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the coordinator's batch counters and known sources.
func (d *DebugClient) Stats(ctx context.Context) (*StatsResult, error) {
	var out StatsResult
	if err := d.cli.CallResult(ctx, MethodStats, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases the client.
func (d *DebugClient) Close() error {
	return d.cli.Close()
}
