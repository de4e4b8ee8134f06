package aggregator_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pithecene-io/teeline/aggregator"
	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/metrics"
	"github.com/pithecene-io/teeline/policy"
	"github.com/pithecene-io/teeline/relay"
	"github.com/pithecene-io/teeline/types"
)

func dataMsg(seq int64, payload any) *types.Message {
	return &types.Message{Type: types.ChunkData, URL: "https://chatgpt.com/x", Seq: seq, Data: payload}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func ringStrings(entries []types.RingEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Bytes)
	}
	return out
}

func TestHandleMessage_RingAndBatch(t *testing.T) {
	sink := policy.NewStubSink()
	c := aggregator.New(sink, aggregator.Config{
		Batch: policy.BatchConfig{MaxFrames: 3, FlushDelay: time.Hour},
	})

	c.HandleMessage("7", &types.Message{Type: types.ChunkOpen})
	c.HandleMessage("7", dataMsg(0, []byte("a")))
	c.HandleMessage("7", dataMsg(1, []byte("bb")))
	c.HandleMessage("7", dataMsg(2, []byte("ccc")))
	c.HandleMessage("7", &types.Message{Type: types.ChunkClose})

	if diff := cmp.Diff([]string{"a", "bb", "ccc"}, ringStrings(c.Ring("7"))); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}

	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected count flush after 3 frames")
	}
	frames, err := ipc.SplitFrames(sink.Delivered()[0])
	if err != nil {
		t.Fatalf("SplitFrames: %v", err)
	}
	got := make([]string, len(frames))
	for i, f := range frames {
		got[i] = string(f)
	}
	if diff := cmp.Diff([]string{"a", "bb", "ccc"}, got); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if p := c.BatchStats().PendingFrames; p != 0 {
		t.Errorf("expected fresh batch, %d pending", p)
	}
}

func TestHandleMessage_UnknownShapeKeepsRingSlot(t *testing.T) {
	sink := policy.NewStubSink()
	c := aggregator.New(sink, aggregator.Config{Batch: policy.BatchConfig{FlushDelay: time.Hour}})

	c.HandleMessage("1", dataMsg(0, []byte("x")))
	c.HandleMessage("1", dataMsg(1, "not bytes"))
	c.HandleMessage("1", dataMsg(2, []byte("y")))

	ring := c.Ring("1")
	if len(ring) != 3 {
		t.Fatalf("expected 3 ring entries, got %d", len(ring))
	}
	if len(ring[1].Bytes) != 0 {
		t.Errorf("expected zero-length placeholder, got %q", ring[1].Bytes)
	}
	if n := c.BatchStats().FramesEnqueued; n != 2 {
		t.Errorf("zero-length payloads must not be enqueued: %d frames", n)
	}
}

func TestHandleMessage_UnknownKindDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := policy.NewStubSink()
	c := aggregator.New(sink, aggregator.Config{
		Batch:   policy.BatchConfig{FlushDelay: time.Hour},
		Metrics: metrics.NewCollector(reg),
	})

	c.HandleMessage("4", &types.Message{Type: "bogus", Data: []byte("x")})
	c.HandleMessage("4", &types.Message{Type: "bogus-2", Data: []byte("y")})
	c.HandleMessage("4", dataMsg(0, []byte("z")))

	if diff := cmp.Diff([]string{"z"}, ringStrings(c.Ring("4"))); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byKind := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "teeline_chunks_received_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				byKind[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if diff := cmp.Diff(map[string]float64{"unknown": 2, "data": 1}, byKind); diff != "" {
		t.Errorf("chunk counters mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessage_RingBound(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	c := aggregator.New(policy.NewStubSink(), aggregator.Config{
		RingCapacity: 4,
		Metrics:      m,
		Batch:        policy.BatchConfig{FlushDelay: time.Hour},
	})

	for i := range 10 {
		c.HandleMessage("tab", dataMsg(int64(i), []byte(fmt.Sprint(i))))
	}

	if diff := cmp.Diff([]string{"6", "7", "8", "9"}, ringStrings(c.Ring("tab"))); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}
	if got := counterValue(t, reg, "teeline_ring_evictions_total"); got != 6 {
		t.Errorf("expected 6 evictions, got %v", got)
	}
}

func TestHandleMessage_EmptySource(t *testing.T) {
	c := aggregator.New(policy.NewStubSink(), aggregator.Config{Batch: policy.BatchConfig{FlushDelay: time.Hour}})
	c.HandleMessage("", dataMsg(0, []byte("z")))

	if got := c.Ring(types.UnknownSource); len(got) != 1 {
		t.Errorf("expected entry under %q, got %d", types.UnknownSource, len(got))
	}
}

func TestRings_AreSnapshots(t *testing.T) {
	c := aggregator.New(policy.NewStubSink(), aggregator.Config{Batch: policy.BatchConfig{FlushDelay: time.Hour}})
	c.HandleMessage("a", dataMsg(0, []byte("1")))
	c.HandleMessage("b", dataMsg(0, []byte("2")))

	all := c.Rings()
	c.HandleMessage("a", dataMsg(1, []byte("3")))

	if len(all["a"]) != 1 || len(all["b"]) != 1 {
		t.Errorf("snapshot changed after later writes: %v", all)
	}
	if got := c.Ring("missing"); got == nil || len(got) != 0 {
		t.Errorf("unknown source should yield an empty ring, got %v", got)
	}
}

func startCoordinator(t *testing.T, sink policy.Sink, cfg aggregator.Config) (*aggregator.Coordinator, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	c := aggregator.New(sink, cfg)
	done := make(chan error, 1)
	go func() { done <- c.Serve(t.Context(), ln) }()
	t.Cleanup(func() {
		if err := c.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return c, ln.Addr().String()
}

func TestServe_EndToEnd(t *testing.T) {
	sink := policy.NewStubSink()
	c, addr := startCoordinator(t, sink, aggregator.Config{
		Batch: policy.BatchConfig{FlushDelay: 5 * time.Millisecond},
	})

	port, err := relay.DialPort(t.Context(), "tcp", addr, types.Hello{Name: types.DefaultChannelName, Source: "42"})
	if err != nil {
		t.Fatalf("DialPort: %v", err)
	}
	msgs := []*types.Message{
		{Type: types.ChunkOpen, URL: "u"},
		dataMsg(0, []byte("first")),
		dataMsg(1, types.ByteView{Buffer: []byte("xxsecondxx"), ByteOffset: 2, ByteLength: 6}),
		{Type: types.ChunkClose, URL: "u"},
	}
	for _, m := range msgs {
		if err := port.Send(m); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	_ = port.Close()

	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected a timed flush")
	}
	if diff := cmp.Diff([]string{"first", "second"}, ringStrings(c.Ring("42"))); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_RejectsWrongChannel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	c, addr := startCoordinator(t, policy.NewStubSink(), aggregator.Config{Metrics: m})

	port, err := relay.DialPort(t.Context(), "tcp", addr, types.Hello{Name: "someone-else", Source: "1"})
	if err != nil {
		t.Fatalf("DialPort: %v", err)
	}
	defer func() { _ = port.Close() }()

	// The coordinator closes the connection; writes eventually fail.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := port.Send(dataMsg(0, []byte("x"))); errors.Is(err, relay.ErrPortBroken) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := c.Ring("1"); len(got) != 0 {
		t.Errorf("rejected port must not reach state, ring has %d", len(got))
	}
	if got := counterValue(t, reg, "teeline_rejected_connections_total"); got != 1 {
		t.Errorf("expected 1 rejected connection, got %v", got)
	}
}

func TestClose_FlushesRemainder(t *testing.T) {
	sink := policy.NewStubSink()
	c := aggregator.New(sink, aggregator.Config{Batch: policy.BatchConfig{FlushDelay: time.Hour}})
	c.HandleMessage("1", dataMsg(0, []byte("tail")))

	if err := c.Close(t.Context()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(sink.Delivered()); n != 1 {
		t.Errorf("expected termination flush, got %d deliveries", n)
	}
	if !sink.Closed {
		t.Error("expected sink closed")
	}
}
