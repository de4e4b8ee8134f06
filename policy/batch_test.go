package policy_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/policy"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustSplit(t *testing.T, body []byte) [][]byte {
	t.Helper()
	frames, err := ipc.SplitFrames(body)
	if err != nil {
		t.Fatalf("SplitFrames: %v", err)
	}
	return frames
}

func TestBatchPolicy_CountCeilingFlushesImmediately(t *testing.T) {
	sink := policy.NewStubSink()
	p := policy.NewBatchPolicy(sink, policy.BatchConfig{
		MaxFrames:  3,
		FlushDelay: time.Hour,
	})

	for _, s := range []string{"a", "bb", "ccc"} {
		if err := p.Enqueue([]byte(s)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected a count flush")
	}
	frames := mustSplit(t, sink.Delivered()[0])
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if string(frames[2]) != "ccc" {
		t.Errorf("expected last frame ccc, got %q", frames[2])
	}

	stats := p.Stats()
	if stats.FlushByTrigger[policy.FlushTriggerCount] != 1 {
		t.Errorf("expected 1 count flush, got %d", stats.FlushByTrigger[policy.FlushTriggerCount])
	}
	if stats.PendingFrames != 0 {
		t.Errorf("expected empty batch after flush, got %d pending", stats.PendingFrames)
	}

	// The next chunk starts a fresh batch and goes out in its own delivery.
	if err := p.Enqueue([]byte("dddd")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := p.Stats().PendingFrames; got != 1 {
		t.Fatalf("expected 1 pending frame in the fresh batch, got %d", got)
	}
	if err := p.Close(waitCtx(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	delivered := sink.Delivered()
	if len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(delivered))
	}
	second := mustSplit(t, delivered[1])
	if len(second) != 1 || string(second[0]) != "dddd" {
		t.Errorf("second delivery = %q, want only \"dddd\"", second)
	}
}

func TestBatchPolicy_SizeCeilingFlushesImmediately(t *testing.T) {
	sink := policy.NewStubSink()
	p := policy.NewBatchPolicy(sink, policy.BatchConfig{
		MaxBytes:   64,
		FlushDelay: time.Hour,
	})

	if err := p.Enqueue(bytes.Repeat([]byte{'x'}, 10)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := p.Stats().PendingBytes; got != 14 {
		t.Fatalf("expected 14 pending bytes, got %d", got)
	}
	if err := p.Enqueue(bytes.Repeat([]byte{'y'}, 60)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected a size flush")
	}
	body := sink.Delivered()[0]
	if len(body) != 14+64 {
		t.Errorf("expected body of 78 bytes, got %d", len(body))
	}
	if p.Stats().FlushByTrigger[policy.FlushTriggerSize] != 1 {
		t.Error("expected flush trigger size")
	}
}

func TestBatchPolicy_TimerFlushesPartialBatch(t *testing.T) {
	sink := policy.NewStubSink()
	p := policy.NewBatchPolicy(sink, policy.BatchConfig{
		FlushDelay: 5 * time.Millisecond,
	})

	for i := 0; i < 4; i++ {
		if err := p.Enqueue([]byte{byte(i)}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected an interval flush")
	}
	frames := mustSplit(t, sink.Delivered()[0])
	if len(frames) != 4 {
		t.Errorf("expected 4 frames in one batch, got %d", len(frames))
	}
}

func TestBatchPolicy_EmptyFrameIsKept(t *testing.T) {
	sink := policy.NewStubSink()
	p := policy.NewBatchPolicy(sink, policy.BatchConfig{MaxFrames: 1})

	if err := p.Enqueue(nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected a flush")
	}
	if got := sink.Delivered()[0]; !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("expected a bare zero prefix, got %v", got)
	}
}

func TestBatchPolicy_DeliveryFailureIsSwallowed(t *testing.T) {
	sink := policy.NewStubSink()
	sink.ErrorOnDeliver = errors.New("connection refused")
	p := policy.NewBatchPolicy(sink, policy.BatchConfig{MaxFrames: 1})

	if err := p.Enqueue([]byte("lost")); err != nil {
		t.Fatalf("Enqueue must not report delivery failure: %v", err)
	}
	if !sink.Wait(waitCtx(t), 1) {
		t.Fatal("expected a delivery attempt")
	}
	if err := p.Enqueue([]byte("next")); err != nil {
		t.Fatalf("Enqueue after failure: %v", err)
	}
	if err := p.Close(t.Context()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stats := p.Stats()
	if stats.DeliveryFailures != 2 {
		t.Errorf("expected 2 delivery failures, got %d", stats.DeliveryFailures)
	}
	if len(sink.Delivered()) != 2 {
		t.Errorf("expected no retries, got %d attempts", len(sink.Delivered()))
	}
}

func TestBatchPolicy_CloseFlushesRemainder(t *testing.T) {
	sink := policy.NewStubSink()
	p := policy.NewBatchPolicy(sink, policy.BatchConfig{FlushDelay: time.Hour})

	if err := p.Enqueue([]byte("tail")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := p.Close(t.Context()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	delivered := sink.Delivered()
	if len(delivered) != 1 {
		t.Fatalf("expected 1 termination flush, got %d", len(delivered))
	}
	if frames := mustSplit(t, delivered[0]); string(frames[0]) != "tail" {
		t.Errorf("expected tail, got %q", frames[0])
	}
	if !sink.Closed {
		t.Error("expected sink to be closed")
	}
	if p.Stats().FlushByTrigger[policy.FlushTriggerTermination] != 1 {
		t.Error("expected termination trigger")
	}
}

func TestBatchPolicy_EnqueueAfterClose(t *testing.T) {
	p := policy.NewBatchPolicy(policy.NewStubSink(), policy.BatchConfig{})
	if err := p.Close(t.Context()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Enqueue([]byte("x")); !errors.Is(err, policy.ErrPolicyClosed) {
		t.Errorf("expected ErrPolicyClosed, got %v", err)
	}
	if err := p.Close(t.Context()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
