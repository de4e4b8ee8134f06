// Package policy implements the batching and flush policy that sits between
// the aggregator and the external sink.
//
// Batches are flushed on a frame-count ceiling, a byte ceiling, or a
// delay timer, whichever fires first. Delivery is best effort: a failed
// batch is counted and dropped, never retried and never reported back to
// the producer path.
package policy

import (
	"sync"
)

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates the frame-count ceiling was reached.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerSize indicates the byte ceiling was reached.
	FlushTriggerSize FlushTrigger = "size"
	// FlushTriggerInterval indicates the flush timer fired.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates a flush on Close.
	FlushTriggerTermination FlushTrigger = "termination"
)

// Stats represents batch policy observability counters.
type Stats struct {
	// FramesEnqueued is the total number of frames accepted by Enqueue.
	FramesEnqueued int64
	// BytesEnqueued is the total framed size accepted by Enqueue.
	BytesEnqueued int64
	// PendingFrames is the number of frames in the current batch.
	PendingFrames int64
	// PendingBytes is the framed size of the current batch.
	PendingBytes int64
	// FlushCount is the number of batches handed to the sink.
	FlushCount int64
	// FlushByTrigger maps triggers to flush counts.
	FlushByTrigger map[FlushTrigger]int64
	// Delivered is the number of batches the sink accepted.
	Delivered int64
	// DeliveryFailures is the number of batches the sink rejected.
	DeliveryFailures int64
	// TimersArmed is the number of flush timers started.
	TimersArmed int64
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Enqueue and flush paths call it while holding BatchPolicy.mu; delivery
// goroutines call it without. The recorder's own mutex covers both.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			FlushByTrigger: make(map[FlushTrigger]int64),
		},
	}
}

func (r *statsRecorder) incEnqueued(frameLen int) {
	r.mu.Lock()
	r.stats.FramesEnqueued++
	r.stats.BytesEnqueued += int64(frameLen)
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush(trigger FlushTrigger) {
	r.mu.Lock()
	r.stats.FlushCount++
	r.stats.FlushByTrigger[trigger]++
	r.mu.Unlock()
}

func (r *statsRecorder) incTimer() {
	r.mu.Lock()
	r.stats.TimersArmed++
	r.mu.Unlock()
}

func (r *statsRecorder) incDelivered() {
	r.mu.Lock()
	r.stats.Delivered++
	r.mu.Unlock()
}

func (r *statsRecorder) incDeliveryFailure() {
	r.mu.Lock()
	r.stats.DeliveryFailures++
	r.mu.Unlock()
}

// snapshot returns a copy of the counters with the given pending batch
// state.
func (r *statsRecorder) snapshot(pendingFrames, pendingBytes int) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.PendingFrames = int64(pendingFrames)
	s.PendingBytes = int64(pendingBytes)
	s.FlushByTrigger = make(map[FlushTrigger]int64, len(r.stats.FlushByTrigger))
	for k, v := range r.stats.FlushByTrigger {
		s.FlushByTrigger[k] = v
	}
	return s
}
