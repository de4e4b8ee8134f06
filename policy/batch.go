package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/log"
	"github.com/pithecene-io/teeline/metrics"
)

// Defaults for BatchConfig.
const (
	DefaultFlushDelay      = 15 * time.Millisecond
	DefaultMaxBytes        = 1 << 20
	DefaultMaxFrames       = 500
	DefaultDeliveryTimeout = 10 * time.Second
)

// ErrPolicyClosed is returned by Enqueue after Close.
var ErrPolicyClosed = errors.New("batch policy closed")

// BatchConfig configures a BatchPolicy. Zero values take the defaults.
type BatchConfig struct {
	// FlushDelay is how long a non-empty batch may wait before a timed flush.
	FlushDelay time.Duration
	// MaxBytes flushes immediately once the framed batch size reaches it.
	MaxBytes int
	// MaxFrames flushes immediately once the batch holds this many frames.
	MaxFrames int
	// DeliveryTimeout bounds each Sink.Deliver call.
	DeliveryTimeout time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
	// Metrics is an optional Prometheus collector.
	Metrics *metrics.Collector
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.FlushDelay <= 0 {
		c.FlushDelay = DefaultFlushDelay
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = DefaultMaxFrames
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return c
}

// stopper is the part of *time.Timer the policy uses.
type stopper interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// BatchPolicy frames payloads and delivers them to a Sink in batches.
//
// Enqueue wraps the payload in a frame and appends it to the current batch.
// Reaching MaxFrames or MaxBytes swaps the batch out and flushes at once;
// otherwise a single flush timer is armed if none is pending, so a burst
// of enqueues inside FlushDelay produces one flush.
//
// The batch is always swapped out under mu before delivery starts, so
// frames arriving during a delivery go to a fresh batch. Delivery runs on
// its own goroutine and Enqueue never waits for it.
type BatchPolicy struct {
	sink    Sink
	config  BatchConfig
	logger  *log.Logger
	metrics *metrics.Collector

	mu      sync.Mutex // guards batch state and the pending timer
	frames  [][]byte
	bytes   int
	pending stopper // non-nil while a flush timer is armed
	closed  bool
	stats   *statsRecorder

	inflight  sync.WaitGroup
	afterFunc func(time.Duration, func()) stopper
}

// NewBatchPolicy creates a batch policy delivering to sink.
func NewBatchPolicy(sink Sink, config BatchConfig) *BatchPolicy {
	config = config.withDefaults()
	return &BatchPolicy{
		sink:      sink,
		config:    config,
		logger:    config.Logger,
		metrics:   config.Metrics,
		frames:    make([][]byte, 0, 64),
		stats:     newStatsRecorder(),
		afterFunc: realAfterFunc,
	}
}

// Enqueue frames payload and adds it to the current batch. The policy
// copies payload into the frame, so the caller keeps ownership of it.
func (p *BatchPolicy) Enqueue(payload []byte) error {
	frame := ipc.EncodeFrame(payload)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPolicyClosed
	}

	p.frames = append(p.frames, frame)
	p.bytes += len(frame)
	p.stats.incEnqueued(len(frame))

	var trigger FlushTrigger
	switch {
	case len(p.frames) >= p.config.MaxFrames:
		trigger = FlushTriggerCount
	case p.bytes >= p.config.MaxBytes:
		trigger = FlushTriggerSize
	}

	if trigger != "" {
		frames, size := p.swapLocked()
		p.stats.incFlush(trigger)
		p.mu.Unlock()
		p.deliver(frames, size, trigger)
		return nil
	}

	if p.pending == nil {
		p.pending = p.afterFunc(p.config.FlushDelay, p.onTimer)
		p.stats.incTimer()
	}
	p.mu.Unlock()
	return nil
}

// onTimer runs when the flush timer fires.
func (p *BatchPolicy) onTimer() {
	p.mu.Lock()
	p.pending = nil
	if p.closed || len(p.frames) == 0 {
		p.mu.Unlock()
		return
	}
	frames, size := p.swapLocked()
	p.stats.incFlush(FlushTriggerInterval)
	p.mu.Unlock()

	p.deliver(frames, size, FlushTriggerInterval)
}

// swapLocked detaches the current batch and installs a fresh one.
// Caller must hold mu.
func (p *BatchPolicy) swapLocked() ([][]byte, int) {
	frames, size := p.frames, p.bytes
	p.frames = make([][]byte, 0, 64)
	p.bytes = 0
	return frames, size
}

// deliver concatenates the frames and hands the body to the sink on a new
// goroutine.
func (p *BatchPolicy) deliver(frames [][]byte, size int, trigger FlushTrigger) {
	body := ipc.Concat(frames)
	p.metrics.IncFlush(string(trigger))

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.config.DeliveryTimeout)
		defer cancel()

		// Delivery errors end here: counted, logged, dropped. Never retried.
		if err := p.sink.Deliver(ctx, body); err != nil {
			p.stats.incDeliveryFailure()
			p.metrics.IncDeliveryFailure()
			p.logger.Debug("batch delivery failed", map[string]any{
				"trigger": string(trigger),
				"frames":  len(frames),
				"bytes":   size,
				"error":   err.Error(),
			})
			return
		}

		p.stats.incDelivered()
		p.metrics.AddDelivered(size)
		p.logger.Debug("batch delivered", map[string]any{
			"trigger": string(trigger),
			"frames":  len(frames),
			"bytes":   size,
		})
	}()
}

// Close stops the timer, delivers whatever is still batched, waits for
// in-flight deliveries (bounded by ctx) and closes the sink.
func (p *BatchPolicy) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	frames, size := p.swapLocked()
	if len(frames) > 0 {
		p.stats.incFlush(FlushTriggerTermination)
	}
	p.mu.Unlock()

	if len(frames) > 0 {
		p.deliver(frames, size, FlushTriggerTermination)
	}

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := p.sink.Close(); err != nil {
		return err
	}
	return waitErr
}

// Stats returns a consistent snapshot of the policy counters.
func (p *BatchPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshot(len(p.frames), p.bytes)
}
