// Package aggregator implements the coordinator at the root of the capture
// pipeline.
//
// The Coordinator accepts relay ports, keeps a bounded ring of recent
// payloads per source and feeds the same payloads to a batch policy that
// delivers framed batches to the sink. It owns all of this state; create
// one per process and inject the sink.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pithecene-io/teeline/iox"
	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/log"
	"github.com/pithecene-io/teeline/metrics"
	"github.com/pithecene-io/teeline/policy"
	"github.com/pithecene-io/teeline/ring"
	"github.com/pithecene-io/teeline/types"
)

// DefaultHelloTimeout bounds how long a new connection may take to identify
// itself.
const DefaultHelloTimeout = 5 * time.Second

// unknownKind labels messages whose kind is not one of the chunk kinds.
const unknownKind = "unknown"

// ErrCoordinatorClosed is returned by Serve after Close.
var ErrCoordinatorClosed = errors.New("coordinator closed")

// Config configures a Coordinator.
type Config struct {
	// ChannelName is the hello name accepted on inbound ports
	// (default types.DefaultChannelName).
	ChannelName string
	// RingCapacity is the per-source ring size (default ring.DefaultCapacity).
	RingCapacity int
	// Batch configures the flush policy.
	Batch policy.BatchConfig
	// HelloTimeout bounds the hello read (default DefaultHelloTimeout).
	HelloTimeout time.Duration

	// Logger is an optional logger.
	Logger *log.Logger
	// Metrics is an optional Prometheus collector.
	Metrics *metrics.Collector
}

// Coordinator receives chunk messages from relays.
type Coordinator struct {
	channelName  string
	helloTimeout time.Duration
	rings        *ring.RingSet
	batch        *policy.BatchPolicy
	logger       *log.Logger
	metrics      *metrics.Collector

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	lns    map[net.Listener]struct{}
	closed bool

	wg sync.WaitGroup
}

// New creates a coordinator delivering batches to sink.
func New(sink policy.Sink, cfg Config) *Coordinator {
	if cfg.ChannelName == "" {
		cfg.ChannelName = types.DefaultChannelName
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = DefaultHelloTimeout
	}
	if cfg.Batch.Logger == nil {
		cfg.Batch.Logger = cfg.Logger
	}
	if cfg.Batch.Metrics == nil {
		cfg.Batch.Metrics = cfg.Metrics
	}
	return &Coordinator{
		channelName:  cfg.ChannelName,
		helloTimeout: cfg.HelloTimeout,
		rings:        ring.NewRingSet(cfg.RingCapacity),
		batch:        policy.NewBatchPolicy(sink, cfg.Batch),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		conns:        make(map[net.Conn]struct{}),
		lns:          make(map[net.Listener]struct{}),
	}
}

// Serve accepts relay ports on ln until ctx ends or the coordinator is
// closed. It closes ln before returning.
func (c *Coordinator) Serve(ctx context.Context, ln net.Listener) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ln.Close()
		return ErrCoordinatorClosed
	}
	c.lns[ln] = struct{}{}
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		delete(c.lns, ln)
		c.mu.Unlock()
		_ = ln.Close()
	}()

	c.logger.Info("coordinator listening", map[string]any{
		"addr":    ln.Addr().String(),
		"channel": c.channelName,
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || c.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !c.track(conn) {
			_ = conn.Close()
			return nil
		}
		go func() {
			defer c.wg.Done()
			defer c.untrack(conn)
			c.handleConn(conn)
		}()
	}
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// track registers conn and its handler goroutine. It fails once Close has
// started so that Close never waits on a handler it cannot see.
func (c *Coordinator) track(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conns[conn] = struct{}{}
	c.wg.Add(1)
	return true
}

func (c *Coordinator) untrack(conn net.Conn) {
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
	iox.DiscardClose(conn)
}

// handleConn reads one port: a hello, then messages in arrival order.
func (c *Coordinator) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	dec := ipc.NewFrameDecoder(conn)

	_ = conn.SetReadDeadline(time.Now().Add(c.helloTimeout))
	payload, err := dec.ReadFrame()
	if err != nil {
		c.reject(remote, "read hello", err)
		return
	}
	hello, err := ipc.DecodeHello(payload)
	if err != nil {
		c.reject(remote, "decode hello", err)
		return
	}
	if hello.Name != c.channelName {
		c.reject(remote, "channel mismatch", fmt.Errorf("got %q", hello.Name))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	source := hello.Source
	if source == "" {
		source = types.UnknownSource
	}
	logger := c.logger.WithSource(string(source))
	logger.Debug("port connected", map[string]any{"remote": remote})

	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("port read failed", map[string]any{"error": err.Error()})
			}
			break
		}
		msg, err := ipc.DecodeMessage(payload)
		if err != nil {
			logger.Debug("message dropped", map[string]any{"error": err.Error()})
			continue
		}
		c.HandleMessage(source, msg)
	}
	logger.Debug("port disconnected", map[string]any{"remote": remote})
}

func (c *Coordinator) reject(remote, reason string, err error) {
	c.metrics.IncRejectedConn()
	c.logger.Warn("port rejected", map[string]any{
		"remote": remote,
		"reason": reason,
		"error":  err.Error(),
	})
}

// HandleMessage applies one message from source. Only data messages touch
// state: the payload is normalized, appended to the source's ring and, when
// non-empty, enqueued for delivery. Other kinds are counted and ignored;
// unknown kinds are counted as "unknown".
func (c *Coordinator) HandleMessage(source types.SourceID, msg *types.Message) {
	if msg == nil {
		return
	}
	if !msg.Type.Valid() {
		// Keeps arbitrary peer input out of the chunk kind label.
		c.metrics.IncChunk(unknownKind)
		c.logger.Debug("unknown chunk kind dropped", map[string]any{"source": string(source)})
		return
	}
	c.metrics.IncChunk(string(msg.Type))
	if msg.Type != types.ChunkData {
		return
	}
	if source == "" {
		source = types.UnknownSource
	}

	b := Normalize(msg.Data)

	evicted, created := c.rings.Push(source, types.RingEntry{Bytes: b})
	if evicted {
		c.metrics.IncRingEviction()
	}
	if created {
		c.metrics.SetRingSources(c.rings.Len())
	}

	if len(b) == 0 {
		return
	}
	if err := c.batch.Enqueue(b); err != nil {
		c.logger.Debug("enqueue after close", map[string]any{"source": string(source)})
	}
}

// Ring returns a copy of the ring for source, oldest first.
func (c *Coordinator) Ring(source types.SourceID) []types.RingEntry {
	return c.rings.Get(source)
}

// Rings returns a copy of every ring keyed by source.
func (c *Coordinator) Rings() map[types.SourceID][]types.RingEntry {
	return c.rings.All()
}

// Sources returns the known sources in sorted order.
func (c *Coordinator) Sources() []types.SourceID {
	return c.rings.Sources()
}

// BatchStats returns the flush policy counters.
func (c *Coordinator) BatchStats() policy.Stats {
	return c.batch.Stats()
}

// Close stops all listeners and ports, flushes the last batch and waits for
// in-flight deliveries, bounded by ctx.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for ln := range c.lns {
		_ = ln.Close()
	}
	for conn := range c.conns {
		_ = conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	return c.batch.Close(ctx)
}
