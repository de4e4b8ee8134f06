// Package relay forwards messages from the interceptor to the aggregator.
//
// A Relay owns a private Channel, handed to the interceptor during the
// handshake, and one persistent Port to the aggregator. It forwards each
// message unmodified and in arrival order. It does not buffer, reorder or
// inspect anything, and transport errors are dropped at the send site.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/teeline/log"
	"github.com/pithecene-io/teeline/metrics"
	"github.com/pithecene-io/teeline/types"
)

// Attacher accepts the channel end produced by a handshake.
type Attacher interface {
	Attach(h types.Handshake) error
}

// Sender is the outbound side of the relay, normally a *Port.
type Sender interface {
	Send(msg *types.Message) error
	Close() error
}

// Config configures a Relay.
type Config struct {
	// HandshakeName names the channel handed to the interceptor
	// (default types.DefaultHandshakeName).
	HandshakeName string
	// QueueSize is the channel capacity (default DefaultQueueSize).
	QueueSize int
	// Logger is an optional logger.
	Logger *log.Logger
	// Metrics is an optional Prometheus collector.
	Metrics *metrics.Collector
}

// Relay bridges the interceptor's channel and the aggregator port.
type Relay struct {
	port    Sender
	channel *Channel
	name    string
	logger  *log.Logger
	metrics *metrics.Collector
}

// New creates a relay that forwards to port.
func New(port Sender, cfg Config) *Relay {
	if cfg.HandshakeName == "" {
		cfg.HandshakeName = types.DefaultHandshakeName
	}
	return &Relay{
		port:    port,
		channel: NewChannel(cfg.QueueSize),
		name:    cfg.HandshakeName,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Handshake hands the sending end of the relay's channel to a.
func (r *Relay) Handshake(a Attacher) error {
	if err := a.Attach(types.Handshake{Name: r.name, Port: r.channel}); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

// Channel returns the relay's channel.
func (r *Relay) Channel() *Channel {
	return r.channel
}

// Run forwards messages until ctx ends or the channel is closed and
// drained. It returns nil when the channel was closed. The channel is
// closed on return, so later posts fail fast instead of filling the queue.
func (r *Relay) Run(ctx context.Context) error {
	defer func() { _ = r.channel.Close() }()
	for {
		msg, err := r.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}

		// Transport errors end here. Once the port breaks every later
		// message is dropped.
		if err := r.port.Send(msg); err != nil {
			r.metrics.IncRelayDropped()
			r.logger.Debug("relay dropped message", map[string]any{
				"type":  string(msg.Type),
				"error": err.Error(),
			})
		}
	}
}

// Close closes the channel and the port. Messages still queued are lost
// unless Run drains them first.
func (r *Relay) Close() error {
	_ = r.channel.Close()
	return r.port.Close()
}
