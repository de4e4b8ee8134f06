// Package metrics exposes pipeline counters as Prometheus collectors.
//
// A Collector is registered on a caller-supplied registry so tests and
// multiple servers in one process do not collide on the default registry.
// All increment methods are nil-receiver safe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "teeline"

// Collector holds the pipeline counters.
type Collector struct {
	chunks           *prometheus.CounterVec
	ringEvictions    prometheus.Counter
	ringSources      prometheus.Gauge
	flushes          *prometheus.CounterVec
	deliveredBytes   prometheus.Counter
	deliveryFailures prometheus.Counter
	relayDropped     prometheus.Counter
	ingestBodies     prometheus.Counter
	ingestBytes      prometheus.Counter
	rejectedConns    prometheus.Counter
}

// NewCollector creates a Collector and registers it on reg.
// A nil reg leaves the counters unregistered (still usable).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Chunk messages received by the aggregator, by kind.",
		}, []string{"kind"}),
		ringEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_evictions_total",
			Help:      "Ring entries evicted because a per-source ring was full.",
		}),
		ringSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ring_sources",
			Help:      "Number of sources with a ring buffer.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_flushes_total",
			Help:      "Batches handed to the sink, by trigger.",
		}, []string{"trigger"}),
		deliveredBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_bytes_total",
			Help:      "Framed bytes accepted by the sink.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Batches the sink failed to accept. Never retried.",
		}),
		relayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Messages the relay could not forward to the aggregator.",
		}),
		ingestBodies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_bodies_total",
			Help:      "Request bodies stored by the ingest server.",
		}),
		ingestBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_bytes_total",
			Help:      "Raw bytes stored by the ingest server.",
		}),
		rejectedConns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Port connections closed for a bad or mismatched hello.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.chunks, c.ringEvictions, c.ringSources, c.flushes, c.deliveredBytes,
			c.deliveryFailures, c.relayDropped, c.ingestBodies, c.ingestBytes, c.rejectedConns,
		)
	}
	return c
}

// IncChunk records a received chunk message of the given kind.
func (c *Collector) IncChunk(kind string) {
	if c == nil {
		return
	}
	c.chunks.WithLabelValues(kind).Inc()
}

// IncRingEviction records one evicted ring entry.
func (c *Collector) IncRingEviction() {
	if c == nil {
		return
	}
	c.ringEvictions.Inc()
}

// SetRingSources records the number of rings.
func (c *Collector) SetRingSources(n int) {
	if c == nil {
		return
	}
	c.ringSources.Set(float64(n))
}

// IncFlush records a flush by trigger.
func (c *Collector) IncFlush(trigger string) {
	if c == nil {
		return
	}
	c.flushes.WithLabelValues(trigger).Inc()
}

// AddDelivered records bytes accepted by the sink.
func (c *Collector) AddDelivered(n int) {
	if c == nil {
		return
	}
	c.deliveredBytes.Add(float64(n))
}

// IncDeliveryFailure records a failed delivery.
func (c *Collector) IncDeliveryFailure() {
	if c == nil {
		return
	}
	c.deliveryFailures.Inc()
}

// IncRelayDropped records a message dropped by the relay.
func (c *Collector) IncRelayDropped() {
	if c == nil {
		return
	}
	c.relayDropped.Inc()
}

// AddIngest records one stored ingest body of n bytes.
func (c *Collector) AddIngest(n int) {
	if c == nil {
		return
	}
	c.ingestBodies.Inc()
	c.ingestBytes.Add(float64(n))
}

// IncRejectedConn records a rejected port connection.
func (c *Collector) IncRejectedConn() {
	if c == nil {
		return
	}
	c.rejectedConns.Inc()
}
