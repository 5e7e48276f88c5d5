// Package metrics holds the Prometheus instruments for the transport core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters and gauges shared across the pipeline. All
// instruments live on a private registry so tests can create isolated
// instances.
type Metrics struct {
	registry *prometheus.Registry

	FramesIngested   *prometheus.CounterVec // stream_id
	FramesDropped    *prometheus.CounterVec // stream_id, reason
	LayersShed       *prometheus.CounterVec // stream_id, reason
	FramesDelivered  *prometheus.CounterVec // stream_id
	BytesSent        *prometheus.CounterVec // protocol
	BytesAcked       *prometheus.CounterVec // protocol
	RingOverflow     *prometheus.CounterVec // stream_id
	FECBlocksSent    prometheus.Counter
	FECUnrecoverable prometheus.Counter
	EncodeSeconds    prometheus.Histogram
	InFlightFrames   prometheus.Gauge
	ActiveJobs       prometheus.Gauge
	ConnectedSockets prometheus.Gauge
}

// New creates and registers the core instruments on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FramesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_frames_ingested_total",
			Help: "Frames accepted into the per-stream ring",
		}, []string{"stream_id"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_frames_dropped_total",
			Help: "Frames dropped before full dispatch, by reason",
		}, []string{"stream_id", "reason"}),
		LayersShed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_layers_shed_total",
			Help: "Enhancement layers shed at admission, by reason",
		}, []string{"stream_id", "reason"}),
		FramesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_frames_delivered_total",
			Help: "Frames whose base layer was dispatched before deadline",
		}, []string{"stream_id"}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_bytes_sent_total",
			Help: "Payload bytes handed to the wire, by protocol",
		}, []string{"protocol"}),
		BytesAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_bytes_acked_total",
			Help: "Payload bytes acknowledged by receivers, by protocol",
		}, []string{"protocol"}),
		RingOverflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointcast_ring_overflow_total",
			Help: "Frames evicted from a full per-stream ring",
		}, []string{"stream_id"}),
		FECBlocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointcast_fec_blocks_sent_total",
			Help: "FEC blocks emitted on the broadcast channel",
		}),
		FECUnrecoverable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointcast_fec_unrecoverable_total",
			Help: "FEC blocks that could not be recovered",
		}),
		EncodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pointcast_encode_seconds",
			Help:    "Wall time of codec encode calls",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		InFlightFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pointcast_in_flight_frames",
			Help: "Frames between ingest and terminal state",
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pointcast_active_jobs",
			Help: "Transmission jobs in RUNNING state",
		}),
		ConnectedSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pointcast_connected_sockets",
			Help: "Connected websocket viewers",
		}),
	}

	registry.MustRegister(
		m.FramesIngested,
		m.FramesDropped,
		m.LayersShed,
		m.FramesDelivered,
		m.BytesSent,
		m.BytesAcked,
		m.RingOverflow,
		m.FECBlocksSent,
		m.FECUnrecoverable,
		m.EncodeSeconds,
		m.InFlightFrames,
		m.ActiveJobs,
		m.ConnectedSockets,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
