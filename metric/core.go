package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics for the bridge (not per-ring).
type Metrics struct {
	// Frame flow metrics
	FramesReceived *prometheus.CounterVec
	FramesConsumed *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	BytesReceived  *prometheus.CounterVec
	BytesSent      *prometheus.CounterVec

	// Transport metrics
	TransportReady    prometheus.Gauge
	TransportSendErrs prometheus.Counter
	AcquireFailures   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	channelLabels := []string{"instance", "channel"}

	return &Metrics{
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total frames delivered by the transport",
			},
			channelLabels,
		),
		FramesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "frames",
				Name:      "consumed_total",
				Help:      "Total frames served to readers",
			},
			channelLabels,
		),
		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "frames",
				Name:      "dropped_total",
				Help:      "Total frames dropped (overwrite, over-capacity, unknown channel)",
			},
			[]string{"instance", "channel", "reason"},
		),
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "frames",
				Name:      "sent_total",
				Help:      "Total frames handed to the transport for delivery",
			},
			channelLabels,
		),
		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "bytes",
				Name:      "received_total",
				Help:      "Total payload bytes received from the transport",
			},
			channelLabels,
		),
		BytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "bytes",
				Name:      "sent_total",
				Help:      "Total payload bytes handed to the transport",
			},
			channelLabels,
		),
		TransportReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "shmbridge",
				Subsystem: "transport",
				Name:      "ready",
				Help:      "Transport readiness (0=not ready, 1=ready)",
			},
		),
		TransportSendErrs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "transport",
				Name:      "send_errors_total",
				Help:      "Total transport send failures",
			},
		),
		AcquireFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "shmbridge",
				Subsystem: "transport",
				Name:      "acquire_failures_total",
				Help:      "Total failed transport buffer acquisitions",
			},
		),
	}
}

// collectors returns every core metric for bulk registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FramesReceived,
		m.FramesConsumed,
		m.FramesDropped,
		m.FramesSent,
		m.BytesReceived,
		m.BytesSent,
		m.TransportReady,
		m.TransportSendErrs,
		m.AcquireFailures,
	}
}
