package ring

import (
	"github.com/c360/shmbridge/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// ringMetrics holds Prometheus metrics for one ring.
type ringMetrics struct {
	produces   prometheus.Counter
	consumes   prometheus.Counter
	overwrites prometheus.Counter
	rejections prometheus.Counter

	pending     prometheus.Gauge
	utilization prometheus.Gauge
}

// newRingMetrics creates and registers ring metrics with the provided registry.
func newRingMetrics(registry *metric.MetricsRegistry, label string) (*ringMetrics, error) {
	m := &ringMetrics{
		produces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmbridge",
			Subsystem:   "ring",
			Name:        "produces_total",
			ConstLabels: prometheus.Labels{"channel": label},
			Help:        "Total frames produced into the ring",
		}),
		consumes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmbridge",
			Subsystem:   "ring",
			Name:        "consumes_total",
			ConstLabels: prometheus.Labels{"channel": label},
			Help:        "Total frames consumed from the ring",
		}),
		overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmbridge",
			Subsystem:   "ring",
			Name:        "overwrites_total",
			ConstLabels: prometheus.Labels{"channel": label},
			Help:        "Total unconsumed frames lost to overwrite",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmbridge",
			Subsystem:   "ring",
			Name:        "rejections_total",
			ConstLabels: prometheus.Labels{"channel": label},
			Help:        "Total frames rejected for exceeding frame capacity",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "shmbridge",
			Subsystem:   "ring",
			Name:        "pending",
			ConstLabels: prometheus.Labels{"channel": label},
			Help:        "Frames currently awaiting consumption",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "shmbridge",
			Subsystem:   "ring",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"channel": label},
			Help:        "Ring utilization as a fraction (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(label, "ring_produces", m.produces); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(label, "ring_consumes", m.consumes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(label, "ring_overwrites", m.overwrites); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(label, "ring_rejections", m.rejections); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(label, "ring_pending", m.pending); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(label, "ring_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

// recordProduce increments the produce counter and updates gauges.
func (m *ringMetrics) recordProduce(pending, poolSize int, overwrite bool) {
	m.produces.Inc()
	if overwrite {
		m.overwrites.Inc()
	}
	m.updatePending(pending, poolSize)
}

// recordConsume increments the consume counter and updates gauges.
func (m *ringMetrics) recordConsume(pending, poolSize int) {
	m.consumes.Inc()
	m.updatePending(pending, poolSize)
}

// recordRejection increments the over-capacity rejection counter.
func (m *ringMetrics) recordRejection() {
	m.rejections.Inc()
}

// updatePending sets the pending and utilization gauges.
func (m *ringMetrics) updatePending(pending, poolSize int) {
	m.pending.Set(float64(pending))
	m.utilization.Set(float64(pending) / float64(poolSize))
}
