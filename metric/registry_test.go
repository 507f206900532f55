package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/shmbridge/errors"
	"github.com/c360/shmbridge/health"
)

func TestNewMetricsRegistry(t *testing.T) {
	reg := NewMetricsRegistry()
	require.NotNil(t, reg.CoreMetrics())
	require.NotNil(t, reg.PrometheusRegistry())

	// Core collectors are pre-registered and gatherable.
	reg.CoreMetrics().TransportReady.Set(1)
	reg.CoreMetrics().FramesReceived.WithLabelValues("M7_0", "echo").Inc()

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["shmbridge_transport_ready"])
	assert.True(t, names["shmbridge_frames_received_total"])
}

func TestRegisterCounterDuplicate(t *testing.T) {
	reg := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmbridge",
		Name:      "test_counter_total",
		Help:      "test",
	})
	require.NoError(t, reg.RegisterCounter("ring", "test_counter_total", counter))

	err := reg.RegisterCounter("ring", "test_counter_total", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	reg := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shmbridge",
		Name:      "test_gauge",
		Help:      "test",
	})
	require.NoError(t, reg.RegisterGauge("ring", "test_gauge", gauge))

	assert.True(t, reg.Unregister("ring", "test_gauge"))
	assert.False(t, reg.Unregister("ring", "test_gauge"))

	// Re-registration succeeds after unregister.
	assert.NoError(t, reg.RegisterGauge("ring", "test_gauge", gauge))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := NewMetricsRegistry()
	reg.CoreMetrics().FramesSent.WithLabelValues("M7_0", "echo").Inc()

	handler := promhttp.HandlerFor(reg.PrometheusRegistry(), promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shmbridge_frames_sent_total")
}

func TestHealthEndpoint(t *testing.T) {
	monitor := health.NewMonitor()
	srv := NewServer(0, "", NewMetricsRegistry(), monitor)

	t.Run("healthy", func(t *testing.T) {
		monitor.UpdateHealthy("bridge", "running")
		rec := httptest.NewRecorder()
		srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy", func(t *testing.T) {
		monitor.UpdateUnhealthy("bridge", "transport down")
		rec := httptest.NewRecorder()
		srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no monitor", func(t *testing.T) {
		bare := NewServer(0, "", NewMetricsRegistry(), nil)
		rec := httptest.NewRecorder()
		bare.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
