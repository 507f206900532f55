package health

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("transport", "connected")
	status, ok := m.Get("transport")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "transport", status.Component)
	assert.False(t, status.Timestamp.IsZero())

	m.UpdateUnhealthy("transport", "connection lost")
	status, ok = m.Get("transport")
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMonitorAggregate(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("transport", "connected")
	m.UpdateHealthy("M7_0/echo", "flowing")
	system := m.Aggregate("shmbridge")
	assert.True(t, system.Healthy)
	assert.Equal(t, "healthy", system.Status)
	assert.Len(t, system.SubStatuses, 2)

	m.UpdateDegraded("M7_0/echo", "drop rate high")
	system = m.Aggregate("shmbridge")
	assert.Equal(t, "degraded", system.Status)
	assert.False(t, system.Healthy)

	m.UpdateUnhealthy("transport", "remote endpoint down")
	system = m.Aggregate("shmbridge")
	assert.Equal(t, "unhealthy", system.Status)
}

func TestMonitorRemoveAndCount(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("a", "ok")
	m.UpdateHealthy("b", "ok")
	assert.Equal(t, 2, m.Count())

	m.Remove("a")
	assert.Equal(t, 1, m.Count())
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestMonitorConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpdateHealthy("transport", "ok")
				m.Get("transport")
				m.Aggregate("shmbridge")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.Count())
}
