// Package bridge wires the channel registry to a transport and exposes
// per-channel device handles.
//
// Inbound frames arrive on the transport's delivery goroutine and are
// produced into the owning channel's ring; readers consume them through
// handles at their own pace. Outbound writes acquire a transport buffer,
// truncate to the channel's frame capacity, and hand the buffer to the
// transport. The bridge never blocks the delivery goroutine: a full
// ring silently overwrites the oldest frame, and an oversized frame is
// discarded with a rate-limited log line.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/c360/shmbridge/channel"
	"github.com/c360/shmbridge/errors"
	"github.com/c360/shmbridge/health"
	"github.com/c360/shmbridge/metric"
	"github.com/c360/shmbridge/pkg/retry"
	"github.com/c360/shmbridge/transport"
)

// dropLogInterval caps per-channel drop logging to one line per second.
const dropLogInterval = time.Second

// Config holds the channel table and startup behavior.
type Config struct {
	Root       string                // device namespace root, channel.DefaultRoot if empty
	Channels   []channel.Declaration // complete static channel set
	ReadyProbe retry.Config          // transport readiness probe at Start
}

// Deps holds construction dependencies.
type Deps struct {
	Transport transport.Transport
	Logger    *slog.Logger
	Metrics   *metric.MetricsRegistry // optional
	Health    *health.Monitor         // optional
}

// Bridge owns the channel registry and moves frames between the
// transport and per-channel rings.
type Bridge struct {
	registry  *channel.Registry
	transport transport.Transport
	logger    *slog.Logger
	core      *metric.Metrics
	monitor   *health.Monitor
	probe     retry.Config

	mu          sync.Mutex
	initialized bool
	started     bool

	dropMu   sync.Mutex
	lastDrop map[string]time.Time
}

// New builds the bridge and its channel registry.
func New(config Config, deps Deps) (*Bridge, error) {
	if deps.Transport == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("nil transport"), "Bridge", "New", "validate deps")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		transport: deps.Transport,
		logger:    logger.With("component", "bridge"),
		monitor:   deps.Health,
		probe:     config.ReadyProbe,
		lastDrop:  make(map[string]time.Time),
	}
	if deps.Metrics != nil {
		b.core = deps.Metrics.CoreMetrics()
	}

	registry, err := channel.NewRegistry(channel.RegistryDeps{
		Root:         config.Root,
		Declarations: config.Channels,
		Metrics:      deps.Metrics,
		DropHook:     b.onOverwrite,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Bridge", "New", "build channel registry")
	}
	b.registry = registry

	return b, nil
}

// Registry exposes the channel table.
func (b *Bridge) Registry() *channel.Registry {
	return b.registry
}

// Initialize registers the receive handler with the transport.
// Must be called before Start.
func (b *Bridge) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bridge", "Initialize", "setup")
	}

	b.transport.SetReceiveHandler(b.ingest)
	b.initialized = true

	b.updateHealth(health.NewDegraded("bridge", "initialized, not started"))
	b.logger.Info("bridge initialized", "channels", len(b.registry.Bindings()))
	return nil
}

// Start brings the transport up and probes it for readiness. The
// context bounds startup, including the readiness probe.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Bridge", "Start", "initialize first")
	}
	if b.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bridge", "Start", "startup")
	}

	if err := b.transport.Start(ctx); err != nil {
		b.updateHealth(health.NewUnhealthy("bridge", "transport failed to start"))
		return errors.Wrap(err, "Bridge", "Start", "start transport")
	}

	// The remote peer may come up after us; poll until it is ready.
	err := retry.Do(ctx, b.probe, func() error {
		if !b.transport.Ready() {
			return errors.ErrTransportNotReady
		}
		return nil
	})
	if err != nil {
		stopErr := b.transport.Stop(time.Second)
		if stopErr != nil {
			b.logger.Error("transport stop after failed probe", "error", stopErr)
		}
		b.updateHealth(health.NewUnhealthy("bridge", "transport never became ready"))
		return errors.WrapTransient(err, "Bridge", "Start", "readiness probe")
	}

	b.started = true
	if b.core != nil {
		b.core.TransportReady.Set(1)
	}
	b.updateHealth(health.NewHealthy("bridge", "running"))
	b.logger.Info("bridge started")
	return nil
}

// Stop tears the transport down, waiting up to timeout.
func (b *Bridge) Stop(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Bridge", "Stop", "shutdown")
	}
	b.started = false

	if b.core != nil {
		b.core.TransportReady.Set(0)
	}
	b.updateHealth(health.NewDegraded("bridge", "stopped"))

	if err := b.transport.Stop(timeout); err != nil {
		return errors.Wrap(err, "Bridge", "Stop", "stop transport")
	}
	b.logger.Info("bridge stopped")
	return nil
}

// Started reports whether the bridge is running.
func (b *Bridge) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// ingest runs on the transport delivery goroutine for every inbound
// frame. It must not block: any frame that cannot be stored is dropped.
func (b *Bridge) ingest(instanceID, channelID uint8, data []byte) {
	binding, err := b.registry.Resolve(instanceID, channelID)
	if err != nil {
		b.dropFrame(fmt.Sprintf("%d/%d", instanceID, channelID),
			strconv.Itoa(int(instanceID)), "unknown", "unknown_channel",
			len(data), err)
		return
	}

	if err := binding.Ring.Produce(data); err != nil {
		b.dropFrame(binding.Label(), binding.InstanceName, binding.ChannelName,
			"over_capacity", len(data), err)
		return
	}

	if b.core != nil {
		b.core.FramesReceived.WithLabelValues(binding.InstanceName, binding.ChannelName).Inc()
		b.core.BytesReceived.WithLabelValues(binding.InstanceName, binding.ChannelName).
			Add(float64(len(data)))
	}
}

// onOverwrite is installed as the registry drop hook and fires when a
// full ring silently evicts its oldest frame. Not an error, but it is
// counted and rate-limit logged so sustained consumer lag is visible.
func (b *Bridge) onOverwrite(binding *channel.Binding, size int) {
	if b.core != nil {
		b.core.FramesDropped.WithLabelValues(
			binding.InstanceName, binding.ChannelName, "overwrite").Inc()
	}
	if b.shouldLogDrop(binding.Label()) {
		b.logger.Warn("oldest frame overwritten, reader lagging",
			"channel", binding.Label(),
			"dropped_bytes", size)
	}
}

// dropFrame counts and rate-limit logs a discarded inbound frame.
func (b *Bridge) dropFrame(key, instanceName, channelName, reason string, size int, err error) {
	if b.core != nil {
		b.core.FramesDropped.WithLabelValues(instanceName, channelName, reason).Inc()
	}
	if b.shouldLogDrop(key) {
		b.logger.Warn("inbound frame discarded",
			"channel", key,
			"reason", reason,
			"frame_bytes", size,
			"error", err)
	}
}

// shouldLogDrop rate-limits drop logging to one line per channel per
// dropLogInterval.
func (b *Bridge) shouldLogDrop(key string) bool {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	now := time.Now()
	if last, ok := b.lastDrop[key]; ok && now.Sub(last) < dropLogInterval {
		return false
	}
	b.lastDrop[key] = now
	return true
}

// updateHealth pushes a status to the monitor when one is wired.
func (b *Bridge) updateHealth(status health.Status) {
	if b.monitor != nil {
		b.monitor.Update("bridge", status)
	}
}

// HealthStatus reports the bridge's health including per-channel ring
// pressure as sub-statuses.
func (b *Bridge) HealthStatus() health.Status {
	subs := make([]health.Status, 0, len(b.registry.Bindings()))
	for _, binding := range b.registry.Bindings() {
		summary := binding.Ring.Stats().Summary()
		if summary.DropRate > 0.5 {
			subs = append(subs, health.NewDegraded(binding.Label(),
				fmt.Sprintf("drop rate %.2f", summary.DropRate)))
		} else {
			subs = append(subs, health.NewHealthy(binding.Label(), "nominal"))
		}
	}

	if !b.Started() {
		status := health.NewDegraded("bridge", "not started")
		status.SubStatuses = subs
		return status
	}
	if !b.transport.Ready() {
		status := health.NewUnhealthy("bridge", "transport not ready")
		status.SubStatuses = subs
		return status
	}

	status := health.NewHealthy("bridge", "running")
	status.SubStatuses = subs
	return status
}
