package ring

import (
	"github.com/c360/shmbridge/metric"
)

// DropHook is called with the size of the frame lost whenever a produce
// overwrites an unconsumed entry. It runs outside the ring lock.
type DropHook func(size int)

// Option configures ring behavior using the functional options pattern.
type Option func(*ringOptions)

// ringOptions holds internal configuration for ring instances.
// Statistics are always collected; Prometheus export is opt-in.
type ringOptions struct {
	metricsReg   *metric.MetricsRegistry
	metricsLabel string
	dropHook     DropHook
}

// WithMetrics enables Prometheus metrics export for ring statistics.
// The label identifies the channel ("M7_0/echo") in metric labels.
// Ignored if registry is nil or label is empty.
func WithMetrics(registry *metric.MetricsRegistry, label string) Option {
	return func(opts *ringOptions) {
		if registry != nil && label != "" {
			opts.metricsReg = registry
			opts.metricsLabel = label
		}
	}
}

// WithDropHook sets a callback invoked when an unconsumed frame is
// overwritten.
func WithDropHook(hook DropHook) Option {
	return func(opts *ringOptions) {
		opts.dropHook = hook
	}
}

// applyOptions folds functional options into the final configuration.
func applyOptions(options ...Option) *ringOptions {
	opts := &ringOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
