// Package config loads and validates the bridge configuration.
//
// Configuration is a single JSON document declaring the channel table,
// the transport, and the observability surface. Validation is
// fail-fast: the bridge refuses to start on any inconsistency rather
// than limping along with a partial channel set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/shmbridge/channel"
	"github.com/c360/shmbridge/errors"
)

// Transport kind constants
const (
	TransportLoopback = "loopback" // in-process, for tests and single-node runs
	TransportNATS     = "nats"     // frames carried over NATS subjects
)

// Channel sizing defaults, matching the fixed pool geometry of the
// shared-memory layout this bridge fronts.
const (
	DefaultPoolSize      = 64
	DefaultFrameCapacity = 128
)

// Config represents the complete application configuration.
type Config struct {
	Instances  []InstanceConfig `json:"instances"`
	Transport  TransportConfig  `json:"transport"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
	DeviceRoot string           `json:"device_root,omitempty"` // default /dev/ipcfshm
	LogLevel   string           `json:"log_level,omitempty"`   // debug, info, warn, error
}

// InstanceConfig declares one remote instance and its channels.
type InstanceConfig struct {
	ID       uint8           `json:"id"`
	Name     string          `json:"name"`
	Channels []ChannelConfig `json:"channels"`
}

// ChannelConfig declares one channel on an instance.
type ChannelConfig struct {
	ID            uint8  `json:"id"`
	Name          string `json:"name"`
	PrependSize   bool   `json:"prepend_size,omitempty"`
	PoolSize      int    `json:"pool_size,omitempty"`      // default 64
	FrameCapacity int    `json:"frame_capacity,omitempty"` // default 128
}

// TransportConfig selects and tunes the frame transport.
type TransportConfig struct {
	Kind          string        `json:"kind"` // loopback or nats
	URL           string        `json:"url,omitempty"`
	TxSlots       int           `json:"tx_slots,omitempty"`
	Echo          bool          `json:"echo,omitempty"` // loopback only
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"` // default 9090
	Path    string `json:"path,omitempty"` // default /metrics
}

// Default returns the configuration matching the canonical M7_0
// deployment: an echo channel and a size-prefixed statistics channel.
func Default() *Config {
	return &Config{
		Instances: []InstanceConfig{
			{
				ID:   0,
				Name: "M7_0",
				Channels: []ChannelConfig{
					{ID: 0, Name: "echo"},
					{ID: 1, Name: "idps_statistics", PrependSize: true},
				},
			},
		},
		Transport: TransportConfig{Kind: TransportLoopback},
		LogLevel:  "info",
	}
}

// Load reads, defaults, and validates a JSON configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", path)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "parse JSON")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.DeviceRoot == "" {
		c.DeviceRoot = channel.DefaultRoot
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportLoopback
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port == 0 {
			c.Metrics.Port = 9090
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
	}
	for i := range c.Instances {
		for j := range c.Instances[i].Channels {
			ch := &c.Instances[i].Channels[j]
			if ch.PoolSize == 0 {
				ch.PoolSize = DefaultPoolSize
			}
			if ch.FrameCapacity == 0 {
				ch.FrameCapacity = DefaultFrameCapacity
			}
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if len(c.Instances) == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "instances")
	}

	switch c.Transport.Kind {
	case TransportLoopback:
	case TransportNATS:
		if c.Transport.URL == "" {
			return errors.WrapFatal(
				fmt.Errorf("nats transport requires a url"),
				"Config", "Validate", "transport")
		}
	default:
		return errors.WrapFatal(
			fmt.Errorf("unknown transport kind %q", c.Transport.Kind),
			"Config", "Validate", "transport")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapFatal(
			fmt.Errorf("unknown log level %q", c.LogLevel),
			"Config", "Validate", "log level")
	}

	seenInstance := make(map[uint8]bool)
	for _, inst := range c.Instances {
		if inst.Name == "" {
			return errors.WrapFatal(
				fmt.Errorf("instance %d has no name", inst.ID),
				"Config", "Validate", "instance name")
		}
		if seenInstance[inst.ID] {
			return errors.WrapFatal(
				fmt.Errorf("instance %d declared twice", inst.ID),
				"Config", "Validate", "instance id")
		}
		seenInstance[inst.ID] = true

		if len(inst.Channels) == 0 {
			return errors.WrapFatal(
				fmt.Errorf("instance %s declares no channels", inst.Name),
				"Config", "Validate", "channels")
		}

		seenChannel := make(map[uint8]bool)
		for _, ch := range inst.Channels {
			if ch.Name == "" {
				return errors.WrapFatal(
					fmt.Errorf("instance %s channel %d has no name", inst.Name, ch.ID),
					"Config", "Validate", "channel name")
			}
			if seenChannel[ch.ID] {
				return errors.WrapFatal(
					fmt.Errorf("instance %s channel %d declared twice", inst.Name, ch.ID),
					"Config", "Validate", "channel id")
			}
			seenChannel[ch.ID] = true

			if ch.PoolSize < 1 {
				return errors.WrapFatal(
					fmt.Errorf("channel %s/%s: pool size %d", inst.Name, ch.Name, ch.PoolSize),
					"Config", "Validate", "pool size")
			}
			if ch.FrameCapacity < 1 {
				return errors.WrapFatal(
					fmt.Errorf("channel %s/%s: frame capacity %d", inst.Name, ch.Name, ch.FrameCapacity),
					"Config", "Validate", "frame capacity")
			}
		}
	}

	return nil
}

// Declarations flattens the instance tree into the channel registry's
// input form.
func (c *Config) Declarations() []channel.Declaration {
	var decls []channel.Declaration
	for _, inst := range c.Instances {
		for _, ch := range inst.Channels {
			decls = append(decls, channel.Declaration{
				InstanceID:    inst.ID,
				InstanceName:  inst.Name,
				ChannelID:     ch.ID,
				ChannelName:   ch.Name,
				PrependSize:   ch.PrependSize,
				PoolSize:      ch.PoolSize,
				FrameCapacity: ch.FrameCapacity,
			})
		}
	}
	return decls
}
