// Package main implements the entry point for the shmbridge daemon.
// shmbridge fronts per-channel shared-frame streams with bounded lossy
// ring buffers, exposing each channel as a non-blocking read/write
// handle while a transport moves frames to and from the remote peer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/shmbridge/bridge"
	"github.com/c360/shmbridge/config"
	"github.com/c360/shmbridge/health"
	"github.com/c360/shmbridge/metric"
	"github.com/c360/shmbridge/natsclient"
	"github.com/c360/shmbridge/pkg/retry"
	"github.com/c360/shmbridge/transport"
	"github.com/c360/shmbridge/transport/natsbridge"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "shmbridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to JSON configuration (defaults apply when empty)")
	logLevel := flag.String("log-level", "", "override log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version and exit")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Starting shmbridge",
		"version", Version,
		"config_path", *configPath,
		"transport", cfg.Transport.Kind,
		"channels", len(cfg.Declarations()))

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	tr, closeTransport, err := buildTransport(cfg, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	b, err := bridge.New(bridge.Config{
		Root:       cfg.DeviceRoot,
		Channels:   cfg.Declarations(),
		ReadyProbe: retry.DefaultConfig(),
	}, bridge.Deps{
		Transport: tr,
		Logger:    logger,
		Metrics:   metricsRegistry,
		Health:    monitor,
	})
	if err != nil {
		return err
	}

	if err := b.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		return err
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, monitor)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		logger.Info("Metrics endpoint up", "address", metricsServer.Address(), "path", cfg.Metrics.Path)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Reverse order of startup.
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("Metrics server stop", "error", err)
		}
	}
	if err := b.Stop(*shutdownTimeout); err != nil {
		logger.Error("Bridge stop", "error", err)
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}

// loadConfig reads the configuration file, or falls back to the
// canonical M7_0 defaults when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// buildTransport constructs the configured transport and returns a
// cleanup for resources that outlive the bridge.
func buildTransport(cfg *config.Config, logger *slog.Logger) (transport.Transport, func(), error) {
	switch cfg.Transport.Kind {
	case config.TransportLoopback:
		lb := transport.NewLoopback(transport.LoopbackConfig{
			TxSlots:  cfg.Transport.TxSlots,
			SlotSize: maxFrameCapacity(cfg),
			Echo:     cfg.Transport.Echo,
		}, logger)
		return lb, func() {}, nil

	case config.TransportNATS:
		opts := []natsclient.ClientOption{
			natsclient.WithName(appName),
		}
		if cfg.Transport.MaxReconnects != 0 {
			opts = append(opts, natsclient.WithMaxReconnects(cfg.Transport.MaxReconnects))
		}
		if cfg.Transport.ReconnectWait > 0 {
			opts = append(opts, natsclient.WithReconnectWait(cfg.Transport.ReconnectWait))
		}
		if cfg.Transport.Username != "" {
			opts = append(opts, natsclient.WithCredentials(cfg.Transport.Username, cfg.Transport.Password))
		}
		if cfg.Transport.Token != "" {
			opts = append(opts, natsclient.WithToken(cfg.Transport.Token))
		}

		client, err := natsclient.NewClient(cfg.Transport.URL, opts...)
		if err != nil {
			return nil, nil, err
		}

		routes := make([]natsbridge.Route, 0, len(cfg.Declarations()))
		for _, decl := range cfg.Declarations() {
			routes = append(routes, natsbridge.Route{
				InstanceID:   decl.InstanceID,
				ChannelID:    decl.ChannelID,
				InstanceName: decl.InstanceName,
				ChannelName:  decl.ChannelName,
			})
		}

		tr, err := natsbridge.New(natsbridge.Config{
			Routes:   routes,
			TxSlots:  cfg.Transport.TxSlots,
			SlotSize: maxFrameCapacity(cfg),
		}, natsbridge.Deps{
			Client: client,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}

		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error("NATS client close", "error", err)
			}
		}
		return tr, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// maxFrameCapacity sizes transmit buffers to the largest channel frame.
func maxFrameCapacity(cfg *config.Config) int {
	capLimit := 0
	for _, decl := range cfg.Declarations() {
		if decl.FrameCapacity > capLimit {
			capLimit = decl.FrameCapacity
		}
	}
	return capLimit
}

// setupLogger builds the process logger at the configured level.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
