// Package main implements the vibestream streaming consumer: it waits for
// the staging producer's readiness signal, loads the persisted manifest, and
// replays the corpus through the publish target forever.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/vibestream/config"
	"github.com/c360/vibestream/corpus"
	"github.com/c360/vibestream/metric"
	"github.com/c360/vibestream/natsclient"
	"github.com/c360/vibestream/playback"
	"github.com/c360/vibestream/readiness"
	"github.com/c360/vibestream/sink"
	kvsink "github.com/c360/vibestream/sink/kv"
	wssink "github.com/c360/vibestream/sink/websocket"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "vibestream"
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
		slog.Error("streamer failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	slog.Info("starting vibration replay streamer",
		"version", Version,
		"shared_dir", cfg.Corpus.SharedDataPath,
		"machines", cfg.Corpus.IncludeMachines,
		"excluded_operations", cfg.Corpus.ExcludeOperations,
		"batch_size", cfg.Playback.BatchSize,
		"period", cfg.Playback.Period.Std())

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// The producer must finish staging before the corpus is touched
	marker, err := readiness.Await(signalCtx, cfg.Corpus.SharedDataPath,
		cfg.Playback.ReadinessTimeout.Std(), cfg.Playback.ReadinessPollInterval.Std())
	if err != nil {
		return fmt.Errorf("await staging readiness: %w", err)
	}

	// The persisted manifest is the sole source of play order; re-deriving
	// it here could disagree with what the producer staged
	manifest, err := corpus.LoadManifest(cfg.Corpus.SharedDataPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if marker.Generation != "" && marker.Generation != manifest.Generation {
		slog.Warn("manifest generation differs from readiness marker",
			"manifest_generation", manifest.Generation,
			"marker_generation", marker.Generation)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, "/metrics", metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			_ = metricsServer.Stop()
		}()
		slog.Info("metrics server started", "address", metricsServer.Address())
	}

	natsClient, err := natsclient.NewClient(cfg.NATS.URLs[0],
		natsclient.WithClientName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metricsRegistry.CoreMetrics()),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := natsClient.Connect(signalCtx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() {
		_ = natsClient.Close(context.Background())
	}()

	publishSink, wsSink, err := buildSinks(signalCtx, cfg, natsClient, metricsRegistry, logger)
	if err != nil {
		return err
	}
	if wsSink != nil {
		defer func() {
			_ = wsSink.Stop(cliCfg.ShutdownTimeout)
		}()
	}

	engine, err := playback.NewEngine(
		manifest,
		cfg.Corpus.SharedDataPath,
		playback.CSVLoader{},
		publishSink,
		playback.Config{
			BatchSize: cfg.Playback.BatchSize,
			Period:    cfg.Playback.Period.Std(),
		},
		logger,
		metricsRegistry.CoreMetrics(),
	)
	if err != nil {
		return fmt.Errorf("create playback engine: %w", err)
	}

	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initialize playback engine: %w", err)
	}
	if err := engine.Start(signalCtx); err != nil {
		return fmt.Errorf("start playback engine: %w", err)
	}

	select {
	case <-signalCtx.Done():
		slog.Info("received shutdown signal")
	case <-engine.Done():
		if err := engine.Err(); err != nil {
			return fmt.Errorf("playback halted: %w", err)
		}
	}

	if err := engine.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("vibestream shutdown complete")
	return nil
}

// buildSinks wires the KV publish target and, when enabled, the websocket
// observer broadcast into one sink for the engine
func buildSinks(
	ctx context.Context,
	cfg *config.Config,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (playback.Sink, *wssink.Sink, error) {
	bucket, err := natsClient.EnsureKeyValue(ctx, cfg.Sink.KVBucket)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure KV bucket: %w", err)
	}

	store := natsClient.NewKVStore(bucket)
	kvSink, err := kvsink.NewSink(store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create KV sink: %w", err)
	}
	if err := kvSink.EnsureSlots(ctx, cfg.Corpus.IncludeMachines); err != nil {
		return nil, nil, fmt.Errorf("ensure publish slots: %w", err)
	}

	if !cfg.Sink.WebSocketEnabled {
		return kvSink, nil, nil
	}

	wsSink, err := wssink.NewSink(wssink.Config{Port: cfg.Sink.WebSocketPort, Path: "/ws"}, metricsRegistry, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create websocket sink: %w", err)
	}
	if err := wsSink.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start websocket sink: %w", err)
	}

	return sink.NewMulti(logger, metricsRegistry.CoreMetrics(), kvSink, wsSink), wsSink, nil
}

// loadConfig loads configuration from the given path, or built-in defaults
// when the path is empty
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		slog.Info("no config file given, using built-in defaults")
		return config.Default(), nil
	}
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Environment variable override takes precedence
	if envURL := os.Getenv("VIBESTREAM_NATS_URLS"); envURL != "" {
		cfg.NATS.URLs = []string{envURL}
	}
	return cfg, nil
}
