// Package main implements the vibestream staging producer: it copies the
// filtered corpus into the shared data directory, writes the play-order
// manifest, signals readiness, and then idles reporting health.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/c360/vibestream/config"
	"github.com/c360/vibestream/corpus"
	"github.com/c360/vibestream/stage"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "vibestream-stager"
)

func main() {
	if err := run(); err != nil {
		slog.Error("stager failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		sourceRoot    string
		logLevel      string
		logFormat     string
		monitorPeriod time.Duration
		showVersion   bool
	)

	flag.StringVar(&configPath, "config",
		getEnv("VIBESTREAM_CONFIG", ""),
		"Path to configuration file, empty for built-in defaults (env: VIBESTREAM_CONFIG)")
	flag.StringVar(&sourceRoot, "source-root",
		getEnv("VIBESTREAM_SOURCE_ROOT", ""),
		"Corpus source root, overrides the config file value (env: VIBESTREAM_SOURCE_ROOT)")
	flag.StringVar(&logLevel, "log-level",
		getEnv("VIBESTREAM_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VIBESTREAM_LOG_LEVEL)")
	flag.StringVar(&logFormat, "log-format",
		getEnv("VIBESTREAM_LOG_FORMAT", "json"),
		"Log format: json, text (env: VIBESTREAM_LOG_FORMAT)")
	flag.DurationVar(&monitorPeriod, "monitor-period",
		stage.DefaultMonitorPeriod,
		"How often to report staged file counts after staging completes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(logLevel, logFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if sourceRoot != "" {
		cfg.Corpus.SourceRoot = sourceRoot
	}
	if cfg.Corpus.SourceRoot == "" {
		return fmt.Errorf("source root is required (flag -source-root or config corpus.source_root)")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting corpus stager",
		"version", Version,
		"source_root", cfg.Corpus.SourceRoot,
		"shared_dir", cfg.Corpus.SharedDataPath,
		"machines", cfg.Corpus.IncludeMachines,
		"excluded_operations", cfg.Corpus.ExcludeOperations)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	stager := stage.NewStager(
		cfg.Corpus.SourceRoot,
		cfg.Corpus.SharedDataPath,
		corpus.Filter{
			IncludeMachines:   cfg.Corpus.IncludeMachines,
			ExcludeOperations: cfg.Corpus.ExcludeOperations,
		},
		logger,
		monitorPeriod,
	)

	return stager.Run(signalCtx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		slog.Info("no config file given, using built-in defaults")
		return config.Default(), nil
	}
	cfg, err := config.NewLoader().LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
