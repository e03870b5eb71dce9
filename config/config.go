// Package config provides JSON configuration loading for the vibestream
// binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/vibestream/errors"
)

// Duration wraps time.Duration with JSON support for human-readable values
// like "1s" alongside plain nanosecond numbers
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full configuration surface consumed by both binaries
type Config struct {
	Corpus   CorpusConfig   `json:"corpus"`
	Playback PlaybackConfig `json:"playback"`
	NATS     NATSConfig     `json:"nats"`
	Sink     SinkConfig     `json:"sink"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// CorpusConfig locates the corpus and selects what participates in playback
type CorpusConfig struct {
	// SourceRoot is where the stager copies recordings from
	SourceRoot string `json:"source_root"`
	// SharedDataPath is the staging target shared between producer and consumer
	SharedDataPath    string   `json:"shared_data_path"`
	IncludeMachines   []string `json:"include_machines"`
	ExcludeOperations []string `json:"exclude_operations"`
}

// PlaybackConfig tunes the emission loop and the startup handshake
type PlaybackConfig struct {
	BatchSize             int      `json:"batch_size"`
	Period                Duration `json:"period"`
	ReadinessTimeout      Duration `json:"readiness_timeout"`
	ReadinessPollInterval Duration `json:"readiness_poll_interval"`
}

// NATSConfig configures the publish target connection
type NATSConfig struct {
	URLs          []string `json:"urls"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait"`
}

// SinkConfig selects and tunes the publish sink adapters
type SinkConfig struct {
	KVBucket         string `json:"kv_bucket"`
	WebSocketEnabled bool   `json:"websocket_enabled"`
	WebSocketPort    int    `json:"websocket_port"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Corpus.SharedDataPath == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "shared_data_path is required")
	}
	if len(c.Corpus.IncludeMachines) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "include_machines cannot be empty")
	}
	if c.Playback.BatchSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "batch_size must be positive")
	}
	if c.Playback.Period.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "period must be positive")
	}
	if c.Playback.ReadinessTimeout.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "readiness_timeout must be positive")
	}
	if len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "nats urls cannot be empty")
	}
	if c.Sink.KVBucket == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "kv_bucket is required")
	}
	if c.Sink.WebSocketEnabled && (c.Sink.WebSocketPort <= 0 || c.Sink.WebSocketPort > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid websocket_port %d", c.Sink.WebSocketPort))
	}
	return nil
}

// Default returns the configuration matching the original deployment's
// filtering and cadence
func Default() *Config {
	return &Config{
		Corpus: CorpusConfig{
			SharedDataPath:    "/shared-data",
			IncludeMachines:   []string{"M01", "M02"},
			ExcludeOperations: []string{"OP00", "OP06", "OP09", "OP13"},
		},
		Playback: PlaybackConfig{
			BatchSize:             10,
			Period:                Duration(time.Second),
			ReadinessTimeout:      Duration(5 * time.Minute),
			ReadinessPollInterval: Duration(250 * time.Millisecond),
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Sink: SinkConfig{
			KVBucket:         "vibestream",
			WebSocketEnabled: false,
			WebSocketPort:    8081,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Loader loads configuration files
type Loader struct{}

// NewLoader creates a configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile reads a JSON configuration file, applying defaults for every
// field the file omits
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "LoadFile", "read "+path)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "unmarshal "+path)
	}
	return cfg, nil
}
