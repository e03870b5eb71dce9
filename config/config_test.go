package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"M01", "M02"}, cfg.Corpus.IncludeMachines)
	assert.Equal(t, []string{"OP00", "OP06", "OP09", "OP13"}, cfg.Corpus.ExcludeOperations)
	assert.Equal(t, 10, cfg.Playback.BatchSize)
	assert.Equal(t, time.Second, cfg.Playback.Period.Std())
	assert.Equal(t, 5*time.Minute, cfg.Playback.ReadinessTimeout.Std())
	assert.Equal(t, "vibestream", cfg.Sink.KVBucket)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"corpus": {
			"shared_data_path": "/data",
			"include_machines": ["M01"]
		},
		"playback": {
			"batch_size": 25,
			"period": "500ms"
		},
		"nats": {
			"urls": ["nats://broker:4222"]
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data", cfg.Corpus.SharedDataPath)
	assert.Equal(t, []string{"M01"}, cfg.Corpus.IncludeMachines)
	assert.Equal(t, 25, cfg.Playback.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.Period.Std())
	assert.Equal(t, []string{"nats://broker:4222"}, cfg.NATS.URLs)

	// Untouched sections keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Playback.ReadinessTimeout.Std())
	assert.Equal(t, "vibestream", cfg.Sink.KVBucket)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing shared path", func(c *Config) { c.Corpus.SharedDataPath = "" }},
		{"no machines", func(c *Config) { c.Corpus.IncludeMachines = nil }},
		{"zero batch size", func(c *Config) { c.Playback.BatchSize = 0 }},
		{"negative batch size", func(c *Config) { c.Playback.BatchSize = -5 }},
		{"zero period", func(c *Config) { c.Playback.Period = 0 }},
		{"zero readiness timeout", func(c *Config) { c.Playback.ReadinessTimeout = 0 }},
		{"no nats urls", func(c *Config) { c.NATS.URLs = nil }},
		{"missing kv bucket", func(c *Config) { c.Sink.KVBucket = "" }},
		{"bad websocket port", func(c *Config) {
			c.Sink.WebSocketEnabled = true
			c.Sink.WebSocketPort = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1s"`), &d))
	assert.Equal(t, time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Std())

	// Plain numbers are nanoseconds
	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"not a duration"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	data, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, 90*time.Second, d.Std())
}
