// Package sink provides publish sink adapters and composition helpers for
// the playback engine.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/c360/vibestream/metric"
	"github.com/c360/vibestream/playback"
)

// Multi fans one batch out to several sinks. Failures are isolated per sink:
// a rejected websocket broadcast never blocks the KV slot writes. The joined
// error is returned so the engine's best-effort accounting still fires.
type Multi struct {
	sinks   []playback.Sink
	logger  *slog.Logger
	metrics *metric.Metrics // nil disables per-sink failure counters
}

// NewMulti composes the given sinks into one
func NewMulti(logger *slog.Logger, metrics *metric.Metrics, sinks ...playback.Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
	}
}

// Name implements playback.Sink
func (m *Multi) Name() string {
	return "multi"
}

// Publish implements playback.Sink
func (m *Multi) Publish(ctx context.Context, batch *playback.Batch) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, batch); err != nil {
			if m.metrics != nil {
				m.metrics.RecordSinkWriteFailure(s.Name())
			}
			m.logger.Warn("sink publish failed",
				"sink", s.Name(),
				"file", batch.FileName,
				"file_index", batch.FileIndex,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
