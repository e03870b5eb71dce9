// Package readiness implements the durable handshake between the staging
// producer and the streaming consumer.
//
// The two sides run as independent processes with no call channel between
// them; the only coordination primitive is a marker file at a well-known
// location in the shared data directory. The producer writes it exactly once
// when every staged file is durably on disk, the consumer polls for it with a
// bounded wait before touching the corpus. Either side can restart
// independently without invalidating the handshake.
package readiness

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c360/vibestream/errors"
)

// MarkerFileName is the well-known marker location inside the shared data
// directory. Presence means "staging complete"; absence means "not yet ready".
const MarkerFileName = ".ready"

// DefaultPollInterval bounds how often Await re-checks for the marker
const DefaultPollInterval = 250 * time.Millisecond

// Marker records what the producer staged, for the consumer's startup log
type Marker struct {
	Generation string    `json:"generation"`
	StagedAt   time.Time `json:"staged_at"`
	FileCount  int       `json:"file_count"`
}

// Signal writes the readiness marker into dir. It is idempotent: if a marker
// from this generation already exists it is left untouched, so calling Signal
// twice has no additional effect.
func Signal(dir string, marker Marker) error {
	path := filepath.Join(dir, MarkerFileName)
	if _, err := os.Stat(path); err == nil {
		slog.Debug("readiness marker already present", "path", path)
		return nil
	}

	if marker.StagedAt.IsZero() {
		marker.StagedAt = time.Now().UTC()
	}

	data, err := json.Marshal(marker)
	if err != nil {
		return errors.WrapFatal(err, "readiness", "Signal", "marshal marker")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapFatal(err, "readiness", "Signal", "write marker file")
	}

	slog.Info("readiness marker written",
		"path", path,
		"generation", marker.Generation,
		"file_count", marker.FileCount)
	return nil
}

// Await blocks until the readiness marker appears in dir or the timeout
// elapses, polling at interval (DefaultPollInterval when zero). A timeout is
// reported as ErrReadinessTimeout: recoverable by restarting the consumer,
// not a reason to panic. Context cancellation aborts the wait early.
func Await(ctx context.Context, dir string, timeout time.Duration, interval time.Duration) (*Marker, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	path := filepath.Join(dir, MarkerFileName)
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if marker, ok := tryRead(path); ok {
			slog.Info("readiness marker observed",
				"path", path,
				"generation", marker.Generation,
				"file_count", marker.FileCount)
			return marker, nil
		}

		if time.Now().After(deadline) {
			return nil, errors.WrapTransient(errors.ErrReadinessTimeout, "readiness", "Await",
				"wait for "+path)
		}

		select {
		case <-ctx.Done():
			return nil, errors.WrapTransient(ctx.Err(), "readiness", "Await", "wait for marker")
		case <-ticker.C:
		}
	}
}

// tryRead returns the marker contents if the file exists. A marker that
// exists but does not parse still counts as ready: presence is the signal,
// the body is informational only.
func tryRead(path string) (*Marker, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		slog.Warn("readiness marker present but unparseable, treating as ready",
			"path", path,
			"error", err)
		return &Marker{}, true
	}
	return &marker, true
}
