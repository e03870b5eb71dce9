package readiness

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibestream/errors"
)

func TestSignalWritesMarker(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Signal(dir, Marker{Generation: "gen-1", FileCount: 42}))

	data, err := os.ReadFile(filepath.Join(dir, MarkerFileName))
	require.NoError(t, err)

	var marker Marker
	require.NoError(t, json.Unmarshal(data, &marker))
	assert.Equal(t, "gen-1", marker.Generation)
	assert.Equal(t, 42, marker.FileCount)
	assert.False(t, marker.StagedAt.IsZero())
}

func TestSignalIdempotent(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Signal(dir, Marker{Generation: "gen-1", FileCount: 1}))
	// A second signal must not replace the existing marker
	require.NoError(t, Signal(dir, Marker{Generation: "gen-2", FileCount: 99}))

	data, err := os.ReadFile(filepath.Join(dir, MarkerFileName))
	require.NoError(t, err)

	var marker Marker
	require.NoError(t, json.Unmarshal(data, &marker))
	assert.Equal(t, "gen-1", marker.Generation)
}

func TestAwaitMarkerAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Signal(dir, Marker{Generation: "gen-1", FileCount: 7}))

	marker, err := Await(context.Background(), dir, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", marker.Generation)
	assert.Equal(t, 7, marker.FileCount)
}

func TestAwaitMarkerAppearsLater(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = Signal(dir, Marker{Generation: "late"})
	}()

	marker, err := Await(context.Background(), dir, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "late", marker.Generation)
}

func TestAwaitTimeout(t *testing.T) {
	start := time.Now()
	_, err := Await(context.Background(), t.TempDir(), 200*time.Millisecond, 20*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrReadinessTimeout)
	assert.True(t, errors.IsTransient(err))
	// The wait must end promptly after the deadline, not linger
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestAwaitContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Await(ctx, t.TempDir(), time.Minute, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitUnparseableMarkerStillReady(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFileName), []byte("garbage"), 0o644))

	marker, err := Await(context.Background(), dir, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, marker.Generation)
}
