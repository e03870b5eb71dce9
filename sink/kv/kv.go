// Package kv publishes batches to the platform's key-value publish target.
//
// Each machine owns a fixed set of named, independently addressable slots:
// three axis-batch slots plus metadata slots describing which recording the
// readings came from. Remote observers watch the bucket; the wire protocol
// serving them is NATS JetStream and entirely outside the streaming core.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/c360/vibestream/errors"
	"github.com/c360/vibestream/natsclient"
	"github.com/c360/vibestream/playback"
)

// Slot names within a machine's namespace
const (
	SlotVibrationX   = "vibration_x"
	SlotVibrationY   = "vibration_y"
	SlotVibrationZ   = "vibration_z"
	SlotFileName     = "file_name"
	SlotOperation    = "operation"
	SlotQuality      = "quality"
	SlotFileIndex    = "file_index"
	SlotSampleOffset = "sample_offset"
	SlotTotalFiles   = "total_files"
	SlotTotalSamples = "total_samples"
	SlotTimestamp    = "timestamp"
)

// allSlots is the full per-machine slot set, pre-created by EnsureSlots
var allSlots = []string{
	SlotVibrationX, SlotVibrationY, SlotVibrationZ,
	SlotFileName, SlotOperation, SlotQuality,
	SlotFileIndex, SlotSampleOffset,
	SlotTotalFiles, SlotTotalSamples, SlotTimestamp,
}

// Sink writes batches into key-value slots
type Sink struct {
	store  *natsclient.KVStore
	logger *slog.Logger
}

// NewSink creates a KV sink over the given slot store
func NewSink(store *natsclient.KVStore, logger *slog.Logger) (*Sink, error) {
	if store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Sink", "NewSink", "kv store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger}, nil
}

// Name implements playback.Sink
func (s *Sink) Name() string {
	return "kv"
}

// SlotKey returns the bucket key for one of a machine's slots
func SlotKey(machine, slot string) string {
	return fmt.Sprintf("%s.%s", machine, slot)
}

// EnsureSlots pre-creates every slot for the given machines so observers can
// subscribe to stable keys before the first batch arrives
func (s *Sink) EnsureSlots(ctx context.Context, machines []string) error {
	for _, machine := range machines {
		for _, slot := range allSlots {
			key := SlotKey(machine, slot)
			exists, err := s.store.Exists(ctx, key)
			if err != nil {
				return errors.WrapTransient(err, "Sink", "EnsureSlots", "check slot "+key)
			}
			if exists {
				continue
			}
			if err := s.store.Put(ctx, key, []byte("null")); err != nil {
				return errors.WrapTransient(err, "Sink", "EnsureSlots", "create slot "+key)
			}
		}
		s.logger.Debug("publish slots ensured", "machine", machine, "slots", len(allSlots))
	}
	return nil
}

// Publish implements playback.Sink: one batch becomes one write per slot in
// the emitting machine's namespace. The axis slots carry JSON float arrays,
// metadata slots carry scalar values. Writes are best-effort; the first
// failure is returned so the engine can count it, but earlier slot writes
// are not rolled back.
func (s *Sink) Publish(ctx context.Context, batch *playback.Batch) error {
	axes := []struct {
		slot    string
		samples []float64
	}{
		{SlotVibrationX, batch.X},
		{SlotVibrationY, batch.Y},
		{SlotVibrationZ, batch.Z},
	}

	for _, axis := range axes {
		data, err := json.Marshal(axis.samples)
		if err != nil {
			return errors.WrapInvalid(err, "Sink", "Publish", "marshal "+axis.slot)
		}
		if err := s.writeSlot(ctx, batch.Machine, axis.slot, data); err != nil {
			return err
		}
	}

	meta := map[string]string{
		SlotFileName:     batch.FileName,
		SlotOperation:    batch.Operation,
		SlotQuality:      string(batch.Quality),
		SlotFileIndex:    strconv.Itoa(batch.FileIndex),
		SlotSampleOffset: strconv.Itoa(batch.SampleOffset),
		SlotTotalFiles:   strconv.Itoa(batch.TotalFiles),
		SlotTotalSamples: strconv.Itoa(batch.TotalSamples),
		SlotTimestamp:    batch.Timestamp.Format(time.RFC3339Nano),
	}
	for slot, value := range meta {
		if err := s.writeSlot(ctx, batch.Machine, slot, []byte(value)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sink) writeSlot(ctx context.Context, machine, slot string, value []byte) error {
	key := SlotKey(machine, slot)
	if err := s.store.Put(ctx, key, value); err != nil {
		return errors.WrapTransient(errors.ErrSinkWrite, "Sink", "Publish", "write slot "+key)
	}
	return nil
}
