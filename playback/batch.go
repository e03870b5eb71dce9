package playback

import (
	"context"
	"time"

	"github.com/c360/vibestream/corpus"
)

// Batch is the atomic unit of emission: up to BatchSize consecutive samples
// from exactly one recording file, plus the positional metadata downstream
// consumers need to locate the readings. A batch is either fully populated
// and emitted, or not emitted at all; it never spans two files.
type Batch struct {
	Machine      string         `json:"machine"`
	Operation    string         `json:"operation"`
	Quality      corpus.Quality `json:"quality"`
	FileName     string         `json:"file_name"`
	FileIndex    int            `json:"file_index"`
	SampleOffset int            `json:"sample_offset"`
	TotalFiles   int            `json:"total_files"`
	TotalSamples int            `json:"total_samples"`
	X            []float64      `json:"x"`
	Y            []float64      `json:"y"`
	Z            []float64      `json:"z"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Len returns the number of samples in the batch
func (b *Batch) Len() int {
	return len(b.X)
}

// Sink receives emitted batches and writes them to a publish target. Write
// failures are reported to the engine but must not stop the loop: losing one
// interval's reflection is preferable to halting the simulation.
type Sink interface {
	// Name identifies the sink in logs and failure counters
	Name() string
	// Publish writes one batch to the target
	Publish(ctx context.Context, batch *Batch) error
}

// Position is the playback cursor: which manifest file is active and how far
// into its samples the stream has advanced. It is owned exclusively by the
// Engine; replicas each hold their own.
type Position struct {
	FileIndex    int
	SampleOffset int
}
