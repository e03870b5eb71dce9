package playback

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/vibestream/corpus"
	"github.com/c360/vibestream/errors"
	"github.com/c360/vibestream/metric"
)

// Config holds the playback engine's tunables
type Config struct {
	// BatchSize is the number of consecutive samples per emission
	BatchSize int
	// Period is the emission cadence
	Period time.Duration
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "batch size must be positive")
	}
	if c.Period <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "period must be positive")
	}
	return nil
}

// Engine drives the unbounded rotation/playback loop: on a fixed period it
// emits one batch from the current file's current offset, advances the
// cursor, wraps to the first file after the last, and skips forward past
// files that fail to load. The sequence of emitted batches is fully
// determined by the manifest and the starting position.
type Engine struct {
	manifest  *corpus.Manifest
	baseDir   string
	loader    Loader
	sink      Sink
	logger    *slog.Logger
	metrics   *metric.Metrics // nil disables instrumentation
	batchSize int
	period    time.Duration

	// Cursor state, owned by the run loop
	pos     Position
	samples *Samples
	posMu   sync.RWMutex

	// Failure accounting
	loadFailures atomic.Int64
	sinkFailures atomic.Int64

	// Lifecycle management
	shutdown    chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	running     bool
	startTime   time.Time
	runErr      error
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup
}

// NewEngine creates a playback engine over the given manifest. Recording
// paths in the manifest are resolved relative to baseDir. An empty manifest
// is rejected immediately rather than looping with nothing to emit.
func NewEngine(
	manifest *corpus.Manifest,
	baseDir string,
	loader Loader,
	sink Sink,
	cfg Config,
	logger *slog.Logger,
	metrics *metric.Metrics,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if manifest == nil || manifest.Empty() {
		return nil, errors.WrapFatal(errors.ErrEmptyManifest, "Engine", "NewEngine", "check manifest")
	}
	if loader == nil {
		loader = CSVLoader{}
	}
	if sink == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Engine", "NewEngine", "sink required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if metrics != nil {
		metrics.ManifestFiles.Set(float64(manifest.Len()))
	}

	return &Engine{
		manifest:  manifest,
		baseDir:   baseDir,
		loader:    loader,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
		batchSize: cfg.BatchSize,
		period:    cfg.Period,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Initialize loads the first playable file so that a corpus with no playable
// data fails at startup instead of on the first tick
func (e *Engine) Initialize() error {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	return e.ensureLoaded()
}

// Start begins the timed emission loop
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Engine", "Start", "check running state")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	e.logger.Info("playback engine starting",
		"files", e.manifest.Len(),
		"generation", e.manifest.Generation,
		"batch_size", e.batchSize,
		"period", e.period,
		"sink", e.sink.Name())

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

// Stop gracefully stops the loop: the in-flight tick finishes or is
// abandoned, no partial batch is ever emitted
func (e *Engine) Stop(timeout time.Duration) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	close(e.shutdown)

	waitCh := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShuttingDown, "Engine", "Stop", "wait for run loop")
	}

	return nil
}

// Done is closed when the run loop exits, whether by Stop, context
// cancellation, or a fatal playback error
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the fatal error that terminated the loop, if any
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runErr
}

// Position returns a copy of the current playback cursor
func (e *Engine) Position() Position {
	e.posMu.RLock()
	defer e.posMu.RUnlock()
	return e.pos
}

// LoadFailures returns how many file loads have been skipped
func (e *Engine) LoadFailures() int64 {
	return e.loadFailures.Load()
}

// SinkFailures returns how many best-effort sink writes have failed
func (e *Engine) SinkFailures() int64 {
	return e.sinkFailures.Load()
}

// run is the single long-lived timed loop driving batch emission
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	defer e.closeOnce.Do(func() { close(e.done) })

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			e.logger.Info("playback engine stopped", "position", e.Position())
			return
		case <-ctx.Done():
			e.logger.Info("playback engine cancelled", "position", e.Position())
			return
		case <-ticker.C:
			batch, err := e.NextBatch()
			if err != nil {
				e.mu.Lock()
				e.runErr = err
				e.mu.Unlock()
				e.logger.Error("playback engine halted", "error", err)
				return
			}
			e.publish(ctx, batch)
		}
	}
}

// publish writes one batch to the sink, best-effort
func (e *Engine) publish(ctx context.Context, batch *Batch) {
	if err := e.sink.Publish(ctx, batch); err != nil {
		e.sinkFailures.Add(1)
		if e.metrics != nil {
			e.metrics.RecordSinkWriteFailure(e.sink.Name())
		}
		e.logger.Warn("sink write failed, continuing",
			"sink", e.sink.Name(),
			"file", batch.FileName,
			"file_index", batch.FileIndex,
			"sample_offset", batch.SampleOffset,
			"error", err)
		return
	}

	if e.metrics != nil {
		e.metrics.RecordBatch(batch.Machine, batch.Operation, string(batch.Quality), batch.Len())
	}
	e.logger.Debug("batch published",
		"file", batch.FileName,
		"file_index", batch.FileIndex,
		"sample_offset", batch.SampleOffset,
		"samples", batch.Len())
}

// NextBatch builds the batch at the current position and advances the
// cursor. Exactly the rotation rules of the stream: offset advances by the
// batch size, the final batch of a file may be short, exhausting a file
// rotates to the next index modulo the manifest length, and the loop never
// terminates on its own unless no file in the manifest can be loaded.
func (e *Engine) NextBatch() (*Batch, error) {
	e.posMu.Lock()
	defer e.posMu.Unlock()

	if err := e.ensureLoaded(); err != nil {
		return nil, err
	}

	desc := e.manifest.Files[e.pos.FileIndex]
	total := e.samples.Len()
	start := e.pos.SampleOffset
	end := start + e.batchSize
	if end > total {
		end = total
	}

	batch := &Batch{
		Machine:      desc.Machine,
		Operation:    desc.Operation,
		Quality:      desc.Quality,
		FileName:     desc.FileName,
		FileIndex:    e.pos.FileIndex,
		SampleOffset: start,
		TotalFiles:   e.manifest.Len(),
		TotalSamples: total,
		X:            append([]float64(nil), e.samples.X[start:end]...),
		Y:            append([]float64(nil), e.samples.Y[start:end]...),
		Z:            append([]float64(nil), e.samples.Z[start:end]...),
		Timestamp:    time.Now().UTC(),
	}

	e.pos.SampleOffset = end
	if end >= total {
		e.rotate()
	}

	return batch, nil
}

// rotate advances the cursor to the next manifest file. The next file's
// samples load lazily on the following emission.
func (e *Engine) rotate() {
	prev := e.pos.FileIndex
	e.pos.FileIndex = (e.pos.FileIndex + 1) % e.manifest.Len()
	e.pos.SampleOffset = 0
	e.samples = nil

	if e.metrics != nil {
		e.metrics.RecordRotation(e.pos.FileIndex)
	}
	if e.pos.FileIndex == 0 {
		e.logger.Info("completed all files, wrapping to first file")
	}
	e.logger.Debug("rotated to next file",
		"previous_index", prev,
		"file_index", e.pos.FileIndex,
		"file", e.manifest.Files[e.pos.FileIndex].FileName)
}

// ensureLoaded makes the current file's samples resident, skipping forward
// past files that fail to load or contain no samples. A single bad file must
// never halt the stream; a full pass of failures is fatal. Callers hold posMu.
func (e *Engine) ensureLoaded() error {
	if e.samples != nil {
		return nil
	}

	for attempts := 0; attempts < e.manifest.Len(); attempts++ {
		desc := e.manifest.Files[e.pos.FileIndex]
		path := filepath.Join(e.baseDir, filepath.FromSlash(desc.RelativePath))

		samples, err := e.loader.Load(path)
		if err == nil && samples.Len() == 0 {
			err = errors.WrapTransient(errors.ErrFileLoadFailure, "Engine", "ensureLoaded",
				"recording contains no samples")
		}
		if err == nil {
			e.samples = samples
			if e.metrics != nil {
				e.metrics.CurrentFileIndex.Set(float64(e.pos.FileIndex))
			}
			e.logger.Info("loaded recording",
				"file", desc.String(),
				"file_index", e.pos.FileIndex,
				"total_files", e.manifest.Len(),
				"samples", samples.Len())
			return nil
		}

		e.loadFailures.Add(1)
		if e.metrics != nil {
			e.metrics.RecordFileLoadFailure()
		}
		e.logger.Warn("recording failed to load, skipping",
			"file", desc.String(),
			"file_index", e.pos.FileIndex,
			"error", err)

		e.pos.FileIndex = (e.pos.FileIndex + 1) % e.manifest.Len()
		e.pos.SampleOffset = 0
	}

	return errors.WrapFatal(errors.ErrNoPlayableData, "Engine", "ensureLoaded",
		"load any file in manifest")
}
