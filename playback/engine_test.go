package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibestream/corpus"
	"github.com/c360/vibestream/errors"
)

// fakeLoader serves recordings from memory, keyed by relative path
type fakeLoader struct {
	recordings map[string]*Samples
	failPaths  map[string]bool
}

func (l *fakeLoader) Load(path string) (*Samples, error) {
	if l.failPaths[path] {
		return nil, errors.WrapTransient(errors.ErrFileLoadFailure, "fakeLoader", "Load", "open "+path)
	}
	samples, ok := l.recordings[path]
	if !ok {
		return nil, errors.WrapTransient(errors.ErrFileLoadFailure, "fakeLoader", "Load", "open "+path)
	}
	return samples, nil
}

// captureSink records every published batch
type captureSink struct {
	mu      sync.Mutex
	batches []*Batch
	failAll bool
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(_ context.Context, batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.WrapTransient(errors.ErrSinkWrite, "captureSink", "Publish", "write")
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func ramp(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

func descriptor(machine, operation string, seq int) corpus.FileDescriptor {
	name := fmt.Sprintf("%s_Aug_2019_%s_%03d.csv", machine, operation, seq)
	return corpus.FileDescriptor{
		Machine:      machine,
		Operation:    operation,
		Quality:      corpus.QualityGood,
		FileName:     name,
		RelativePath: fmt.Sprintf("%s/%s/good/%s", machine, operation, name),
		SequenceKey:  fmt.Sprintf("2019-08/%03d", seq),
	}
}

func testConfig() Config {
	return Config{BatchSize: 2, Period: time.Second}
}

// newTestEngine wires an engine over two recordings: OP01 with 3 samples,
// OP02 with 2 samples
func newTestEngine(t *testing.T) (*Engine, *captureSink) {
	t.Helper()

	d1 := descriptor("M01", "OP01", 0)
	d2 := descriptor("M01", "OP02", 0)
	loader := &fakeLoader{
		recordings: map[string]*Samples{
			d1.RelativePath: {X: ramp(3, 0), Y: ramp(3, 10), Z: ramp(3, 20)},
			d2.RelativePath: {X: ramp(2, 100), Y: ramp(2, 110), Z: ramp(2, 120)},
		},
	}
	manifest := corpus.NewManifest([]corpus.FileDescriptor{d1, d2})
	sink := &captureSink{}

	engine, err := NewEngine(manifest, "", loader, sink, testConfig(), nil, nil)
	require.NoError(t, err)
	return engine, sink
}

func TestEngineRotationSequence(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Initialize())

	// First batch: OP01 offset 0, full
	b1, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP01", b1.Operation)
	assert.Equal(t, 0, b1.FileIndex)
	assert.Equal(t, 0, b1.SampleOffset)
	assert.Equal(t, []float64{0, 1}, b1.X)
	assert.Equal(t, []float64{10, 11}, b1.Y)
	assert.Equal(t, []float64{20, 21}, b1.Z)
	assert.Equal(t, 2, b1.TotalFiles)
	assert.Equal(t, 3, b1.TotalSamples)

	// Second batch: OP01 offset 2, short final batch, then rotation
	b2, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP01", b2.Operation)
	assert.Equal(t, 2, b2.SampleOffset)
	assert.Equal(t, []float64{2}, b2.X)
	assert.Equal(t, 1, b2.Len())

	// Third batch: OP02 offset 0, exhausts the second file exactly
	b3, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP02", b3.Operation)
	assert.Equal(t, 1, b3.FileIndex)
	assert.Equal(t, 0, b3.SampleOffset)
	assert.Equal(t, []float64{100, 101}, b3.X)

	// Fourth batch: wrapped back to OP01 offset 0
	b4, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP01", b4.Operation)
	assert.Equal(t, 0, b4.FileIndex)
	assert.Equal(t, 0, b4.SampleOffset)
	assert.Equal(t, []float64{0, 1}, b4.X)
}

func TestEngineBatchNeverSpansFiles(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Initialize())

	for i := 0; i < 20; i++ {
		batch, err := engine.NextBatch()
		require.NoError(t, err)
		assert.LessOrEqual(t, batch.Len(), 2)
		assert.LessOrEqual(t, batch.SampleOffset+batch.Len(), batch.TotalSamples,
			"batch %d reads past its file", i)
	}
}

func TestEngineBatchSlicesAreCopies(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Initialize())

	b1, err := engine.NextBatch()
	require.NoError(t, err)
	b1.X[0] = 9999

	// Wrap around back to the same file and offset
	for i := 0; i < 2; i++ {
		_, err = engine.NextBatch()
		require.NoError(t, err)
	}
	b4, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, 0, b4.FileIndex)
	assert.Equal(t, 0, b4.SampleOffset)
	assert.Equal(t, float64(0), b4.X[0])
}

func TestEngineSkipsUnloadableFile(t *testing.T) {
	d1 := descriptor("M01", "OP01", 0)
	d2 := descriptor("M01", "OP02", 0)
	d3 := descriptor("M01", "OP03", 0)
	loader := &fakeLoader{
		recordings: map[string]*Samples{
			d1.RelativePath: {X: ramp(2, 0), Y: ramp(2, 0), Z: ramp(2, 0)},
			d3.RelativePath: {X: ramp(2, 50), Y: ramp(2, 50), Z: ramp(2, 50)},
		},
		failPaths: map[string]bool{d2.RelativePath: true},
	}
	manifest := corpus.NewManifest([]corpus.FileDescriptor{d1, d2, d3})

	engine, err := NewEngine(manifest, "", loader, &captureSink{}, testConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())

	b1, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP01", b1.Operation)

	// OP02 fails to load and is skipped; playback continues at OP03
	b2, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP03", b2.Operation)
	assert.Equal(t, 2, b2.FileIndex)
	assert.Equal(t, int64(1), engine.LoadFailures())
}

func TestEngineHaltsWhenNothingLoads(t *testing.T) {
	d1 := descriptor("M01", "OP01", 0)
	d2 := descriptor("M01", "OP02", 0)
	loader := &fakeLoader{
		failPaths: map[string]bool{d1.RelativePath: true, d2.RelativePath: true},
	}
	manifest := corpus.NewManifest([]corpus.FileDescriptor{d1, d2})

	engine, err := NewEngine(manifest, "", loader, &captureSink{}, testConfig(), nil, nil)
	require.NoError(t, err)

	err = engine.Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoPlayableData)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int64(2), engine.LoadFailures())
}

func TestEngineEmptyFileCountsAsLoadFailure(t *testing.T) {
	d1 := descriptor("M01", "OP01", 0)
	d2 := descriptor("M01", "OP02", 0)
	loader := &fakeLoader{
		recordings: map[string]*Samples{
			d1.RelativePath: {},
			d2.RelativePath: {X: ramp(1, 5), Y: ramp(1, 5), Z: ramp(1, 5)},
		},
	}
	manifest := corpus.NewManifest([]corpus.FileDescriptor{d1, d2})

	engine, err := NewEngine(manifest, "", loader, &captureSink{}, testConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())

	batch, err := engine.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "OP02", batch.Operation)
	assert.Equal(t, int64(1), engine.LoadFailures())
}

func TestEngineRejectsEmptyManifest(t *testing.T) {
	_, err := NewEngine(corpus.NewManifest(nil), "", &fakeLoader{}, &captureSink{}, testConfig(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmptyManifest)
	assert.True(t, errors.IsFatal(err))

	_, err = NewEngine(nil, "", &fakeLoader{}, &captureSink{}, testConfig(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmptyManifest)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	manifest := corpus.NewManifest([]corpus.FileDescriptor{descriptor("M01", "OP01", 0)})

	_, err := NewEngine(manifest, "", &fakeLoader{}, &captureSink{},
		Config{BatchSize: 0, Period: time.Second}, nil, nil)
	require.Error(t, err)

	_, err = NewEngine(manifest, "", &fakeLoader{}, &captureSink{},
		Config{BatchSize: 10, Period: 0}, nil, nil)
	require.Error(t, err)
}

func TestEngineRejectsNilSink(t *testing.T) {
	manifest := corpus.NewManifest([]corpus.FileDescriptor{descriptor("M01", "OP01", 0)})
	_, err := NewEngine(manifest, "", &fakeLoader{}, nil, testConfig(), nil, nil)
	require.Error(t, err)
}

func TestEngineTimedEmission(t *testing.T) {
	d1 := descriptor("M01", "OP01", 0)
	loader := &fakeLoader{
		recordings: map[string]*Samples{
			d1.RelativePath: {X: ramp(100, 0), Y: ramp(100, 0), Z: ramp(100, 0)},
		},
	}
	manifest := corpus.NewManifest([]corpus.FileDescriptor{d1})
	sink := &captureSink{}

	engine, err := NewEngine(manifest, "", loader, sink,
		Config{BatchSize: 10, Period: 10 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sink.count() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Stop(time.Second))

	select {
	case <-engine.Done():
	default:
		t.Fatal("done channel not closed after Stop")
	}
	assert.NoError(t, engine.Err())
}

func TestEngineSinkFailureDoesNotStopLoop(t *testing.T) {
	d1 := descriptor("M01", "OP01", 0)
	loader := &fakeLoader{
		recordings: map[string]*Samples{
			d1.RelativePath: {X: ramp(100, 0), Y: ramp(100, 0), Z: ramp(100, 0)},
		},
	}
	manifest := corpus.NewManifest([]corpus.FileDescriptor{d1})
	sink := &captureSink{failAll: true}

	engine, err := NewEngine(manifest, "", loader, sink,
		Config{BatchSize: 10, Period: 10 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Start(context.Background()))

	require.Eventually(t, func() bool {
		return engine.SinkFailures() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Stop(time.Second))
	assert.NoError(t, engine.Err())
}

func TestEngineStartTwice(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Start(context.Background()))
	defer func() {
		_ = engine.Stop(time.Second)
	}()

	err := engine.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestEngineStopBeforeStart(t *testing.T) {
	engine, _ := newTestEngine(t)
	assert.NoError(t, engine.Stop(time.Second))
}

func TestEngineContextCancellation(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Initialize())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(ctx))
	cancel()

	select {
	case <-engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit on context cancellation")
	}
	assert.NoError(t, engine.Err())
}

func TestEngineDeterministicSequence(t *testing.T) {
	// Two engines over the same manifest must emit identical sequences
	first, _ := newTestEngine(t)
	second, _ := newTestEngine(t)
	require.NoError(t, first.Initialize())
	require.NoError(t, second.Initialize())

	for i := 0; i < 12; i++ {
		a, err := first.NextBatch()
		require.NoError(t, err)
		b, err := second.NextBatch()
		require.NoError(t, err)

		assert.Equal(t, a.FileIndex, b.FileIndex, "step %d", i)
		assert.Equal(t, a.SampleOffset, b.SampleOffset, "step %d", i)
		assert.Equal(t, a.X, b.X, "step %d", i)
	}
}
