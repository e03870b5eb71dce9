package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core streaming metrics published by the engine and
// its collaborators
type Metrics struct {
	// Playback metrics
	BatchesEmitted   *prometheus.CounterVec
	SamplesPublished prometheus.Counter
	FileRotations    prometheus.Counter
	FileLoadFailures prometheus.Counter
	CurrentFileIndex prometheus.Gauge
	ManifestFiles    prometheus.Gauge

	// Sink metrics
	SinkWriteFailures *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BatchesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "playback",
				Name:      "batches_emitted_total",
				Help:      "Total number of batches emitted by the playback engine",
			},
			[]string{"machine", "operation", "quality"},
		),

		SamplesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "playback",
				Name:      "samples_published_total",
				Help:      "Total number of samples published across all batches",
			},
		),

		FileRotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "playback",
				Name:      "file_rotations_total",
				Help:      "Total number of rotations to the next manifest file",
			},
		),

		FileLoadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "playback",
				Name:      "file_load_failures_total",
				Help:      "Total number of recording files skipped because they failed to load",
			},
		),

		CurrentFileIndex: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vibestream",
				Subsystem: "playback",
				Name:      "current_file_index",
				Help:      "Manifest index of the file currently being streamed",
			},
		),

		ManifestFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vibestream",
				Subsystem: "playback",
				Name:      "manifest_files",
				Help:      "Number of files in the active manifest",
			},
		),

		SinkWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "sink",
				Name:      "write_failures_total",
				Help:      "Total number of best-effort sink writes that failed",
			},
			[]string{"sink"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vibestream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordBatch increments batch and sample counters for one emission
func (m *Metrics) RecordBatch(machine, operation, quality string, samples int) {
	m.BatchesEmitted.WithLabelValues(machine, operation, quality).Inc()
	m.SamplesPublished.Add(float64(samples))
}

// RecordRotation records a rotation to the given manifest index
func (m *Metrics) RecordRotation(fileIndex int) {
	m.FileRotations.Inc()
	m.CurrentFileIndex.Set(float64(fileIndex))
}

// RecordFileLoadFailure increments the skipped-file counter
func (m *Metrics) RecordFileLoadFailure() {
	m.FileLoadFailures.Inc()
}

// RecordSinkWriteFailure increments the write failure counter for a sink
func (m *Metrics) RecordSinkWriteFailure(sink string) {
	m.SinkWriteFailures.WithLabelValues(sink).Inc()
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}
