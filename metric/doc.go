// Package metric provides Prometheus metrics for the vibestream platform.
//
// MetricsRegistry wraps a dedicated prometheus.Registry preloaded with the
// core streaming metrics (batches emitted, samples published, file rotations,
// load and sink-write failure counters, NATS connection state) plus the Go
// runtime collectors. Components with their own metrics register them through
// the RegisterCounter/RegisterGauge/RegisterCounterVec helpers, namespaced by
// component name so duplicate registrations fail loudly.
//
// Server exposes the registry over HTTP at /metrics alongside a /health
// endpoint.
package metric
