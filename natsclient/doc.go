// Package natsclient wraps the NATS connection behind the publish target.
//
// Client handles connection lifecycle (dial with startup backoff, automatic
// reconnects, drain on close) and exposes JetStream for bucket management.
// KVStore layers slot-oriented Get/Exists/Put operations over a JetStream
// key-value bucket, with bounded retry on writes; it is the transport the
// sink/kv adapter publishes through.
package natsclient
