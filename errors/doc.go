// Package errors provides standardized error handling patterns for vibestream.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// The classification drives the propagation policy of the streaming core:
// indexing and handshake failures are Fatal and terminate the process, while
// playback-time failures (a file that will not load, a sink write that is
// rejected) are Transient and converted into skip/continue behavior.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Engine", "emitBatch", "sink write")
//	errors.WrapInvalid(err, "Config", "Validate", "batch size")
//	errors.WrapFatal(err, "Indexer", "Index", "read corpus root")
//
// # Standard Error Variables
//
// Pre-defined variables cover the failure taxonomy of the streaming core:
//
//   - Corpus: ErrCorpusUnavailable, ErrEmptyManifest, ErrManifestNotFound
//   - Handshake: ErrReadinessTimeout
//   - Playback: ErrFileLoadFailure, ErrNoPlayableData
//   - Sink: ErrSinkWrite, ErrSlotUnavailable
//
// Use these variables with errors.Is instead of matching message strings.
//
// # Retry Configuration
//
// RetryConfig integrates with the vibestream/pkg/retry framework via
// ToRetryConfig for backoff with jitter on transient failures.
package errors
