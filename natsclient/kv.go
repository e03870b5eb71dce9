package natsclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/vibestream/pkg/retry"
)

// KV error sentinels
var (
	// ErrKVKeyNotFound indicates the requested key does not exist
	ErrKVKeyNotFound = errors.New("kv key not found")
)

// KVOptions configures KV operations behavior
type KVOptions struct {
	MaxRetries int           // Maximum retry attempts for writes
	RetryDelay time.Duration // Initial delay between retries
	Timeout    time.Duration // Per-operation timeout
}

// DefaultKVOptions returns sensible defaults for slot writes
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

// KVStore provides slot-oriented operations over a JetStream key-value
// bucket: the publish target's named addressable value store
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore creates a new KV store over the given bucket
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
	}
}

// applyTimeout applies the configured timeout to the context if set
func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {} // no-op cancel
}

// Get retrieves a slot's current value
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Exists reports whether the slot currently holds a value
func (kv *KVStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if errors.Is(err, ErrKVKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put sets a slot's value (last writer wins), retrying transient failures
// with backoff
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) error {
	cfg := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	err := retry.Do(ctx, cfg, func() error {
		opCtx, cancel := kv.applyTimeout(ctx)
		defer cancel()

		_, err := kv.bucket.Put(opCtx, key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}
