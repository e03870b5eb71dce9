// Package natsclient provides a client for managing the NATS connection that
// backs the publish target.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/vibestream/errors"
	"github.com/c360/vibestream/metric"
	"github.com/c360/vibestream/pkg/retry"
)

// Client manages a NATS connection with JetStream access. It reconnects
// automatically and reports connection state transitions to the metrics
// registry when one is attached.
type Client struct {
	url    string
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	// Connection options
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Metrics (nil disables instrumentation)
	metrics *metric.Metrics

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		logger: slog.Default(),
		// Sensible defaults
		clientName:    "vibestream",
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Connect establishes the NATS connection, retrying with backoff so a
// streamer starting alongside its NATS server does not race it
func (c *Client) Connect(ctx context.Context) error {
	connect := func() error {
		conn, err := nats.Connect(c.url,
			nats.Name(c.clientName),
			nats.MaxReconnects(c.maxReconnects),
			nats.ReconnectWait(c.reconnectWait),
			nats.Timeout(c.timeout),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if c.metrics != nil {
					c.metrics.RecordNATSStatus(false)
				}
				c.logger.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				if c.metrics != nil {
					c.metrics.RecordNATSStatus(true)
					c.metrics.RecordNATSReconnect()
				}
				c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				if c.metrics != nil {
					c.metrics.RecordNATSStatus(false)
				}
				c.logger.Info("NATS connection closed")
			}),
		)
		if err != nil {
			return err
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return retry.NonRetryable(err)
		}

		c.mu.Lock()
		c.conn = conn
		c.js = js
		c.mu.Unlock()
		return nil
	}

	if err := retry.Do(ctx, retry.Quick(), connect); err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "dial "+c.url)
	}

	if c.metrics != nil {
		c.metrics.RecordNATSStatus(true)
	}
	c.logger.Info("NATS connected", "url", c.url, "client_name", c.clientName)
	return nil
}

// Connected reports whether the underlying connection is currently up
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// JetStream returns the JetStream context, or nil before Connect
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// EnsureKeyValue creates the named key-value bucket if it does not exist and
// returns a handle to it
func (c *Client) EnsureKeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "EnsureKeyValue", "get JetStream context")
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "vibestream publish target slots",
		History:     1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureKeyValue", "create bucket "+bucket)
	}
	return kv, nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	drained := make(chan error, 1)
	go func() {
		drained <- conn.Drain()
	}()

	select {
	case err := <-drained:
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "Client", "Close", "drain connection")
		}
	case <-time.After(c.drainTimeout):
		conn.Close()
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Close", "drain connection")
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "drain connection")
	}

	if c.metrics != nil {
		c.metrics.RecordNATSStatus(false)
	}
	return nil
}
