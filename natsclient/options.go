package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/vibestream/metric"
)

// ClientOption configures a Client at construction time
type ClientOption func(*Client) error

// WithClientName sets the connection name visible to the NATS server
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("client name cannot be empty")
		}
		c.clientName = name
		return nil
	}
}

// WithLogger sets the structured logger used for connection events
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics attaches a metrics instance for connection-state gauges
func WithMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithMaxReconnects sets the reconnection attempt limit (-1 for infinite)
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return fmt.Errorf("max reconnects must be >= -1, got %d", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the delay between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithTimeout sets the connection dial timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("drain timeout must be positive, got %v", d)
		}
		c.drainTimeout = d
		return nil
	}
}
