package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.False(t, c.Connected())
	assert.Nil(t, c.JetStream())
}

func TestNewClientOptions(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithClientName("streamer-1"),
		WithMaxReconnects(5),
		WithReconnectWait(time.Second),
		WithTimeout(3*time.Second),
		WithDrainTimeout(10*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, "streamer-1", c.clientName)
	assert.Equal(t, 5, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
}

func TestNewClientRejectsBadOptions(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithClientName(""))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithLogger(nil))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithMaxReconnects(-2))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithReconnectWait(0))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithTimeout(-time.Second))
	assert.Error(t, err)
}

func TestCloseWithoutConnect(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, c.Close(context.Background()))
	// Idempotent
	assert.NoError(t, c.Close(context.Background()))
}

func TestEnsureKeyValueRequiresConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = c.EnsureKeyValue(context.Background(), "vibestream")
	assert.Error(t, err)
}
