// Package websocket provides a WebSocket sink that broadcasts emitted
// batches to connected observers for real-time visualization.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vibestream/errors"
	"github.com/c360/vibestream/metric"
	"github.com/c360/vibestream/playback"
)

// Config holds configuration for the WebSocket sink
type Config struct {
	Port int    // Listen port
	Path string // Endpoint path, default /ws
}

// DefaultConfig returns sensible defaults for the WebSocket sink
func DefaultConfig() Config {
	return Config{
		Port: 8081,
		Path: "/ws",
	}
}

// MessageEnvelope wraps every broadcast frame with type discrimination so
// observers can distinguish batch data from future control messages
type MessageEnvelope struct {
	Type      string          `json:"type"`      // Always "batch"
	ID        uint64          `json:"id"`        // Monotonic per-process frame ID
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload"`
}

// clientInfo holds information about a connected observer
type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	writeMu     sync.Mutex // protects concurrent writes to the same connection
	closed      atomic.Bool
	closeOnce   sync.Once
}

// Sink broadcasts each published batch as JSON to all connected clients.
// Delivery is at-most-once: a slow or failed client is dropped rather than
// allowed to stall the emission cadence.
type Sink struct {
	port   int
	path   string
	logger *slog.Logger

	server    *http.Server
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]*clientInfo
	clientsMu sync.RWMutex

	// Lifecycle management
	shutdown    chan struct{}
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	frameID atomic.Uint64

	metrics *sinkMetrics
}

// sinkMetrics holds Prometheus metrics for the WebSocket sink
type sinkMetrics struct {
	messagesSent     *prometheus.CounterVec
	bytesSent        prometheus.Counter
	clientsConnected prometheus.Gauge
}

// newSinkMetrics creates and registers sink metrics. Returns nil when no
// registry is provided (nil input = nil feature pattern).
func newSinkMetrics(registry *metric.MetricsRegistry) (*sinkMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &sinkMetrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibestream",
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total batch frames sent to WebSocket observers",
		}, []string{"machine"}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibestream",
			Subsystem: "websocket",
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent to WebSocket observers",
		}),

		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibestream",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Number of currently connected observers",
		}),
	}

	if err := registry.RegisterCounterVec("websocket-sink", "messages_sent_total", m.messagesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("websocket-sink", "bytes_sent_total", m.bytesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("websocket-sink", "clients_connected", m.clientsConnected); err != nil {
		return nil, err
	}
	return m, nil
}

// NewSink creates a WebSocket sink from configuration
func NewSink(cfg Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*Sink, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "NewSink",
			fmt.Sprintf("invalid port %d", cfg.Port))
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newSinkMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Sink{
		port:   cfg.Port,
		path:   cfg.Path,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*clientInfo),
		shutdown: make(chan struct{}),
		metrics:  metrics,
	}, nil
}

// Name implements playback.Sink
func (s *Sink) Name() string {
	return "websocket"
}

// Start launches the observer endpoint
func (s *Sink) Start(_ context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Sink", "Start", "check running state")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleConnection)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server failed", "port", s.port, "error", err)
		}
	}()

	s.logger.Info("websocket sink started", "port", s.port, "path", s.path)
	return nil
}

// Stop closes the server and disconnects all observers
func (s *Sink) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
	}

	s.clientsMu.Lock()
	for conn, client := range s.clients {
		s.closeClient(client)
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShuttingDown, "Sink", "Stop", "wait for server")
	}
	return nil
}

// Publish implements playback.Sink: the batch is broadcast to every
// connected observer. No observers connected is not a failure.
func (s *Sink) Publish(_ context.Context, batch *playback.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return errors.WrapInvalid(err, "Sink", "Publish", "marshal batch")
	}

	envelope := MessageEnvelope{
		Type:      "batch",
		ID:        s.frameID.Add(1),
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	frame, err := json.Marshal(envelope)
	if err != nil {
		return errors.WrapInvalid(err, "Sink", "Publish", "marshal envelope")
	}

	s.broadcast(frame, batch.Machine)
	return nil
}

// broadcast sends one frame to all clients, dropping any that fail
func (s *Sink) broadcast(frame []byte, machine string) {
	s.clientsMu.RLock()
	clients := make([]*clientInfo, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.clientsMu.RUnlock()

	for _, client := range clients {
		if client.closed.Load() {
			continue
		}

		client.writeMu.Lock()
		_ = client.conn.SetWriteDeadline(time.Now().Add(time.Second))
		err := client.conn.WriteMessage(websocket.TextMessage, frame)
		client.writeMu.Unlock()

		if err != nil {
			s.logger.Debug("dropping slow observer", "remote", client.conn.RemoteAddr(), "error", err)
			s.removeClient(client)
			continue
		}

		if s.metrics != nil {
			s.metrics.messagesSent.WithLabelValues(machine).Inc()
			s.metrics.bytesSent.Add(float64(len(frame)))
		}
	}
}

// handleConnection upgrades an observer and keeps it registered until it
// disconnects
func (s *Sink) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &clientInfo{
		conn:        conn,
		connectedAt: time.Now(),
	}

	s.clientsMu.Lock()
	s.clients[conn] = client
	count := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.clientsConnected.Set(float64(count))
	}
	s.logger.Info("observer connected", "remote", r.RemoteAddr, "clients", count)

	// Reader goroutine: observers send nothing meaningful, but reading is
	// required to process control frames and notice disconnects.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.removeClient(client)
				return
			}
		}
	}()
}

// removeClient closes and unregisters an observer
func (s *Sink) removeClient(client *clientInfo) {
	s.closeClient(client)

	s.clientsMu.Lock()
	delete(s.clients, client.conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.clientsConnected.Set(float64(count))
	}
}

func (s *Sink) closeClient(client *clientInfo) {
	client.closeOnce.Do(func() {
		client.closed.Store(true)
		_ = client.conn.Close()
	})
}
