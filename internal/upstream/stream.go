package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Graduation stream: real-time migration events over WebSocket, used to
// trigger an immediate scan between poll ticks. Optional: the fixed-interval
// poll remains the source of truth, the stream only shortens latency.
// ---------------------------------------------------------------------------

// StreamConfig configures the graduation stream.
type StreamConfig struct {
	WSEndpoint       string `yaml:"ws_endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
}

// DefaultStreamConfig returns defaults for the public migration feed.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WSEndpoint:       "wss://pumpportal.fun/api/data",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
	}
}

// TokenEvent is emitted when a token migration (graduation) is observed.
type TokenEvent struct {
	Mint       string    `json:"mint"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	DetectedAt time.Time `json:"detected_at"`
}

// GradStream subscribes to the migration feed and emits TokenEvents.
type GradStream struct {
	config StreamConfig

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed atomic.Bool

	eventChan chan TokenEvent

	messagesRecv   atomic.Int64
	tokensDetected atomic.Int64
	reconnects     atomic.Int64
	connected      atomic.Bool
}

// NewGradStream creates a graduation stream client.
func NewGradStream(config StreamConfig) *GradStream {
	return &GradStream{
		config:    config,
		eventChan: make(chan TokenEvent, 256),
	}
}

// Start connects and starts reading. Returns the event channel immediately;
// the read loop runs until ctx is cancelled.
func (s *GradStream) Start(ctx context.Context) <-chan TokenEvent {
	go s.runLoop(ctx)
	return s.eventChan
}

func (s *GradStream) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("stream: runLoop panic recovered")
		}
		s.mu.Lock()
		if s.closed.CompareAndSwap(false, true) {
			close(s.eventChan)
		}
		s.mu.Unlock()
	}()

	reconnectDelay := time.Duration(s.config.ReconnectDelayMs) * time.Millisecond
	const maxDelay = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			log.Warn().Err(err).Msg("stream: connection failed")
			s.reconnects.Add(1)
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay *= 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				s.disconnect()
				return
			}
			continue
		}

		reconnectDelay = time.Duration(s.config.ReconnectDelayMs) * time.Millisecond

		if err := s.subscribe(); err != nil {
			log.Warn().Err(err).Msg("stream: subscribe failed")
		}

		s.readLoop(ctx)
	}
}

func (s *GradStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("stream: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	log.Info().Str("endpoint", s.config.WSEndpoint).Msg("stream: connected")
	return nil
}

func (s *GradStream) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected.Store(false)
}

func (s *GradStream) subscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("stream: not connected")
	}
	return s.conn.WriteJSON(map[string]any{"method": "subscribeMigration"})
}

func (s *GradStream) readLoop(ctx context.Context) {
	pingInterval := time.Duration(s.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("stream: ping failed")
					return
				}
			}
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("stream: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("stream: read error, reconnecting")
			}
			s.connected.Store(false)
			return
		}

		s.messagesRecv.Add(1)
		s.handleMessage(message)
	}
}

func (s *GradStream) handleMessage(data []byte) {
	var msg struct {
		Mint   string `json:"mint"`
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
		TxType string `json:"txType"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Mint == "" {
		// Subscription acks and keepalives carry no mint.
		return
	}

	event := TokenEvent{
		Mint:       msg.Mint,
		Name:       msg.Name,
		Symbol:     msg.Symbol,
		DetectedAt: time.Now(),
	}

	s.tokensDetected.Add(1)

	mintPrefix := msg.Mint
	if len(mintPrefix) > 12 {
		mintPrefix = mintPrefix[:12]
	}

	// Synchronize channel send with close to avoid send-on-closed panic.
	s.mu.RLock()
	if !s.closed.Load() {
		select {
		case s.eventChan <- event:
			log.Info().
				Str("mint", mintPrefix).
				Str("symbol", msg.Symbol).
				Msg("stream: graduation detected")
		default:
			log.Warn().Msg("stream: event channel full, dropping event")
		}
	}
	s.mu.RUnlock()
}

// StreamStats returns stream counters.
type StreamStats struct {
	Connected      bool  `json:"connected"`
	MessagesRecv   int64 `json:"messages_recv"`
	TokensDetected int64 `json:"tokens_detected"`
	Reconnects     int64 `json:"reconnects"`
}

func (s *GradStream) Stats() StreamStats {
	return StreamStats{
		Connected:      s.connected.Load(),
		MessagesRecv:   s.messagesRecv.Load(),
		TokensDetected: s.tokensDetected.Load(),
		Reconnects:     s.reconnects.Load(),
	}
}
