package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"token-radar/internal/domain"
)

// WSConfig configures the WebSocket trade source.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds each read so a dead connection is detected.
	ReadTimeout time.Duration
	// WriteTimeout bounds writes.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns the default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSTradeSource streams raw trade records over the upstream WebSocket feed.
// It is an alternative ingestion path feeding the same
// extract → dedup → filter → store pipeline as REST polling.
type WSTradeSource struct {
	endpoint string
	apiKey   string
	config   WSConfig
	logger   *log.Logger
}

// NewWSTradeSource creates a WebSocket trade source. Connection happens in
// Subscribe so a down feed at startup does not prevent the REST path from
// serving.
func NewWSTradeSource(endpoint, apiKey string, config *WSConfig, logger *log.Logger) *WSTradeSource {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WSTradeSource{
		endpoint: endpoint,
		apiKey:   apiKey,
		config:   cfg,
		logger:   logger,
	}
}

// Subscribe starts the connect/read loop and returns the record channel.
// The channel closes when ctx is cancelled. Connection failures reconnect
// with capped exponential backoff; they never propagate out.
func (s *WSTradeSource) Subscribe(ctx context.Context) <-chan domain.RawRecord {
	out := make(chan domain.RawRecord, 64)
	go s.run(ctx, out)
	return out
}

func (s *WSTradeSource) run(ctx context.Context, out chan<- domain.RawRecord) {
	defer close(out)

	delay := s.config.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		subscribed, err := s.connectAndRead(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			// The session was healthy before it dropped; backoff accumulated
			// by earlier flaps no longer applies.
			delay = s.config.ReconnectDelay
		}
		s.logger.Printf("websocket session ended: %v, reconnecting in %v", err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if !subscribed {
			delay *= 2
			if delay > s.config.MaxReconnectDelay {
				delay = s.config.MaxReconnectDelay
			}
		}
	}
}

// subscribeRequest is the upstream subscription frame for large trades.
type subscribeRequest struct {
	Type string `json:"type"`
	Data struct {
		QueryType string `json:"queryType"`
		ChartType string `json:"chartType,omitempty"`
	} `json:"data"`
}

// connectAndRead runs one WebSocket session. subscribed reports whether the
// session got past the subscribe handshake before ending.
func (s *WSTradeSource) connectAndRead(ctx context.Context, out chan<- domain.RawRecord) (subscribed bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	url := s.endpoint
	if s.apiKey != "" {
		url = fmt.Sprintf("%s?x-api-key=%s", s.endpoint, s.apiKey)
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()
	s.logger.Printf("websocket connected to %s", s.endpoint)

	sub := subscribeRequest{Type: "SUBSCRIBE_TXS"}
	sub.Data.QueryType = "simple"
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("send subscribe: %w", err)
	}

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go s.pingLoop(conn, done)

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("websocket read: %w", err)
		}

		rec, ok := decodeWSFrame(msg)
		if !ok {
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func (s *WSTradeSource) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decodeWSFrame unwraps one feed message into a raw trade record. Frames that
// are not trade payloads (welcome banners, pongs, errors) are skipped.
func decodeWSFrame(msg []byte) (domain.RawRecord, bool) {
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, false
	}
	if frame.Type != "" && frame.Type != "TXS_DATA" {
		return nil, false
	}

	payload := frame.Data
	if payload == nil {
		payload = msg
	}
	var rec map[string]any
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, false
	}
	if len(rec) == 0 {
		return nil, false
	}
	return domain.RawRecord(rec), true
}
