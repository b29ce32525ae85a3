// Package feed maintains the streaming telemetry subscription to the
// gateway. Rate frames arrive as msgpack over a websocket and land in
// the telemetry store through the sample sink, giving the allocator
// fresher rates than the polling cycle alone.
package feed

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/polkapulse/vault/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10

	// Frames are expected at least this often while connected.
	staleThreshold = 5 * time.Minute
)

// SampleSink receives decoded stream samples. The telemetry service
// satisfies this directly.
type SampleSink interface {
	Record(sample domain.RateSample, now int64) (bool, error)
}

// CredentialSource supplies the gateway API key at dial time, so
// reconnects pick up rotated credentials without a restart.
type CredentialSource interface {
	Get(key string) (interface{}, error)
}

// Stats summarizes stream activity for the status surface.
type Stats struct {
	Connected     bool      `json:"connected"`
	FramesHandled int64     `json:"frames_handled"`
	SamplesStored int64     `json:"samples_stored"`
	LastFrameAt   time.Time `json:"last_frame_at"`
}

// Client subscribes to the gateway's rates channel and records every
// decoded sample.
type Client struct {
	url         string
	apiKey      string
	credentials CredentialSource
	conn        *websocket.Conn
	connCtx     context.Context
	cancelFunc  context.CancelFunc
	mu          sync.RWMutex

	sink SampleSink
	log  zerolog.Logger

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	lastFrame     time.Time
	framesHandled int64
	samplesStored int64
	statsMu       sync.RWMutex
}

// NewClient creates a new stream client. The credential source may be
// nil, in which case the initial API key is used for every dial.
func NewClient(url, apiKey string, credentials CredentialSource, sink SampleSink, log zerolog.Logger) *Client {
	return &Client{
		url:         url,
		apiKey:      apiKey,
		credentials: credentials,
		sink:        sink,
		log:         log.With().Str("client", "feed").Logger(),
		stopChan:    make(chan struct{}),
	}
}

// Start initializes the stream connection and starts the read loop
func (c *Client) Start() error {
	c.log.Info().Msg("Starting telemetry stream client")

	if err := c.Connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial stream connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)

	c.log.Info().Msg("Telemetry stream client started")
	return nil
}

// Stop gracefully shuts down the stream connection
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info().Msg("Stopping telemetry stream client")

	close(c.stopChan)
	return c.Disconnect()
}

// currentKey prefers the credential store so reconnects use rotated keys
func (c *Client) currentKey() string {
	if c.credentials != nil {
		if value, err := c.credentials.Get("gateway_api_key"); err == nil {
			if key, ok := value.(string); ok && key != "" {
				return key
			}
		}
	}
	return c.apiKey
}

// Connect dials the stream and subscribes to the rates channel
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("Connecting to gateway stream")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.currentKey()}},
	})
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}

	// Long-lived context for the connection, cancelled on disconnect to
	// unblock pending reads.
	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	if err := c.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		c.conn = nil
		c.connCtx = nil
		c.cancelFunc = nil
		c.connected = false
		return fmt.Errorf("failed to subscribe to rates: %w", err)
	}

	c.log.Info().Msg("Connected to gateway stream")
	return nil
}

// Disconnect closes the stream connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.log.Info().Msg("Disconnecting from gateway stream")

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")

	c.conn = nil
	c.connCtx = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("error closing stream: %w", err)
	}
	return nil
}

// subscribe sends the rates channel subscription
func (c *Client) subscribe(ctx context.Context) error {
	data, err := encodeSubscribe(ratesChannel)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := c.conn.Write(writeCtx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	c.log.Info().Str("channel", ratesChannel).Msg("Subscribed to stream channel")
	return nil
}

// readMessages continuously reads frames from the stream
func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.log.Info().Msg("Stream read loop stopped")
		c.mu.RLock()
		stopped := c.stopped
		c.mu.RUnlock()
		if !stopped {
			go c.reconnectLoop()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			c.log.Debug().Msg("Read loop context cancelled")
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			c.log.Warn().Msg("Connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				c.log.Info().Int("status", int(closeStatus)).Msg("Stream closed normally")
			} else if ctx.Err() != nil {
				c.log.Debug().Msg("Read cancelled by context")
			} else {
				c.log.Error().Err(err).Msg("Unexpected stream read error")
			}
			return
		}

		// The stream is msgpack, so only binary frames carry data
		if msgType != websocket.MessageBinary {
			c.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-binary message")
			continue
		}

		if err := c.handleFrame(message); err != nil {
			c.log.Error().Err(err).Msg("Failed to handle stream frame")
			// Keep reading despite decode or sink errors
		}
	}
}

// handleFrame decodes one stream message and routes it by channel
func (c *Client) handleFrame(data []byte) error {
	frame, err := decodeFrame(data)
	if err != nil {
		return err
	}

	if frame.Channel != ratesChannel {
		c.log.Debug().Str("channel", frame.Channel).Msg("Ignoring frame for unsubscribed channel")
		return nil
	}

	return c.handleRates(frame)
}

// handleRates records every sample in the frame through the sink
func (c *Client) handleRates(frame *Frame) error {
	samples := frame.Samples()
	if len(samples) == 0 {
		c.log.Warn().Msg("Received empty rates frame")
		return nil
	}

	now := time.Now().Unix()
	stored := 0
	for _, sample := range samples {
		ok, err := c.sink.Record(sample, now)
		if err != nil {
			return fmt.Errorf("failed to record streamed sample: %w", err)
		}
		if ok {
			stored++
		}
	}

	c.statsMu.Lock()
	c.lastFrame = time.Now()
	c.framesHandled++
	c.samplesStored += int64(stored)
	c.statsMu.Unlock()

	c.log.Debug().
		Int("samples", len(samples)).
		Int("stored", stored).
		Msg("Rates frame processed")
	return nil
}

// reconnectLoop handles automatic reconnection with exponential backoff
func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-c.stopChan:
			c.log.Info().Msg("Reconnection loop stopped")
			return
		default:
		}

		c.mu.RLock()
		stopped := c.stopped
		c.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := c.calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			c.log.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Attempting stream reconnect")
		} else {
			c.log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Stream reconnect attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		if err := c.Connect(); err != nil {
			c.log.Error().Err(err).
				Int("attempt", attempt).
				Msg("Stream reconnect failed")
			continue
		}

		c.log.Info().Int("attempt", attempt).Msg("Stream reconnected")

		attempt = 0

		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}
}

// calculateBackoff calculates exponential backoff delay, capped
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsStale reports whether no frame has arrived within the staleness
// threshold. A stale feed means polling is the only live rate source.
func (c *Client) IsStale() bool {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	if c.lastFrame.IsZero() {
		return true
	}
	return time.Since(c.lastFrame) > staleThreshold
}

// Stats returns stream counters (thread-safe)
func (c *Client) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	return Stats{
		Connected:     c.IsConnected(),
		FramesHandled: c.framesHandled,
		SamplesStored: c.samplesStored,
		LastFrameAt:   c.lastFrame,
	}
}
