package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/lumetube/lume/internal/events"
)

// ProgressFrame is the wire shape of one upload-progress push event.
type ProgressFrame struct {
	JobID    string  `json:"jobId"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Details  string  `json:"details"`
	Error    bool    `json:"error"`
	MediaID  string  `json:"mediaId,omitempty"`
}

// envelope is the framing used on the push socket: a named event plus its
// payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Config controls dialing and keepalive behavior for a push channel.
type Config struct {
	URL              string
	UserID           string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// Channel maintains a websocket connection to the backend push service,
// joining the user's room and republishing upload-progress frames on the
// event bus. The connection self-heals: on any read or dial failure it
// backs off, redials, and rejoins the room.
type Channel struct {
	config   Config
	eventBus events.EventBus
	logger   hclog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewChannel creates a push channel. Start must be called before events
// flow.
func NewChannel(config Config, eventBus events.EventBus, logger hclog.Logger) *Channel {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 25 * time.Second
	}
	if config.ReconnectMin <= 0 {
		config.ReconnectMin = time.Second
	}
	if config.ReconnectMax <= 0 {
		config.ReconnectMax = 30 * time.Second
	}
	return &Channel{
		config:   config,
		eventBus: eventBus,
		logger:   logger.Named("push"),
	}
}

// Start launches the connection loop. It returns immediately; the first
// dial happens in the background so a backend outage does not block
// startup.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("push channel already closed")
	}
	if c.done != nil {
		return fmt.Errorf("push channel already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)
	return nil
}

// Close stops the channel. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	backoff := c.config.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("push connection failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.config.ReconnectMax {
				backoff = c.config.ReconnectMax
			}
			continue
		}

		backoff = c.config.ReconnectMin
		c.setConn(conn)
		c.publishLifecycle(events.EventPushConnected)

		readErr := c.readLoop(ctx, conn)
		c.setConn(nil)
		conn.Close()
		c.publishLifecycle(events.EventPushDisconnected)

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push connection lost", "error", readErr)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.config.URL, err)
	}

	// Join the user's room so the backend scopes progress events to us.
	join := map[string]string{"event": "join", "room": c.config.UserID}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	c.logger.Info("push channel connected", "url", c.config.URL, "room", c.config.UserID)
	return conn, nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	pingTicker := time.NewTicker(c.config.PingInterval)
	defer pingTicker.Stop()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(c.config.HandshakeTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("ignoring malformed push frame", "error", err)
		return
	}
	if env.Event != "upload-progress" {
		return
	}

	var frame ProgressFrame
	if err := json.Unmarshal(env.Data, &frame); err != nil {
		c.logger.Warn("failed to decode upload-progress frame", "error", err)
		return
	}
	if frame.JobID == "" {
		c.logger.Debug("ignoring upload-progress frame without job id")
		return
	}

	event := events.Event{
		Type:    events.EventUploadProgress,
		Source:  "push",
		JobID:   frame.JobID,
		Message: frame.Message,
		Data: map[string]interface{}{
			"stage":    frame.Stage,
			"progress": frame.Progress,
			"details":  frame.Details,
			"error":    frame.Error,
		},
		Timestamp: time.Now(),
	}
	if frame.MediaID != "" {
		event.Data["mediaId"] = frame.MediaID
	}

	if err := c.eventBus.PublishAsync(event); err != nil {
		c.logger.Warn("failed to publish push event", "job_id", frame.JobID, "error", err)
	}
}

func (c *Channel) publishLifecycle(eventType events.EventType) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.PublishAsync(events.Event{
		Type:      eventType,
		Source:    "push",
		Timestamp: time.Now(),
	})
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Connected reports whether a live socket is currently held.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
