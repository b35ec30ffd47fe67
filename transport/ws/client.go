package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mealgrid/realtime/transport"
)

// Config configures the websocket transport.
type Config struct {
	URL              string        // Websocket URL (e.g. wss://realtime.mealgrid.io/v1)
	Header           http.Header   // Extra handshake headers (auth tokens etc.)
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	MaxMessageSize   int64         // Read limit per message
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxMessageSize:   512 * 1024,
	}
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 512 * 1024
	}
}

// Client implements transport.Transport over a gorilla websocket. It is
// reusable: Disconnect followed by Connect re-dials.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	dialing   bool
	done      chan struct{}

	// Write serialization
	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]*subscription

	onOpen  func()
	onClose func(error)
	onError func(error)
	onPong  func()
}

// New creates a websocket transport. The callbacks must be registered before
// the first Connect.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]*subscription),
	}
}

// OnOpen implements transport.Transport.
func (c *Client) OnOpen(fn func()) { c.onOpen = fn }

// OnClose implements transport.Transport.
func (c *Client) OnClose(fn func(error)) { c.onClose = fn }

// OnError implements transport.Transport.
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// OnPong implements transport.Transport.
func (c *Client) OnPong(fn func()) { c.onPong = fn }

// Connect requests a session open. The dial happens asynchronously; success
// is signaled via OnOpen, failure via OnError.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.mu.Unlock()

	go c.dial()
	return nil
}

// Disconnect closes the current session. Idempotent, and the client may be
// reconnected afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.done = nil
	c.connected = false
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// Send publishes one message on a channel.
func (c *Client) Send(channel, event string, payload []byte) error {
	return c.writeFrame(frame{
		Type:    framePublish,
		Channel: channel,
		Event:   event,
		Payload: json.RawMessage(payload),
	})
}

// Subscribe joins a channel. Re-subscribing an already known name re-issues
// the join frame and reuses the existing handle, so handlers survive
// reconnects.
func (c *Client) Subscribe(channel string) (transport.Subscription, error) {
	c.subMu.Lock()
	sub, ok := c.subs[channel]
	if !ok {
		sub = &subscription{client: c, channel: channel}
		c.subs[channel] = sub
	}
	c.subMu.Unlock()

	if err := c.writeFrame(frame{Type: frameSubscribe, Channel: channel}); err != nil {
		return nil, err
	}
	return sub, nil
}

// Ping sends a websocket control ping. The answering pong reaches OnPong.
func (c *Client) Ping() error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return transport.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(c.cfg.WriteTimeout))
}

// dial performs the asynchronous connection attempt.
func (c *Client) dial() {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.cfg.URL, c.cfg.Header)
	if err != nil {
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()

		c.logger.Debug("websocket dial failed", "url", c.cfg.URL, "error", err)
		c.emitError(err)
		return
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		c.emitPong()
		return nil
	})

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.connected = true
	c.dialing = false
	c.mu.Unlock()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	c.emitOpen()

	go c.readLoop(conn, done)
}

// readLoop reads frames until the connection dies or is closed deliberately.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.conn != conn // swapped or cleared by Disconnect
			if !deliberate {
				c.conn = nil
				c.connected = false
				c.done = nil
			}
			c.mu.Unlock()

			select {
			case <-done:
				deliberate = true
			default:
			}

			if deliberate {
				c.emitClose(nil)
			} else {
				conn.Close()
				c.emitClose(err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch f.Type {
		case frameEvent:
			c.deliver(f.Channel, f.Event, f.Payload)
		default:
			c.logger.Debug("ignoring frame", "type", f.Type)
		}
	}
}

// deliver routes one event frame to its channel's handler.
func (c *Client) deliver(channel, event string, payload []byte) {
	c.subMu.Lock()
	sub := c.subs[channel]
	c.subMu.Unlock()

	if sub == nil {
		c.logger.Debug("event for unknown channel", "channel", channel, "event", event)
		return
	}
	sub.handle(event, payload)
}

// writeFrame marshals and writes one frame under the write lock.
func (c *Client) writeFrame(f frame) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return transport.ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) emitOpen() {
	if c.onOpen != nil {
		c.onOpen()
	}
}

func (c *Client) emitClose(err error) {
	if c.onClose != nil {
		c.onClose(err)
	}
}

func (c *Client) emitError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Client) emitPong() {
	if c.onPong != nil {
		c.onPong()
	}
}

// subscription is the live handle for one channel.
type subscription struct {
	client  *Client
	channel string

	mu      sync.RWMutex
	handler transport.EventHandler
}

// Channel implements transport.Subscription.
func (s *subscription) Channel() string {
	return s.channel
}

// OnEvent implements transport.Subscription.
func (s *subscription) OnEvent(h transport.EventHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Unsubscribe implements transport.Subscription.
func (s *subscription) Unsubscribe() error {
	s.client.subMu.Lock()
	delete(s.client.subs, s.channel)
	s.client.subMu.Unlock()

	err := s.client.writeFrame(frame{Type: frameUnsubscribe, Channel: s.channel})
	if err == transport.ErrNotConnected {
		// Forgetting the registration while offline is enough.
		return nil
	}
	return err
}

func (s *subscription) handle(event string, payload []byte) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()

	if h != nil {
		h(event, payload)
	}
}
