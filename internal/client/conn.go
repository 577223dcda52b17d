package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"filmstrip/internal/logging"
	"filmstrip/internal/ws"
)

var (
	// ErrMaxAttempts is reported when consecutive reconnect attempts hit
	// the configured limit without a confirmed connection.
	ErrMaxAttempts = errors.New("reconnect attempts exhausted")
	// ErrClosed is returned by Send after an explicit Close.
	ErrClosed = errors.New("connection closed")
)

// Options controls the reconnect behavior of a Conn.
type Options struct {
	// URL is the ws:// endpoint of the daemon's progress socket.
	URL string
	// HandshakeTimeout bounds both the upgrade and the wait for the
	// connection confirmation message.
	HandshakeTimeout time.Duration
	// PingInterval spaces the liveness pings sent while connected.
	PingInterval time.Duration
	// PongTimeout is how long the reader waits for any traffic before
	// declaring the connection dead.
	PongTimeout time.Duration
	// ReconnectDelay seeds the backoff; each failed attempt doubles it.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff growth.
	MaxReconnectDelay time.Duration
	// MaxAttempts bounds consecutive failed connects. Zero means the
	// default; a confirmed connection resets the counter.
	MaxAttempts int
	// OnConnect runs after every confirmed connection, including
	// reconnects. Use it to replay subscriptions and process requests.
	OnConnect func(c *Conn)
}

func (o *Options) normalize() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
}

// Conn is a persistent connection to the daemon's progress socket. It
// redials with capped exponential backoff when the link drops, resets the
// attempt counter only after the server confirms the handshake, and stops
// for good on Close or once the attempt limit is hit.
type Conn struct {
	opts   Options
	logger *slog.Logger

	events   chan ws.Message
	outbound chan ws.Message
	done     chan struct{}

	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

// Dial starts the connection manager and returns immediately; the first
// connect happens in the background. Consume Events until it closes, then
// check Err.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) *Conn {
	opts.normalize()
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Conn{
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "ws-client"),
		events:   make(chan ws.Message, 64),
		outbound: make(chan ws.Message, 64),
		done:     make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

// Events delivers every server message except pong replies, which the
// connection consumes as liveness signals. The channel closes when the
// connection stops for good.
func (c *Conn) Events() <-chan ws.Message {
	return c.events
}

// Send queues a message for the active session. Messages queued while
// disconnected are written once the next session is confirmed.
func (c *Conn) Send(msg ws.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Process asks the daemon to release an uploaded item into the pipeline.
func (c *Conn) Process(token string) error {
	return c.Send(ws.Message{Type: "process", Token: token})
}

// Subscribe registers interest in a token's progress updates.
func (c *Conn) Subscribe(token string) error {
	return c.Send(ws.Message{Type: "subscribe", Token: token})
}

// Close disconnects explicitly. No reconnect is attempted afterwards.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

// Err reports why the connection stopped. It is nil after an explicit
// Close and ErrMaxAttempts when the retry budget ran out.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.events)

	attempts := 0
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		conn, confirm, err := c.dial(ctx)
		if err != nil {
			if c.isClosed() || ctx.Err() != nil {
				return
			}
			attempts++
			if attempts >= c.opts.MaxAttempts {
				c.logger.Error("giving up after repeated connect failures",
					logging.Int("attempts", attempts),
					logging.Error(err),
				)
				c.fail(fmt.Errorf("%w after %d attempts: %w", ErrMaxAttempts, attempts, err))
				return
			}
			delay := c.backoffDelay(attempts)
			c.logger.Warn("connect failed, retrying",
				logging.Int("attempt", attempts),
				logging.Duration("retry_in", delay),
				logging.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(delay):
			}
			continue
		}

		// Only a confirmed handshake resets the budget; a server that
		// accepts the upgrade but never confirms still burns attempts.
		attempts = 0
		c.logger.Info("connected", logging.String("url", c.opts.URL))
		c.deliver(confirm)

		if c.opts.OnConnect != nil {
			c.opts.OnConnect(c)
		}

		err = c.runSession(ctx, conn)
		if c.isClosed() || ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost, reconnecting", logging.Error(err))
	}
}

// dial connects and waits for the server's connection confirmation.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, ws.Message, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, ws.Message{}, fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, ws.Message{}, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.opts.HandshakeTimeout)); err != nil {
		_ = conn.Close()
		return nil, ws.Message{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, ws.Message{}, fmt.Errorf("await handshake confirmation: %w", err)
	}
	var confirm ws.Message
	if err := json.Unmarshal(data, &confirm); err != nil {
		_ = conn.Close()
		return nil, ws.Message{}, fmt.Errorf("decode handshake confirmation: %w", err)
	}
	if confirm.Type != ws.TypeConnection || confirm.Status != "connected" {
		_ = conn.Close()
		return nil, ws.Message{}, fmt.Errorf("unexpected handshake message type %q status %q", confirm.Type, confirm.Status)
	}
	return conn, confirm, nil
}

// runSession pumps one live connection until it drops or the Conn closes.
func (c *Conn) runSession(ctx context.Context, conn *websocket.Conn) error {
	sessionDone := make(chan struct{})
	writeErr := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessionDone:
				return
			case <-c.done:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			case msg := <-c.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					writeErr <- err
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(ws.Message{Type: "ping"}); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	defer func() {
		close(sessionDone)
		_ = conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case werr := <-writeErr:
				return werr
			default:
			}
			return err
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("discarding malformed server message", logging.Error(err))
			continue
		}
		if msg.Type == ws.TypePong {
			continue
		}
		if !c.deliver(msg) {
			return nil
		}
	}
}

func (c *Conn) deliver(msg ws.Message) bool {
	select {
	case c.events <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) backoffDelay(attempt int) time.Duration {
	delay := c.opts.ReconnectDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.MaxReconnectDelay {
			return c.opts.MaxReconnectDelay
		}
	}
	if delay > c.opts.MaxReconnectDelay {
		delay = c.opts.MaxReconnectDelay
	}
	return delay
}
