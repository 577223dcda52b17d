package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"filmstrip/internal/logging"
)

const maxInboundBytes = 32 * 1024

// session is one connected browser. Outbound traffic flows through the send
// channel so only writePump touches the connection for writes.
type session struct {
	hub  *Hub
	conn *websocket.Conn

	send chan Message
	done chan struct{}

	closeOnce sync.Once

	mu     sync.RWMutex
	tokens map[string]struct{}
}

func newSession(hub *Hub, conn *websocket.Conn) *session {
	buffer := hub.cfg.WebSocket.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &session{
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, buffer),
		done:   make(chan struct{}),
		tokens: make(map[string]struct{}),
	}
}

// queue enqueues a message without blocking. It reports false when the
// session is gone or its buffer is full.
func (s *session) queue(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *session) subscribe(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
}

// wants reports whether the session should receive updates for token.
// Sessions that never subscribed receive everything.
func (s *session) wants(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.tokens) == 0 {
		return true
	}
	_, ok := s.tokens[token]
	return ok
}

func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *session) writeTimeout() time.Duration {
	d := time.Duration(s.hub.cfg.WebSocket.WriteTimeout) * time.Second
	if d <= 0 {
		d = 10 * time.Second
	}
	return d
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with protocol pings.
func (s *session) writePump() {
	pingInterval := time.Duration(s.hub.cfg.WebSocket.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			data, err := json.Marshal(msg)
			if err != nil {
				s.hub.logger.Warn("failed to marshal outbound message", logging.Error(err))
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound messages and routes them through the hub. It owns
// session teardown: when the read side ends, the session is unregistered and
// writePump is signaled to close the connection.
func (s *session) readPump() {
	defer func() {
		s.hub.remove(s)
		s.shutdown()
	}()

	pongTimeout := time.Duration(s.hub.cfg.WebSocket.PongTimeout) * time.Second
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}
	s.conn.SetReadLimit(maxInboundBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	ctx := context.Background()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived) {
				s.hub.logger.Debug("websocket read ended", logging.Error(err))
			}
			return
		}
		// Inbound application messages also prove liveness.
		_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.queue(Message{Type: TypeError, Error: "malformed message"})
			continue
		}
		s.hub.handleInbound(ctx, s, msg)
	}
}
