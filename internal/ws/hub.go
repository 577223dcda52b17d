package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/queue"
)

// Hub owns all live browser sessions and fans item updates out to them.
// It satisfies the workflow and render progress sink interfaces.
type Hub struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*session]struct{}
	closed   bool
}

// NewHub constructs a hub bound to the queue store for subscribe snapshots
// and process releases.
func NewHub(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "ws-hub"),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(cfg.WebSocket.HandshakeTimeout) * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// The daemon binds to loopback; same-host pages are the audience.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the session until disconnect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	sess := newSession(h, conn)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.sessions[sess] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("browser connected", logging.Int("sessions", count))

	// The handshake confirmation must be queued before the pumps start so
	// it is the first frame the browser sees.
	sess.queue(ConnectionMessage("connected"))

	go sess.writePump()
	go sess.readPump()
}

// ItemProgress broadcasts an item snapshot to every interested session.
func (h *Hub) ItemProgress(item *queue.Item) {
	if item == nil {
		return
	}
	msg := ItemMessage(item)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sess := range h.sessions {
		if !sess.wants(item.Token) {
			continue
		}
		if !sess.queue(msg) {
			h.logger.Warn("session send buffer full, dropping update",
				logging.String(logging.FieldToken, item.Token),
			)
		}
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session and rejects future upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.shutdown()
	}
}

func (h *Hub) remove(sess *session) {
	h.mu.Lock()
	delete(h.sessions, sess)
	count := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("browser disconnected", logging.Int("sessions", count))
}

// handleInbound routes a decoded browser message.
func (h *Hub) handleInbound(ctx context.Context, sess *session, msg inbound) {
	switch msg.Type {
	case typeProcess:
		h.handleProcess(ctx, sess, msg.Token)
	case typeSubscribe:
		h.handleSubscribe(ctx, sess, msg.Token)
	case typePing:
		sess.queue(Message{Type: TypePong})
	default:
		h.logger.Debug("unknown message type", logging.String("message_type", msg.Type))
		sess.queue(Message{Type: TypeError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// handleProcess releases an uploaded item into the pipeline. Repeats are
// no-ops; reconnecting browsers resend process for files they already
// released.
func (h *Hub) handleProcess(ctx context.Context, sess *session, token string) {
	if token == "" {
		sess.queue(Message{Type: TypeError, Error: "process requires a token"})
		return
	}
	sess.subscribe(token)

	item, released, err := h.store.Release(ctx, token)
	if err != nil {
		h.logger.Error("release failed", logging.String(logging.FieldToken, token), logging.Error(err))
		sess.queue(Message{Type: TypeError, Token: token, Error: "failed to start processing"})
		return
	}
	if item == nil {
		sess.queue(Message{Type: TypeError, Token: token, Error: "unknown upload token"})
		return
	}
	if released {
		h.logger.Info("item released for processing",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldToken, token),
		)
	}
	sess.queue(ItemMessage(item))
}

// handleSubscribe registers interest in a token and replies with the current
// snapshot so reconnecting pages catch up immediately.
func (h *Hub) handleSubscribe(ctx context.Context, sess *session, token string) {
	if token == "" {
		sess.queue(Message{Type: TypeError, Error: "subscribe requires a token"})
		return
	}
	sess.subscribe(token)

	item, err := h.store.GetByToken(ctx, token)
	if err != nil {
		h.logger.Error("subscribe lookup failed", logging.String(logging.FieldToken, token), logging.Error(err))
		return
	}
	if item == nil {
		sess.queue(Message{Type: TypeError, Token: token, Error: "unknown upload token"})
		return
	}
	sess.queue(ItemMessage(item))
}
