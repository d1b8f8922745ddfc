package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FSE-2021-1/central-server/internal/fleet"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/config"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/logging"
)

// WebSocket frame types.
const (
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeEvent    = "event"
	WSTypeResponse = "response"
	WSTypeError    = "error"

	// defaultSendBuffer is the per-session outbound queue length when
	// websocket.send_buffer is unset.
	defaultSendBuffer = 256
)

// Client intents, sent as the frame type.
const (
	IntentRegister     = "register"
	IntentPushOutput   = "push_output"
	IntentDelete       = "delete"
	IntentRequestState = "request_state"
	IntentMessage      = "message"
)

// WSMessage is a frame sent to a WebSocket session.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSIntent is a frame received from a WebSocket session.
type WSIntent struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IntentHandler processes one intent from a session.
type IntentHandler func(sess *Session, in WSIntent)

// Hub tracks WebSocket sessions and fans events out to them.
// It implements fleet.Pusher; neither Broadcast nor SendTo ever blocks.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	sessions map[string]*Session
	mu       sync.RWMutex

	intentMu sync.RWMutex
	onIntent IntentHandler
}

var _ fleet.Pusher = (*Hub)(nil)

// Session is one connected dashboard.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ID returns the session identifier.
func (c *Session) ID() string {
	return c.id
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// SetIntentHandler sets the function intents are dispatched to.
func (h *Hub) SetIntentHandler(fn IntentHandler) {
	h.intentMu.Lock()
	h.onIntent = fn
	h.intentMu.Unlock()
}

// Run blocks until the context is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// newSession creates an unregistered session over conn.
func (h *Hub) newSession(conn *websocket.Conn) *Session {
	return &Session{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(sess *Session) {
	h.mu.Lock()
	h.sessions[sess.id] = sess
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("websocket session connected", "session_id", sess.id, "sessions", n)
}

// Unregister removes a session from the hub.
// Only the goroutine that removes the session closes its send channel.
func (h *Hub) Unregister(sess *Session) {
	h.mu.Lock()
	_, existed := h.sessions[sess.id]
	delete(h.sessions, sess.id)
	n := len(h.sessions)
	h.mu.Unlock()

	if existed {
		close(sess.send)
		h.logger.Info("websocket session disconnected", "session_id", sess.id, "sessions", n)
	}
}

// Broadcast sends an event to every session. Sessions with a full queue
// miss this frame.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, sess := range sessions {
		if !sess.trySend(data) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast dropped for slow sessions", "event", event, "dropped", dropped)
	}
	h.logger.Debug("broadcast sent", "event", event, "recipients", len(sessions)-dropped)
}

// SendTo sends an event to one session.
//
// Returns ErrSessionNotFound for unknown ids and ErrSendBufferFull when
// the session's queue is full.
func (h *Hub) SendTo(sessionID, event string, payload any) error {
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	data, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	if !sess.trySend(data) {
		return ErrSendBufferFull
	}
	return nil
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// closeAll disconnects all sessions and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sess := range h.sessions {
		close(sess.send)
		if sess.conn != nil {
			sess.conn.Close()
		}
		delete(h.sessions, id)
	}
}

func (h *Hub) dispatch(sess *Session, in WSIntent) {
	h.intentMu.RLock()
	fn := h.onIntent
	h.intentMu.RUnlock()

	if fn == nil {
		sess.sendError(in.ID, ErrCodeUnavailable, "intents are not accepted")
		return
	}
	fn(sess, in)
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleWebSocket upgrades the connection, registers the session and
// greets it with the current state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := s.hub.newSession(conn)
	s.hub.Register(sess)

	go sess.writePump(s.wsCfg)
	go sess.readPump(s.wsCfg)

	if err := s.commands.RequestState(r.Context(), sess.id); err != nil {
		s.logger.Warn("initial state not sent", "session_id", sess.id, "error", err)
	}
}

// readPump reads intents from the connection until it closes.
func (c *Session) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "session_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "session_id", c.id, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleFrame(message)
	}
}

// writePump writes queued frames and keepalive pings.
func (c *Session) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one inbound frame. Intents run on the read
// goroutine, so a session's intents are applied in order.
func (c *Session) handleFrame(data []byte) {
	var in WSIntent
	if err := json.Unmarshal(data, &in); err != nil {
		c.sendError("", ErrCodeBadRequest, "invalid JSON message")
		return
	}

	if in.Type == WSTypePing {
		c.sendResponse(in.ID, WSTypePong, nil)
		return
	}
	c.hub.dispatch(c, in)
}

// trySend queues data without blocking. It reports false when the
// queue is full or the session is already closed.
func (c *Session) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil { // send on closed channel
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendResponse sends a response frame correlated by id.
func (c *Session) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error frame.
func (c *Session) sendError(id, code, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"code": code, "message": message})
}
