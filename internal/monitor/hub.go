package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/fixrouter/internal/router"
	"github.com/rickgao/fixrouter/internal/session"
)

const (
	clientBuffer = 256
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// envelope is the JSON frame sent to subscribers.
type envelope struct {
	Type    string         `json:"type"` // "message" or "session"
	Message *router.Event  `json:"message,omitempty"`
	Session *session.Event `json:"session,omitempty"`
}

// Hub fans routing and session events out to websocket subscribers. A
// subscriber that falls behind is disconnected rather than slowing the
// router. Hub implements router.Observer and session.Observer.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Observe broadcasts a pipeline event.
func (h *Hub) Observe(ev router.Event) {
	h.broadcast(envelope{Type: "message", Message: &ev})
}

// SessionEvent broadcasts a session lifecycle event.
func (h *Hub) SessionEvent(ev session.Event) {
	h.broadcast(envelope{Type: "session", Session: &ev})
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(env envelope) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("encode event failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- data:
		default:
			h.logger.Warn("dropping slow subscriber", "remote_addr", s.conn.RemoteAddr().String())
			delete(h.clients, s)
			s.close()
		}
	}
}

// ServeHTTP upgrades the request and streams events until the subscriber
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", "remote_addr", conn.RemoteAddr().String())

	go h.writePump(s)
	h.readPump(s)
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.clients, s)
	h.mu.Unlock()
	s.close()
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for s := range h.clients {
		delete(h.clients, s)
		s.close()
	}
}
