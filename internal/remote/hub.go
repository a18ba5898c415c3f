package remote

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"camswitch/internal/domain"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Event is one message on the session feed.
type Event struct {
	Type     string                    `json:"type"`
	Reason   domain.SessionStateReason `json:"reason,omitempty"`
	Snapshot *domain.Snapshot          `json:"snapshot,omitempty"`
	Code     domain.ErrorCode          `json:"code,omitempty"`
	Message  string                    `json:"message,omitempty"`
}

const (
	EventTypeSession = "session"
	EventTypeError   = "error"
)

// Hub fans session events out to websocket subscribers. It implements
// ports.EventSink. A slow subscriber loses its oldest queued events rather
// than blocking the session.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "remote-hub"),
		clients: make(map[*subscriber]struct{}),
	}
}

func (h *Hub) SessionStateChanged(snapshot domain.Snapshot, reason domain.SessionStateReason) {
	h.broadcast(Event{Type: EventTypeSession, Reason: reason, Snapshot: &snapshot})
}

func (h *Hub) SessionError(code domain.ErrorCode, detail string) {
	h.broadcast(Event{Type: EventTypeError, Code: code, Message: detail})
}

// Subscribers reports the number of connected feeds.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve pumps events to conn until the peer disconnects or the hub closes.
// The first message is the given snapshot.
func (h *Hub) Serve(conn *websocket.Conn, initial domain.Snapshot) {
	sub := &subscriber{send: make(chan []byte, clientBuffer), done: make(chan struct{})}
	if payload, err := json.Marshal(Event{Type: EventTypeSession, Snapshot: &initial}); err == nil {
		sub.enqueue(payload)
	}
	if !h.add(sub) {
		_ = conn.Close()
		return
	}
	defer func() {
		h.remove(sub)
		_ = conn.Close()
	}()

	go func() {
		defer sub.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case payload := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("session feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		sub.close()
	}
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.clients, sub)
	h.mu.Unlock()
	sub.close()
}

func (h *Hub) broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to encode session event", "type", event.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		sub.enqueue(payload)
	}
}

type subscriber struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

// enqueue never blocks; producers are serialized by the hub mutex.
func (s *subscriber) enqueue(payload []byte) {
	for {
		select {
		case s.send <- payload:
			return
		default:
		}
		select {
		case <-s.send:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}
