package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradinglab/internal/events"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Hub fans presentation events out to connected WebSocket clients. Each
// client registers for one user id; events are delivered to every client
// of the event's user. The hub implements events.Publisher so it can sit
// alongside the Kafka publisher in a fan-out.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{} // user id -> clients
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub creates a stream hub
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin from the app host
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logger.Get().With("component", "stream_hub"),
		clients: make(map[string]map[*client]struct{}),
	}
}

// HandleWS upgrades an HTTP request to a WebSocket subscription. The user
// id comes from the authenticated request (header set by the auth proxy,
// query param for local development).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		http.Error(w, "user id required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	h.register(c)

	go c.writePump(h)
	go c.readPump(h)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	metrics.WebSocketConnections.Inc()
	h.log.Debugw("Stream client connected", "user_id", c.userID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[c.userID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			metrics.WebSocketConnections.Dec()
			if len(clients) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
}

// Clients reports the number of connections for a user
func (h *Hub) Clients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID])
}

// broadcast delivers a payload to every client of a user. A client whose
// send buffer is full is dropped rather than blocking the publisher.
func (h *Hub) broadcast(userID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	stale := make([]*client, 0)
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warnw("Dropping slow stream client", "user_id", userID)
		h.unregister(c)
		_ = c.conn.Close()
	}

	return nil
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pings get answered; inbound messages
// are ignored, the stream is one-way
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// events.Publisher implementation

func (h *Hub) PublishStepChanged(event *events.StepChangedEvent) error {
	return h.broadcast(event.UserID, event)
}

func (h *Hub) PublishProgress(event *events.ProgressChangedEvent) error {
	return h.broadcast(event.UserID, event)
}

func (h *Hub) PublishOnboardingCompleted(event *events.OnboardingCompletedEvent) error {
	return h.broadcast(event.UserID, event)
}

func (h *Hub) PublishConflictDetected(event *events.ConflictDetectedEvent) error {
	return h.broadcast(event.UserID, event)
}

func (h *Hub) PublishActivationSucceeded(event *events.ActivationSucceededEvent) error {
	return h.broadcast(event.UserID, event)
}

func (h *Hub) PublishActivationFailed(event *events.ActivationFailedEvent) error {
	return h.broadcast(event.UserID, event)
}

func (h *Hub) PublishNetworkUpdated(event *events.NetworkUpdatedEvent) error {
	return h.broadcast(event.UserID, event)
}
