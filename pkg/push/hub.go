// Package push fans notification messages out to connected websocket clients.
package push

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sevaconnect-backend/pkg/metrics"
)

// Message is what subscribers receive.
type Message struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub tracks connected subscribers. A hub with no subscribers drops messages.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub. checkOrigin may be nil to accept any origin.
func NewHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]*client),
	}
}

// Push sends title and body to every subscriber. Slow subscribers miss
// messages instead of blocking the caller.
func (h *Hub) Push(title, body string) {
	msg := Message{Title: title, Body: body, SentAt: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("push client buffer full, dropping message", "client", c.id)
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade push websocket", "error", err)
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan Message, sendBuffer)}
	h.register(c)
	h.logger.Info("🔔 Push client connected", "client", c.id)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.PushClients.Set(float64(n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.PushClients.Set(float64(n))
}

// readLoop only drains control frames; subscribers never send data.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Info("Push client disconnected", "client", c.id)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}
}
