package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

const (
	TypeConnected = "connected"
	TypeState     = "state"
	TypeReload    = "reload"
)

type Message struct {
	Type    string `json:"type"`
	View    string `json:"view,omitempty"`
	Version uint64 `json:"version,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	view   string
	mu     sync.Mutex
	closed bool
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}

// Hub fans messages out to browser websockets. Each socket may be bound to a
// view id so state changes reach only the tab that owns the view.
type Hub struct {
	upgrader websocket.Upgrader
	clients  map[*client]struct{}
	mu       sync.RWMutex
	onLeave  func(view string)
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Serve upgrades the request and blocks until the socket closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, view string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, view: view}
	h.register(c)
	defer h.unregister(c)

	h.send(c, Message{Type: TypeConnected, View: view})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(c, done)

	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("live client connected", "view", c.view, "total", total)
}

// OnLeave registers fn to run when the last socket bound to a view closes.
func (h *Hub) OnLeave(fn func(view string)) {
	h.mu.Lock()
	h.onLeave = fn
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	last := present && c.view != "" && h.countLocked(c.view) == 0
	onLeave := h.onLeave
	h.mu.Unlock()

	c.close()
	h.logger.Debug("live client disconnected", "view", c.view, "total", total)

	if last && onLeave != nil {
		onLeave(c.view)
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("live read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.write(data); err != nil {
		h.logger.Debug("live send failed", "error", err)
	}
}

// Publish delivers msg to every socket bound to view.
func (h *Hub) Publish(view string, msg Message) {
	h.deliver(msg, func(c *client) bool { return c.view == view })
}

// Broadcast delivers msg to every connected socket.
func (h *Hub) Broadcast(msg Message) {
	h.deliver(msg, func(*client) bool { return true })
}

func (h *Hub) deliver(msg Message, match func(*client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal live message", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if match(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	h.logger.Debug("delivering live message", "type", msg.Type, "view", msg.View, "clients", len(targets))

	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.logger.Debug("failed to send live message", "error", err)
			h.unregister(c)
		}
	}
}

// Count returns the number of sockets bound to view.
func (h *Hub) Count(view string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked(view)
}

func (h *Hub) countLocked(view string) int {
	n := 0
	for c := range h.clients {
		if c.view == view {
			n++
		}
	}
	return n
}

// Reload asks every browser to reload the page.
func (h *Hub) Reload(file string) {
	h.Broadcast(Message{
		Type:    TypeReload,
		File:    file,
		Message: "File changed, reloading...",
	})
}

func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}
