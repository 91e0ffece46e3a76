package push

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

// Hub manages WebSocket connections and per-game room delivery.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]map[string]*conn // game -> connID -> conn
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type conn struct {
	id     string
	gameID uuid.UUID
	ws     *websocket.Conn
	send   chan []byte
}

// NewHub creates a WebSocket hub. checkOrigin may be nil to accept any origin.
func NewHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		rooms: make(map[uuid.UUID]map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeGame upgrades the request and streams updates for gameID until the client
// goes away or the hub shuts down.
func (h *Hub) ServeGame(w http.ResponseWriter, r *http.Request, gameID uuid.UUID) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &conn{id: uuid.NewString(), gameID: gameID, ws: ws, send: make(chan []byte, sendBuffer)}
	h.join(c)
	h.logger.Debug("ws connected", "conn_id", c.id, "game_id", gameID)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Publish sends u to every connection watching its game.
func (h *Hub) Publish(_ context.Context, u Update) error {
	payload, err := EncodeMessage(u)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[u.GameID] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "conn_id", c.id, "game_id", u.GameID)
		}
	}
	return nil
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, conns := range h.rooms {
		count += len(conns)
	}
	return count
}

// RoomCount returns the number of games with at least one watcher.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes all connections gracefully.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for gameID, conns := range h.rooms {
		for _, c := range conns {
			close(c.send)
		}
		delete(h.rooms, gameID)
	}
}

func (h *Hub) join(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.gameID] == nil {
		h.rooms[c.gameID] = make(map[string]*conn)
	}
	h.rooms[c.gameID][c.id] = c
}

// leave unregisters c and closes its send channel exactly once.
func (h *Hub) leave(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[c.gameID]
	if !ok {
		return
	}
	if _, ok := conns[c.id]; !ok {
		return
	}
	delete(conns, c.id)
	close(c.send)
	if len(conns) == 0 {
		delete(h.rooms, c.gameID)
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("ws write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed. Clients never
// send anything meaningful.
func (h *Hub) readPump(c *conn) {
	defer func() {
		h.leave(c)
		c.ws.Close()
		h.logger.Debug("ws disconnected", "conn_id", c.id, "game_id", c.gameID)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws unexpected close", "conn_id", c.id, "error", err)
			}
			return
		}
	}
}
