package notifications

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// connection is one websocket client belonging to an authenticated user.
type connection struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan Message
}

// Hub tracks live websocket connections and routes messages to them. A user
// may hold several connections at once (multiple tabs).
type Hub struct {
	mu          sync.RWMutex
	connections map[*connection]bool

	register   chan *connection
	unregister chan *connection
	stop       chan struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[*connection]bool),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		stop:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			h.logger.Debug("Websocket connected", zap.String("user_id", conn.userID.String()))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.mu.Unlock()
			h.logger.Debug("Websocket disconnected", zap.String("user_id", conn.userID.String()))

		case <-h.stop:
			h.mu.Lock()
			for conn := range h.connections {
				close(conn.send)
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// HandleConnection upgrades the request and pumps messages until the client
// goes away.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &connection{
		userID: userID,
		conn:   ws,
		send:   make(chan Message, 64),
	}
	h.register <- conn

	go h.writePump(conn)
	go h.readPump(conn)
	return nil
}

// SendToUser delivers a message to every live connection of the user.
// Returns false when the user has no connection; the caller falls back to
// the stored in-app notification.
func (h *Hub) SendToUser(userID uuid.UUID, msg Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := false
	for conn := range h.connections {
		if conn.userID != userID {
			continue
		}
		select {
		case conn.send <- msg:
			sent = true
		default:
			// Slow consumer, skip rather than block the workflow.
		}
	}
	return sent
}

// ConnectionCount reports live connections, used by the health endpoint.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	close(h.stop)
}

func (h *Hub) readPump(conn *connection) {
	defer func() {
		h.unregister <- conn
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(512)
	conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Websocket read error", zap.Error(err))
			}
			return
		}
		conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Hub) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
