package events

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbontwin/ledger-backend/internal/metrics"
)

// Hub fans ledger events out to websocket subscribers.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Event
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}

	mu       sync.RWMutex
	byID     map[string]*Connection
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// Connection represents a subscribed websocket client.
type Connection struct {
	ID           string
	RemoteAddr   string
	Conn         *websocket.Conn
	Send         chan Event
	LastActivity time.Time
	mu           sync.Mutex
}

// NewHub creates the hub and starts its dispatch loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Event, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		byID:        make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
		logger: logger,
	}

	go h.run()
	return h
}

// HandleConnection upgrades an HTTP request and subscribes it to the feed.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		RemoteAddr:   r.RemoteAddr,
		Conn:         conn,
		Send:         make(chan Event, 256),
		LastActivity: time.Now(),
	}

	h.register <- connection

	h.mu.Lock()
	h.byID[connection.ID] = connection
	h.mu.Unlock()

	go h.readPump(connection)
	go h.writePump(connection)

	return connection, nil
}

// Broadcast queues an event for every subscriber. The feed never blocks a
// write operation: when the queue is full the event is dropped and consumers
// recover via the read API.
func (h *Hub) Broadcast(e Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("event broadcast queue full, dropping event",
			zap.String("type", string(e.Type)))
	}
}

// ConnectionCount returns the number of active subscribers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Close shuts down the hub and all subscriber connections.
func (h *Hub) Close() {
	close(h.stop)

	h.mu.Lock()
	for _, conn := range h.byID {
		conn.Conn.Close()
	}
	h.byID = make(map[string]*Connection)
	h.mu.Unlock()
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			metrics.SetWebsocketConnections(len(h.connections))
			h.logger.Debug("event subscriber registered", zap.String("id", conn.ID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
				h.mu.Lock()
				delete(h.byID, conn.ID)
				h.mu.Unlock()
				metrics.SetWebsocketConnections(len(h.connections))
			}

		case e := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.Send <- e:
				default:
					close(conn.Send)
					delete(h.connections, conn)
					h.mu.Lock()
					delete(h.byID, conn.ID)
					h.mu.Unlock()
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.unregister <- conn
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Subscribers are read-only; inbound frames only refresh liveness.
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("subscriber read error", zap.Error(err))
			}
			return
		}
		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
	}
}

func (h *Hub) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case e, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(e); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
