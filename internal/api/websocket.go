package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/attune-hq/attune/internal/logging"
)

// WebSocketMessage is the envelope pushed to connected clients. Payloads
// carry only change notifications, never observation detail.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHub tracks connected clients and fans out broadcasts.
type WebSocketHub struct {
	clients    map[string]*wsClient
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan WebSocketMessage
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan WebSocketMessage
}

// NewWebSocketHub creates a hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan WebSocketMessage, 16),
	}
}

// Run processes hub events. Call in a goroutine; runs for process lifetime.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client.id] = client
			logging.Debug("WebSocket client connected: %s", client.id)

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				logging.Debug("WebSocket client disconnected: %s", client.id)
			}

		case msg := <-h.broadcast:
			for id, client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client, drop it
					delete(h.clients, id)
					close(client.send)
				}
			}
		}
	}
}

// Broadcast queues a message for every connected client
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn("WebSocket broadcast queue full, dropping %s", msg.Type)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local-only server, UI origin varies by host shell
		return true
	},
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan WebSocketMessage, 16),
	}
	s.wsHub.register <- client

	go client.writePump()
	go client.readPump(s.wsHub)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readPump drains the connection so pings and close frames are handled.
// Clients never send application messages.
func (c *wsClient) readPump(hub *WebSocketHub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
