package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"socforge/core"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 512
	sendChannelSize = 256
)

// WebSocketMessage is the envelope for all pushed messages.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of connected WebSocket clients and pushes alert and
// incident notifications to them.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are handled by the CORS middleware.
		return true
	},
}

// NewHub creates a hub. Start must be called before broadcasting.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop. Call exactly once, in its own goroutine.
func (h *Hub) Start() {
	defer close(h.done)
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			h.clients = make(map[*wsClient]bool)
			h.mu.Unlock()
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; drop it rather than block broadcasts.
					go h.drop(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// drop disconnects a slow client. The unregister send must not outlive the
// hub loop, so it gives up once the hub context is cancelled.
func (h *Hub) drop(c *wsClient) {
	c.conn.Close()
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Stop shuts the hub down and waits for cleanup.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// BroadcastMessage pushes a typed message to every connected client.
// Non-blocking with a timeout; a congested hub never fails the caller.
func (h *Hub) BroadcastMessage(msgType string, data interface{}) error {
	msg := WebSocketMessage{Type: msgType, Data: data, Timestamp: time.Now().UTC()}
	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("failed to marshal websocket message", "type", msgType, "error", err)
		return err
	}

	select {
	case h.broadcast <- jsonData:
		return nil
	case <-time.After(time.Second):
		h.logger.Warnw("websocket broadcast timeout", "type", msgType)
		return nil
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Name implements the pipeline sink interface.
func (h *Hub) Name() string { return "websocket" }

// Deliver pushes high and critical alerts to connected dashboards.
func (h *Hub) Deliver(ctx context.Context, alerts []*core.Alert) error {
	for _, alert := range alerts {
		if core.SeverityRank(alert.Severity) < core.SeverityRank(core.SeverityHigh) {
			continue
		}
		if err := h.BroadcastMessage("alert", alert); err != nil {
			return err
		}
	}
	return nil
}

// DeliverIncidents pushes newly created incidents to connected dashboards.
func (h *Hub) DeliverIncidents(ctx context.Context, incidents []*core.Incident) error {
	for _, incident := range incidents {
		if err := h.BroadcastMessage("incident", incident); err != nil {
			return err
		}
	}
	return nil
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients only listen; reads just detect disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func serveWs(hub *Hub, logger *zap.SugaredLogger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{hub: hub, conn: conn, send: make(chan []byte, sendChannelSize)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
