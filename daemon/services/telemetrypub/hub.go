// Package telemetrypub fans each published pack.Telemetry record out to
// the external consumers: a WebSocket hub, an MQTT client, Prometheus
// gauges, and a state-transition notifier.
package telemetrypub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

const (
	wsBufferSize   = 16
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsEvent is the JSON envelope written to every WebSocket client: one per
// published telemetry record or forwarded operational event.
type wsEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Hub broadcasts telemetry records and operational events to every
// connected WebSocket client. Clients receive everything; the event name
// in the envelope tells them apart.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan wsEvent
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan wsEvent
}

// NewHub creates an idle Hub; call Run to start its event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan wsEvent, wsBufferSize),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run drives registration, unregistration, and broadcast until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			logger.Debug("telemetry websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				logger.Debug("telemetry websocket client disconnected")
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish enqueues t for broadcast to all connected clients.
func (h *Hub) Publish(t pack.Telemetry) {
	h.Broadcast("telemetry", t)
}

// Broadcast enqueues an arbitrary named event for every connected client.
// Used for the operational events forwarded off the domain eventbus.
func (h *Hub) Broadcast(event string, data any) {
	select {
	case h.broadcast <- wsEvent{Event: event, Timestamp: time.Now(), Data: data}:
	default:
		logger.Warning("telemetry websocket broadcast channel full, dropping %s event", event)
	}
}

// HandleWebSocket upgrades r to a WebSocket connection and registers a new
// client on the hub. Mount at /ws.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("telemetry websocket upgrade failed: %v", err)
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan wsEvent, wsBufferSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		// Single topic, so there is no subscribe envelope to parse;
		// inbound messages only keep the read deadline alive via the
		// pong handler above.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
