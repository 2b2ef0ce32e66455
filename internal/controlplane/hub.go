package controlplane

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientBuffer   = 256
	maxMessageSize = 512
)

// Envelope is the frame written to event stream clients.
type Envelope struct {
	Type    events.Topic `json:"type"`
	Payload events.Event `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// Messages dropped because send was full.
	dropped int
}

// Hub fans bus events out to websocket clients. A slow client loses
// messages rather than stalling the publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	unsub   []func()
}

// NewHub creates a hub subscribed to every topic on bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{clients: make(map[*client]struct{})}
	for _, topic := range events.Topics {
		h.unsub = append(h.unsub, bus.On(topic, h.broadcast))
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(e events.Event) {
	data, err := json.Marshal(Envelope{Type: e.Topic(), Payload: e})
	if err != nil {
		log.Printf("[hub] encode %s: %v", e.Topic(), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			c.dropped++
		}
	}
}

// Serve registers conn and pumps events to it until the connection closes.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.readPump(c)
	h.writePump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if c.dropped > 0 {
		log.Printf("[hub] client %s dropped %d events", c.conn.RemoteAddr(), c.dropped)
	}
}

// readPump discards client input and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Close unsubscribes from the bus and disconnects every client.
func (h *Hub) Close() {
	for _, u := range h.unsub {
		u()
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}
