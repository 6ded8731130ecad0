package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// ErrHubFull is returned by Publish when the broadcast queue is saturated
var ErrHubFull = errors.New("websocket hub queue full")

// WSMessage is one frame pushed to websocket clients
type WSMessage struct {
	Type      string      `json:"type"`
	Mode      string      `json:"mode,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	modes map[string]bool // empty means every mode
}

func (c *Client) wants(message *WSMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.modes) == 0 || message.Mode == "" {
		return true
	}
	return c.modes[message.Mode]
}

// Hub fans round events out to websocket clients. It implements
// events.Publisher.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *WSMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logging.Logger
}

// NewHub creates a new hub; call Run to start delivering
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.Default,
	}
}

// Run delivers messages until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Websocket client registered, %d connected", count)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal websocket message: %v", err)
				continue
			}

			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				h.logger.Warn("Dropping slow websocket client")
				h.remove(client)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements events.Publisher. It never blocks.
func (h *Hub) Publish(ctx context.Context, event *events.Event) error {
	message := &WSMessage{
		Type:      string(event.Type),
		Mode:      event.Mode().String(),
		Data:      event,
		Timestamp: event.Timestamp.Unix(),
	}
	select {
	case h.broadcast <- message:
		return nil
	default:
		return ErrHubFull
	}
}

// serve registers conn and starts its pumps
func (h *Hub) serve(conn *websocket.Conn) {
	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		modes: make(map[string]bool),
	}
	welcome, _ := json.Marshal(&WSMessage{
		Type:      "connected",
		Data:      map[string]string{"message": "Connected to wingo round stream"},
		Timestamp: time.Now().Unix(),
	})
	client.send <- welcome

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles subscription frames until the connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// subscribeFrame is what clients send to filter the stream, e.g.
// {"type":"subscribe","modes":["parity/60s"]}
type subscribeFrame struct {
	Type  string   `json:"type"`
	Modes []string `json:"modes"`
}

func (c *Client) handleMessage(message []byte) {
	var frame subscribeFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch frame.Type {
	case "subscribe":
		c.modes = make(map[string]bool, len(frame.Modes))
		for _, m := range frame.Modes {
			c.modes[m] = true
		}
	case "unsubscribe":
		c.modes = make(map[string]bool)
	}
}

func (c *Client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
