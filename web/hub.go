package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline      = 5 * time.Second
	readDeadline       = 90 * time.Second
	pingInterval       = 30 * time.Second
	maxReadMessageSize = 4 * 1024
)

// Message types sent to dashboard clients.
const (
	MessageTypeStatus     = "status"
	MessageTypeActivation = "activation"
	MessageTypeMenu       = "menu"
	MessageTypeMenuClosed = "menu_closed"
)

// Message is the envelope for every server to client message
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ClientMessage is sent by dashboard clients. The only type is "select".
type ClientMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Hub fans messages out to every connected websocket client
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	incoming   chan ClientMessage
	onMessage  func(ClientMessage)
	done       chan struct{}
}

// Client is one websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. onMessage, if set, is called from Run for every
// message a client sends.
func NewHub(onMessage func(ClientMessage)) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan ClientMessage, 16),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			slog.Debug("Dashboard client connected", "clients", len(h.clients))
		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
				slog.Debug("Dashboard client disconnected", "clients", len(h.clients))
			}
		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow client; drop it rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		case msg := <-h.incoming:
			if h.onMessage != nil {
				h.onMessage(msg)
			}
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// BroadcastMessage queues msg for every client. It never blocks; messages
// are dropped when the queue is full.
func (h *Hub) BroadcastMessage(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode websocket message", "type", msg.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		slog.Warn("Websocket broadcast queue full, dropping message", "type", msg.Type)
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Websocket read failed", "error", err)
			}
			return
		}
		select {
		case c.hub.incoming <- msg:
		default:
			slog.Warn("Dropping client message", "type", msg.Type)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
