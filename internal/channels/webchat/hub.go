// Package webchat is the web-widget channel: inbound messages arrive over
// HTTP from the embedded widget, outbound messages are pushed to connected
// widgets over websocket.
package webchat

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"channel-relay/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // widget embeds on arbitrary customer domains
	},
}

// Client is one connected widget or dashboard socket, scoped to a visitor.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	visitorID string
}

// Hub maintains connected widget clients and pushes ledger appends to the
// visitor they belong to.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
}

type outbound struct {
	visitorID string
	payload   []byte
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan outbound),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
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
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				// Empty visitor id means a dashboard socket watching
				// everything.
				if client.visitorID != "" && client.visitorID != msg.visitorID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NotifyMessage pushes a ledger append to the visitor's connected widgets.
func (h *Hub) NotifyMessage(visitorID string, msg *models.Message) {
	payload, err := json.Marshal(wsEvent{Type: "new_message", Data: msg})
	if err != nil {
		log.Printf("Error marshaling WS event: %v", err)
		return
	}
	h.broadcast <- outbound{visitorID: visitorID, payload: payload}
}

// NewVisitorID mints an id for a widget visitor's first contact.
func NewVisitorID() string {
	return "web-" + uuid.NewString()
}

// ServeWs upgrades an HTTP request to a widget socket. The visitor query
// parameter scopes the socket; without it the socket sees all traffic.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		visitorID: r.URL.Query().Get("visitor"),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Widget messages arrive over HTTP, not the socket.
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
