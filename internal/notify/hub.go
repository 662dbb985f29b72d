package notify

import (
	"encoding/json"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"
)

// Hub fans session lifecycle notifications out to connected participants.
// Delivery is strictly best-effort: a slow or absent recipient never blocks
// a command, and undeliverable notifications are dropped.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	outbound   chan *envelope
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	actorID string
	send    chan []byte
}

// Notification is the wire shape pushed to websocket clients.
type Notification struct {
	Kind      string `json:"kind"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
}

type envelope struct {
	recipient    string
	notification Notification
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan *envelope, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, actorID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		actorID: actorID,
		send:    make(chan []byte, 32),
	}
}

// Notify implements the services.Notifier contract. It never blocks: when
// the hub's queue is full the notification is dropped.
func (h *Hub) Notify(recipient, kind string, payload any) {
	message := &envelope{
		recipient: recipient,
		notification: Notification{
			Kind:      kind,
			Payload:   payload,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	select {
	case h.outbound <- message:
	default:
		log.Warn().Str("recipient", recipient).Str("kind", kind).
			Msg("notification queue full, dropping")
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.actorID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.actorID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.actorID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.actorID)
			}
		case message := <-h.outbound:
			h.deliver(message)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) deliver(message *envelope) {
	encoded, err := json.Marshal(message.notification)
	if err != nil {
		log.Warn().Err(err).Str("kind", message.notification.Kind).
			Msg("notification encode failed")
		return
	}

	set, ok := h.clients[message.recipient]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- encoded:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, message.recipient)
	}
}

// ReadPump drains the connection until it closes. Clients only receive;
// inbound frames are discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
