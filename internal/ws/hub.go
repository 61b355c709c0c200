package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/naperu/embudo/pkg/logger"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// must be < pongWait
	pingInterval = 30 * time.Second

	sendBuffer = 64
)

// Event types pushed to the dashboard
const (
	EventNewMessage   = "new_message"
	EventMessageSent  = "message_sent"
	EventLeadUpdate   = "lead_update"
	EventNotification = "notification"
	EventAppointment  = "appointment"
	EventTyping       = "typing"
)

// Message is one frame on the socket.
type Message struct {
	Event     string      `json:"event"`
	EmpresaID string      `json:"empresa_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Client is one connected dashboard tab.
type Client struct {
	ID        string
	EmpresaID uuid.UUID
	UserID    uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
}

// NewClient builds a client bound to the hub.
func NewClient(h *Hub, conn *websocket.Conn, empresaID, userID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.NewString(),
		EmpresaID: empresaID,
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		Hub:       h,
	}
}

// Hub fans events out to the clients of each empresa.
type Hub struct {
	clients        map[*Client]bool
	empresaClients map[uuid.UUID]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu  sync.RWMutex
	log *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		empresaClients: make(map[uuid.UUID]map[*Client]bool),
		broadcast:      make(chan *Message, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		log:            logger.Component("ws"),
	}
}

// Run is the hub loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if _, ok := h.empresaClients[client.EmpresaID]; !ok {
				h.empresaClients[client.EmpresaID] = make(map[*Client]bool)
			}
			h.empresaClients[client.EmpresaID][client] = true
			h.mu.Unlock()
			h.log.WithFields(map[string]interface{}{"client": client.ID, "empresa_id": client.EmpresaID}).Debug("client registered")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.done:
			return
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if set, ok := h.empresaClients[client.EmpresaID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.empresaClients, client.EmpresaID)
		}
	}
	close(client.Send)
	h.log.WithField("client", client.ID).Debug("client unregistered")
}

func (h *Hub) broadcastMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("marshal ws message")
		return
	}

	h.mu.RLock()
	var targets map[*Client]bool
	if msg.EmpresaID != "" {
		empresaID, err := uuid.Parse(msg.EmpresaID)
		if err != nil {
			h.mu.RUnlock()
			return
		}
		targets = h.empresaClients[empresaID]
	} else {
		targets = h.clients
	}

	var slow []*Client
	for client := range targets {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.remove(c)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToEmpresa queues an event for every client of the empresa.
// It never blocks the caller; events are dropped when the queue is full.
func (h *Hub) BroadcastToEmpresa(empresaID uuid.UUID, event string, data interface{}) {
	msg := &Message{Event: event, EmpresaID: empresaID.String(), Data: data}
	select {
	case h.broadcast <- msg:
	default:
		h.log.WithField("event", event).Warn("ws broadcast queue full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) EmpresaClientCount(empresaID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.empresaClients[empresaID])
}

// ReadPump consumes frames until the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.Hub.log.WithError(err).Debug("ws read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump drains Send and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Event {
	case EventTyping:
		c.Hub.BroadcastToEmpresa(c.EmpresaID, EventTyping, msg.Data)
	case "ping":
		select {
		case c.Send <- []byte(`{"event":"pong"}`):
		default:
		}
	}
}
