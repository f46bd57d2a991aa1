package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send small control messages.
	maxMessageSize = 4 * 1024

	sendBufferSize      = 64
	broadcastBufferSize = 256
)

// ErrHubStopped is returned when a client connects after the hub has shut down
var ErrHubStopped = errors.New("websocket hub stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients are authenticated with a bearer token before the upgrade.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of presentation clients and broadcasts live updates to them.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Updates waiting to be fanned out.
	broadcast chan domain.UpdateMessage

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan domain.UpdateMessage, broadcastBufferSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. Every client is disconnected when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return nil
		}
	}
}

// Broadcast queues an update for every client. It never blocks; updates are
// dropped while the queue is full.
func (h *Hub) Broadcast(msg domain.UpdateMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("Broadcast queue full, dropping update",
			zap.String("type", string(msg.Type)),
			zap.String("sessionID", msg.SessionID))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(msg domain.UpdateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal update", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// A client that cannot keep up is disconnected.
			delete(h.clients, id)
			close(client.send)
			h.logger.Warn("Dropped slow client", zap.String("clientID", id))
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[client.clientID]; ok && current == client {
		delete(h.clients, client.clientID)
		close(client.send)
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Connection ID for this client
	clientID string

	// Operator that authenticated the connection
	operator string

	validator *MessageValidator
	logger    *zap.Logger
}

// HandleWebSocketWithAuth upgrades a request that was already authenticated for operator
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, operator string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		clientID:  uuid.NewString(),
		operator:  operator,
		validator: NewMessageValidator(),
		logger:    logger,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return ErrHubStopped
	}

	logger.Info("Presentation client connected",
		zap.String("clientID", client.clientID),
		zap.String("operator", operator))

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump handles control messages from the client until the connection closes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
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
				c.logger.Error("Failed to write message", zap.Error(err))
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

// processMessage answers a control message from the client
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid client message", zap.String("clientID", c.clientID), zap.Error(err))
		c.reply(CreateErrorMessage("invalid_message", "Message rejected", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *PingMessage:
		c.reply(CreatePongMessage(m.Data))
	}
}

func (c *Client) reply(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}

	// The hub closes send on removal; only write while still registered.
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if current, ok := c.hub.clients[c.clientID]; !ok || current != c {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Client send buffer full, dropping reply", zap.String("clientID", c.clientID))
	}
}
