package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/suara/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024

	sendBufferSize = 256
)

// ErrConnectionClosed is returned when sending on a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// WebsocketTransport dials recognizer connections with gorilla/websocket
type WebsocketTransport struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebsocketTransport creates a transport with the given handshake timeout
func NewWebsocketTransport(handshakeTimeout time.Duration, logger *zap.Logger) *WebsocketTransport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebsocketTransport{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  32 * 1024,
		},
		logger: logger,
	}
}

// Open dials url and starts the read and write pumps
func (t *WebsocketTransport) Open(ctx context.Context, url string, handler repositories.TransportHandler) (repositories.Connection, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial recognizer: %w", err)
	}

	c := &connection{
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		logger:  t.logger,
	}
	c.start()
	return c, nil
}

// connection is one open websocket. Writes happen only in writePump.
type connection struct {
	conn    *websocket.Conn
	handler repositories.TransportHandler
	send    chan []byte
	done    chan struct{}
	logger  *zap.Logger

	stopOnce      sync.Once
	closedLocally atomic.Bool
}

func (c *connection) start() {
	var g errgroup.Group
	g.Go(c.readPump)
	g.Go(c.writePump)

	go func() {
		err := g.Wait()
		if err != nil && !c.closedLocally.Load() {
			c.handler.OnError(err)
		}
		c.handler.OnClose()
	}()
}

// SendText queues payload for writePump
func (c *connection) SendText(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return errors.New("send buffer full")
	}
}

// Close flushes queued messages, sends a close frame and releases the socket
func (c *connection) Close() error {
	c.closedLocally.Store(true)
	c.stop()
	return nil
}

func (c *connection) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// readPump delivers inbound text messages to the handler until the socket closes
func (c *connection) readPump() error {
	defer c.stop()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.closedLocally.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			c.handler.OnMessage(message)
		default:
			c.logger.Warn("Received unexpected message type", zap.Int("type", messageType))
		}
	}
}

// writePump writes queued messages and pings; on stop it drains the queue and closes the socket
func (c *connection) writePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.stop()
				return fmt.Errorf("write: %w", err)
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.stop()
				return fmt.Errorf("ping: %w", err)
			}

		case <-c.done:
			if c.closedLocally.Load() {
				c.flush()
				closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				c.write(websocket.CloseMessage, closeMsg)
			}
			return nil
		}
	}
}

func (c *connection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to flush queued message", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

func (c *connection) write(messageType int, payload []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}
