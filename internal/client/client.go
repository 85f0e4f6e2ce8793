package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32768 // 32KB
)

var (
	ErrClientSendBufferFull = errors.New("client send buffer full")
	ErrClientClosed         = errors.New("client connection closed")
)

// Client represents one connected client process.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	ID string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pageURL string
	closed  bool
}

// NewClient creates a client for an upgraded connection. pageURL is the page
// the client reports it is currently displaying (may be empty).
func NewClient(conn *websocket.Conn, hub *Hub, id, pageURL string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, 256),
		ID:      id,
		pageURL: pageURL,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// PageURL returns the page the client last reported.
func (c *Client) PageURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pageURL
}

func (c *Client) setPageURL(u string) {
	c.mu.Lock()
	c.pageURL = u
	c.mu.Unlock()
}

// detach hands the client back to the hub for unregistration. After the hub
// has stopped, nothing drains the unregister channel; give up instead of
// parking the pump goroutine forever.
func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
		c.cancel()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Errorf("client %s read error: %v", c.ID, err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logging.Errorf("client %s sent malformed message: %v", c.ID, err)
			continue
		}
		c.hub.handleMessage(c, &msg)
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
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a message for delivery to this client.
func (c *Client) Send(msg *Message) (err error) {
	// The channel may be closed between the flag check and the send.
	defer func() {
		if r := recover(); r != nil {
			err = ErrClientClosed
		}
	}()

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClientClosed
	}
	c.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientSendBufferFull
	}
}

// Close shuts the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	close(c.send)
	c.conn.Close()
}
