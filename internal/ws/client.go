package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at pingPeriod to keep it fed.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBufferSize is the per-connection outbound buffer. A consumer that
	// falls this far behind gets evicted by the hub.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client wraps one WebSocket connection. It satisfies hub.Subscriber: the
// hub enqueues payloads without blocking and closes the client when its
// buffer fills up.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Enqueue hands a payload to the write pump. Never blocks; returns false
// when the buffer is full.
func (c *client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close signals both pumps to shut down. Safe to call from any goroutine,
// any number of times.
func (c *client) Close() {
	c.once.Do(func() { close(c.done) })
}

// writePump drains the send buffer onto the connection and keeps the
// connection alive with pings. Runs in its own goroutine; owns all writes.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
