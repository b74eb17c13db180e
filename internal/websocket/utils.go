package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// ReadWait is how long a connection may stay silent. Clients ping well
	// within it.
	ReadWait = 2 * time.Minute
	// MaxMessageBytes bounds a single client message.
	MaxMessageBytes = 64 * 1024
)

// Conn serializes writes to a gorilla connection. The session loop, the
// camera signaler and the read loop all write to the same socket.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewConn wraps conn and applies the read limits.
func NewConn(conn *websocket.Conn) *Conn {
	conn.SetReadLimit(MaxMessageBytes)
	return &Conn{conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(action Action, code, msg string, fields map[string]string) error {
	return c.WriteTyped(ErrorResponse{
		Event:  EventError,
		Action: action,
		Code:   code,
		Error:  msg,
		Fields: fields,
	})
}

// ReadMessage reads one raw message and extends the read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(ReadWait))
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
