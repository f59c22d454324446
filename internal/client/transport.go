package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is an open, message-oriented connection to the dialogue service.
type Conn interface {
	// Read blocks until the next frame arrives.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one frame. It is safe to call concurrently with Read.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. Pending reads return an error.
	Close() error
}

// Transport opens connections to the dialogue service.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// defaultReadLimit bounds a single inbound frame. Audio chunks are base64
// encoded inside JSON and routinely exceed the websocket default of 32 KiB.
const defaultReadLimit = 4 << 20

// WebSocket dials the service over a WebSocket.
type WebSocket struct {
	// URL is the ws:// or wss:// session endpoint.
	URL string

	// Header is sent with the opening handshake, typically carrying the
	// authorization token.
	Header http.Header

	// ReadLimit overrides the maximum inbound frame size. Default: 4 MiB.
	ReadLimit int64
}

var _ Transport = (*WebSocket)(nil)

// Dial implements [Transport].
func (w *WebSocket) Dial(ctx context.Context) (Conn, error) {
	if w.URL == "" {
		return nil, errors.New("client: websocket: empty url")
	}
	conn, _, err := websocket.Dial(ctx, w.URL, &websocket.DialOptions{
		HTTPHeader: w.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("client: websocket dial: %w", err)
	}
	limit := w.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsConn{conn: conn}, nil
}

// wsConn adapts *websocket.Conn to [Conn].
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// isNormalClose reports whether err ends a connection without being worth an
// error report: a clean close handshake or the peer going away.
func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
