// Package mock provides in-memory implementations of the client.Transport
// and client.Conn interfaces for tests.
//
// All types are safe for concurrent use and record every call so tests can
// assert on what the client wrote.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/MrWong99/parley/internal/client"
)

var (
	_ client.Transport = (*Transport)(nil)
	_ client.Conn      = (*Conn)(nil)
)

// ErrDial is returned by [Transport.Dial] while failures are configured.
var ErrDial = errors.New("mock: dial failed")

// Transport is a mock implementation of client.Transport. Each successful
// Dial returns a new [Conn].
type Transport struct {
	mu sync.Mutex

	// FailFirst makes the first FailFirst dials fail with [ErrDial].
	FailFirst int

	// Dials counts Dial calls.
	Dials int

	// Conns holds every connection handed out, in order.
	Conns []*Conn
}

// Dial implements client.Transport.
func (t *Transport) Dial(ctx context.Context) (client.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Dials++
	if t.Dials <= t.FailFirst {
		return nil, ErrDial
	}
	c := NewConn()
	t.Conns = append(t.Conns, c)
	return c, nil
}

// Last returns the most recent connection, or nil.
func (t *Transport) Last() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Conns) == 0 {
		return nil
	}
	return t.Conns[len(t.Conns)-1]
}

// DialCount returns the number of Dial calls.
func (t *Transport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Dials
}

// Conn is a mock implementation of client.Conn. Frames pushed with
// [Conn.Feed] are returned by Read; writes are recorded.
type Conn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte

	// WriteErr makes Write fail.
	WriteErr error
}

// NewConn returns an open connection.
func NewConn() *Conn {
	return &Conn{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Feed queues a frame for Read.
func (c *Conn) Feed(frame []byte) {
	c.frames <- frame
}

// Read implements client.Conn. It returns io.EOF once the connection is
// closed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	case f := <-c.frames:
		return f, nil
	}
}

// Write implements client.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

// Close implements client.Conn.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Written returns a copy of every frame written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
