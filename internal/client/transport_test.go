package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/internal/client"
	"github.com/MrWong99/parley/internal/client/mock"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/packet"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler receives the
// accepted *websocket.Conn. The server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readPacket reads one frame and decodes it as a client packet.
func readPacket(t *testing.T, conn *websocket.Conn) *packet.Packet {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("server read: %v", err)
		return nil
	}
	p, err := packet.Unmarshal(data)
	if err != nil {
		t.Errorf("server decode: %v", err)
		return nil
	}
	return p
}

// writePacket sends p wrapped in a response envelope.
func writePacket(t *testing.T, conn *websocket.Conn, p *packet.Packet) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := packet.EncodeResponse(p)
	if err != nil {
		t.Errorf("encode: %v", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("server write: %v (may be expected on close)", err)
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	t.Parallel()

	received := make(chan *packet.Packet, 4)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		load := readPacket(t, conn)
		if load == nil {
			return
		}
		received <- load
		writePacket(t, conn, sceneStatus(bob, alice))

		text := readPacket(t, conn)
		if text == nil {
			return
		}
		received <- text
		reply := serverPacket(
			packet.Routing{Source: packet.AgentSource(bob.AgentID), Target: packet.Source{Type: packet.SourcePlayer}},
			&packet.Text{Text: "Well met.", Final: true},
		)
		writePacket(t, conn, reply)

		// Hold the connection until the client is done.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _, _ = conn.Read(ctx)
	})

	reg := newRegistry()
	c := client.New(&client.WebSocket{
		URL:    wsURL(srv),
		Header: http.Header{"Authorization": []string{"Bearer token"}},
	}, reg, reg.Directory(), fastReconnect(), client.WithScene("tavern"))
	ctx := startClient(t, c)
	t.Cleanup(func() { _ = c.Close() })

	c.SendTextTo("Greetings", bob.BrainName, false, true)
	c.Pump(ctx)
	waitFor(t, "connected", func() bool { return c.Status() == client.StatusConnected })
	c.Pump(ctx)

	load := <-received
	if ctl, ok := load.Payload.(*packet.Control); !ok || ctl.Description != "tavern" {
		t.Errorf("first frame = %+v", load.Payload)
	}
	text := <-received
	if textOf(text) != "Greetings" || text.TargetName() != bob.AgentID {
		t.Errorf("text frame = %+v", text)
	}

	waitFor(t, "reply", func() bool { return c.Inbound().Len() == 2 })
	all := c.Inbound().Drain()
	reply := all[1]
	if textOf(reply) != "Well met." || reply.SourceName() != bob.BrainName {
		t.Errorf("reply = %+v", reply)
	}
}

func TestWebSocket_DialErrors(t *testing.T) {
	t.Parallel()

	if _, err := (&client.WebSocket{}).Dial(context.Background()); err == nil {
		t.Error("Dial with empty url succeeded")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	if _, err := (&client.WebSocket{URL: wsURL(srv)}).Dial(context.Background()); err == nil {
		t.Error("Dial against a rejecting server succeeded")
	}
}

// ── Reconnector ───────────────────────────────────────────────────────────────

func TestReconnector_RetriesUntilConnected(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{FailFirst: 2}
	connected := make(chan client.Conn, 1)
	var attempts atomic.Int32
	r := client.NewReconnector(client.ReconnectorConfig{
		Transport:  tr,
		MaxRetries: 5,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		OnAttempt:  func(int) { attempts.Add(1) },
		OnConnect:  func(c client.Conn) { connected <- c },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = r.Run(ctx) }()

	r.Request()
	r.Request() // merged with the first

	select {
	case conn := <-connected:
		if conn != r.Connection() {
			t.Error("Connection() is not the connection handed to OnConnect")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("never connected")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}

	if err := r.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
	if !tr.Last().IsClosed() {
		t.Error("Stop did not close the connection")
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestReconnector_GivesUp(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{FailFirst: 100}
	failed := make(chan error, 1)
	r := client.NewReconnector(client.ReconnectorConfig{
		Transport:  tr,
		MaxRetries: 3,
		Backoff:    time.Millisecond,
		OnFailure:  func(err error) { failed <- err },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = r.Run(ctx) }()

	r.Request()
	select {
	case err := <-failed:
		if !errors.Is(err, client.ErrRetriesExhausted) || !errors.Is(err, mock.ErrDial) {
			t.Errorf("OnFailure error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("never gave up")
	}
	if got := tr.DialCount(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}
}

func TestClient_GivesUpIntoErrorState(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{FailFirst: 100}
	reg := newRegistry()
	c := client.New(tr, reg, reg.Directory(), fastReconnect())
	startClient(t, c)

	c.StartSession()
	waitFor(t, "error state", func() bool { return c.Status() == client.StatusError })
	if !errors.Is(c.LastError(), client.ErrRetriesExhausted) {
		t.Errorf("LastError() = %v", c.LastError())
	}
}

// ── Failover ──────────────────────────────────────────────────────────────────

func TestFailover_UsesNextEndpoint(t *testing.T) {
	t.Parallel()

	primary := &mock.Transport{FailFirst: 100}
	secondary := &mock.Transport{}
	f := client.NewFailover(resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute},
	},
		client.Endpoint{Name: "primary", Transport: primary},
		client.Endpoint{Name: "secondary", Transport: secondary},
	)

	for range 2 {
		conn, err := f.Dial(context.Background())
		if err != nil {
			t.Fatalf("Dial() = %v", err)
		}
		if conn != secondary.Last() {
			t.Error("connection not from the secondary endpoint")
		}
	}
	// The primary breaker opened after its first failure.
	if got := primary.DialCount(); got != 1 {
		t.Errorf("primary dials = %d, want 1", got)
	}
	states := f.States()
	if len(states) != 2 || states[0].State != resilience.StateOpen || states[1].State != resilience.StateClosed {
		t.Errorf("States() = %+v, want primary open and secondary closed", states)
	}
}

func TestFailover_AllFail(t *testing.T) {
	t.Parallel()

	f := client.NewFailover(resilience.FallbackConfig{},
		client.Endpoint{Name: "only", Transport: &mock.Transport{FailFirst: 100}},
	)
	_, err := f.Dial(context.Background())
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, mock.ErrDial) {
		t.Errorf("Dial() = %v, want ErrAllFailed wrapping the dial error", err)
	}
}

// textOf returns the text content of p, or "".
func textOf(p *packet.Packet) string {
	s, _ := p.TextContent()
	return s
}
