// Package client maintains the session with the dialogue service.
//
// A [Client] owns the transport connection, the queue of packets waiting to
// be sent and the list of sent packets that must be replayed after a scene
// reload. It is driven by two loops: [Client.Pump], called on every session
// tick, which sends queued packets and starts (re)connection when there is
// something to send, and [Client.ReceiveLoop], which reads frames, handles
// session control packets and queues everything else for dispatch.
//
// Inside the process packets are addressed by brain name. The client maps
// brain names to the live agent ids of the current session when a packet
// leaves, and maps agent ids back when a packet arrives.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/internal/live"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/packet"
)

// ErrNotConnected is returned when a packet must be written but no
// connection is open.
var ErrNotConnected = errors.New("client: not connected")

// ErrUnknownAgent is returned when a packet addresses characters that are
// not live in the current session.
var ErrUnknownAgent = errors.New("client: no live agent for target")

var _ interaction.Canceller = (*Client)(nil)

const (
	// DefaultMaxSent bounds the list of sent packets kept for replay.
	DefaultMaxSent = 100

	// DefaultWriteTimeout bounds a single transport write.
	DefaultWriteTimeout = 5 * time.Second

	// baseErrorBackoff is how long the client stays in [StatusError] after
	// the first error. Each further error doubles it until a scene loads.
	baseErrorBackoff = 1 * time.Second
)

// Option configures a [Client].
type Option func(*Client)

// WithMetrics records packet and connection metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the clock used for the error back-off.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithScene sets the scene loaded when a connection opens.
func WithScene(name string) Option {
	return func(c *Client) { c.scene = name }
}

// WithMaxSent sets how many sent packets are kept for replay.
func WithMaxSent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxSent = n
		}
	}
}

// WithGroupChat enables conversations with several characters.
func WithGroupChat(enabled bool) Option {
	return func(c *Client) { c.groupChat = enabled }
}

// WithAutoChat lets characters in a conversation continue among themselves
// through [Client.NextTurn].
func WithAutoChat(enabled bool) Option {
	return func(c *Client) { c.autoChat = enabled }
}

// WithWriteTimeout bounds a single transport write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithReconnect tunes the reconnect monitor. Only the retry and backoff
// fields of cfg are used.
func WithReconnect(cfg ReconnectorConfig) Option {
	return func(c *Client) { c.reconnectCfg = cfg }
}

// WithStatusHandler is called after every status change.
func WithStatusHandler(fn func(Status)) Option {
	return func(c *Client) { c.onStatus = fn }
}

// WithErrorHandler is called for every error the client records.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithPacketSent is called for every packet accepted for sending, queued or
// immediate.
func WithPacketSent(fn func(*packet.Packet)) Option {
	return func(c *Client) { c.onSent = fn }
}

// Client is the connection to the dialogue service. All methods are safe for
// concurrent use.
type Client struct {
	transport    Transport
	roster       live.Roster
	dir          *live.Directory
	info         *live.Info
	reconnector  *Reconnector
	reconnectCfg ReconnectorConfig
	metrics      *observe.Metrics
	now          func() time.Time
	scene        string
	maxSent      int
	groupChat    bool
	autoChat     bool
	writeTimeout time.Duration
	onStatus     func(Status)
	onError      func(error)
	onSent       func(*packet.Packet)

	outbound Queue
	inbound  Queue
	attached chan Conn

	mu           sync.Mutex
	status       Status
	lastErr      error
	errorBackoff time.Duration
	errorUntil   time.Time
	conn         Conn
	sent         []*packet.Packet
	cancelling   bool
}

// New returns an idle client that dials through transport. roster supplies
// the registered characters and conversation id; dir receives the live
// agents of each loaded scene.
func New(transport Transport, roster live.Roster, dir *live.Directory, opts ...Option) *Client {
	c := &Client{
		transport:    transport,
		roster:       roster,
		dir:          dir,
		now:          time.Now,
		maxSent:      DefaultMaxSent,
		writeTimeout: DefaultWriteTimeout,
		attached:     make(chan Conn, 1),
		errorBackoff: baseErrorBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	c.info = live.NewInfo(roster, c.groupChat)

	cfg := c.reconnectCfg
	cfg.Transport = transport
	cfg.Metrics = c.metrics
	cfg.OnAttempt = func(int) { c.setStatus(StatusConnecting) }
	cfg.OnConnect = c.attach
	cfg.OnFailure = c.SetError
	c.reconnector = NewReconnector(cfg)
	return c
}

// Info returns who the player is currently addressing.
func (c *Client) Info() *live.Info { return c.info }

// Directory returns the live agents of the loaded scene.
func (c *Client) Directory() *live.Directory { return c.dir }

// Reconnector returns the monitor that opens connections. Its Run method
// must be running for the client to connect.
func (c *Client) Reconnector() *Reconnector { return c.reconnector }

// Inbound returns the queue of received packets waiting for dispatch.
func (c *Client) Inbound() *Queue { return &c.inbound }

// Pending returns the number of packets waiting to be sent.
func (c *Client) Pending() int { return c.outbound.Len() }

// SetGroupChat enables or disables conversations with several characters.
func (c *Client) SetGroupChat(enabled bool) { c.info.SetGroupChat(enabled) }

// SetAutoChat enables or disables [Client.NextTurn].
func (c *Client) SetAutoChat(enabled bool) {
	c.mu.Lock()
	c.autoChat = enabled
	c.mu.Unlock()
}

// IsPlayerCancelling reports whether a cancel was sent and its interaction
// has not ended yet.
func (c *Client) IsPlayerCancelling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelling
}

// ── Status ────────────────────────────────────────────────────────────────────

// Status returns the connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus changes the status and fires the status handler when it differs.
func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	old := c.status
	c.status = s
	c.mu.Unlock()

	slog.Info("client: status changed", "from", old, "to", s)
	c.metrics.RecordStatusChange(context.Background(), s.String())
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// LastError returns the most recent error, or nil.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetError records err and moves to [StatusError]. The client returns to
// [StatusIdle] after a back-off that doubles with every error until the next
// scene loads. A nil err only clears the recorded error.
func (c *Client) SetError(err error) {
	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		c.mu.Unlock()
		return
	}
	c.errorBackoff *= 2
	c.errorUntil = c.now().Add(c.errorBackoff)
	backoff := c.errorBackoff
	c.mu.Unlock()

	slog.Error("client: error", "error", err, "retry_in", backoff)
	if c.onError != nil {
		c.onError(err)
	}
	c.setStatus(StatusError)
}

// ── Pump ──────────────────────────────────────────────────────────────────────

// Pump advances the outbound side by one tick: it leaves [StatusError] once
// the back-off has elapsed and, when packets are queued, sends one packet
// while connected or starts a connection while idle.
func (c *Client) Pump(ctx context.Context) {
	c.mu.Lock()
	recovered := c.status == StatusError && !c.now().Before(c.errorUntil)
	c.mu.Unlock()
	if recovered {
		c.setStatus(StatusIdle)
	}

	if c.outbound.Len() > 0 {
		switch c.Status() {
		case StatusConnected:
			c.sendNext(ctx)
		case StatusIdle:
			c.Reconnect()
		case StatusInitialized:
			c.StartSession()
		}
	}

	c.mu.Lock()
	if len(c.sent) > c.maxSent {
		c.sent[0] = nil
		c.sent = c.sent[1:]
	}
	c.mu.Unlock()
}

// Reconnect starts a new session.
func (c *Client) Reconnect() {
	c.setStatus(StatusInitializing)
	c.StartSession()
}

// StartSession asks the reconnect monitor to open a connection unless one is
// already up.
func (c *Client) StartSession() {
	if c.Status() == StatusConnected {
		return
	}
	c.reconnector.Request()
}

// Close stops the reconnect monitor, closes the connection and returns to
// [StatusIdle].
func (c *Client) Close() error {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	err := c.reconnector.Stop()
	c.setStatus(StatusIdle)
	return err
}

// attach adopts a freshly dialled connection: it loads the scene and hands
// the connection to the receive loop.
func (c *Client) attach(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	load := packet.New(
		packet.Routing{Source: packet.Source{Type: packet.SourcePlayer}, Target: packet.Source{Type: packet.SourceWorld}},
		&packet.Control{Action: packet.ControlSessionConfiguration, Description: c.scene},
	)
	if err := c.write(context.Background(), conn, load); err != nil {
		slog.Warn("client: load scene failed", "scene", c.scene, "error", err)
	} else {
		slog.Info("client: loading scene", "scene", c.scene)
	}

	// Replace a connection the receive loop has not picked up yet.
	select {
	case <-c.attached:
	default:
	}
	c.attached <- conn
}

// registerLiveSession replaces the live agent directory with the agents that
// carry both an agent id and a brain name.
func (c *Client) registerLiveSession(agents []packet.Agent) {
	active := make([]packet.Agent, 0, len(agents))
	for _, a := range agents {
		if a.AgentID == "" || a.BrainName == "" {
			continue
		}
		active = append(active, a)
	}
	c.dir.Replace(active)
	slog.Info("client: live session registered", "agents", len(active))
}
