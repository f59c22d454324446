// Package session ties the dialogue client, the character registry and the
// history recorder into one running session.
//
// A [Session] is the explicit context object every component is reached
// through. [Session.Run] drives it: a tick loop dispatches inbound packets
// to the registry and the character players, advances playback and pumps
// the client, while the transport receive loop, the reconnect monitor and
// the history writer run alongside in the same errgroup.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/character"
	"github.com/MrWong99/parley/internal/client"
	"github.com/MrWong99/parley/internal/history"
	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/internal/observe"
)

// DefaultTickInterval is the period of the session tick.
const DefaultTickInterval = 100 * time.Millisecond

// Option configures a [Session].
type Option func(*Session)

// WithTickInterval sets the tick period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithRecorder records played utterances and player lines.
func WithRecorder(r *history.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithMetrics records tick and session metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithPresenter sets the presenter wrapped by every character created with
// [Session.AddCharacter].
func WithPresenter(p interaction.Presenter) Option {
	return func(s *Session) { s.presenter = p }
}

// WithPlayerOptions sets the options applied to every character player.
func WithPlayerOptions(opts ...interaction.Option) Option {
	return func(s *Session) { s.playerOpts = opts }
}

// WithAutoTurn lets characters of a conversation keep talking among
// themselves once nobody has spoken for delay. Zero disables it.
func WithAutoTurn(delay time.Duration) Option {
	return func(s *Session) { s.autoTurn = delay }
}

// WithClock overrides the clock passed to the players.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is a running conversation with the dialogue service.
type Session struct {
	client    *client.Client
	registry  *character.Registry
	recorder  *history.Recorder
	metrics   *observe.Metrics
	presenter interaction.Presenter

	playerOpts   []interaction.Option
	tickInterval time.Duration
	autoTurn     time.Duration
	now          func() time.Time

	mu         sync.Mutex
	lastActive time.Time
}

// New returns a session over c and reg. The registry sends its
// conversation updates through c.
func New(c *client.Client, reg *character.Registry, opts ...Option) *Session {
	s := &Session{
		client:       c,
		registry:     reg,
		tickInterval: DefaultTickInterval,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	reg.SetConversations(c)
	return s
}

// Client returns the dialogue client.
func (s *Session) Client() *client.Client { return s.client }

// Registry returns the character registry.
func (s *Session) Registry() *character.Registry { return s.registry }

// AddCharacter creates a player for brainName and registers it. The
// character's utterances are recorded to history.
func (s *Session) AddCharacter(brainName, givenName string) (*character.Character, error) {
	rp := &recordingPresenter{session: s, givenName: givenName}
	if s.presenter != nil {
		rp.next = s.presenter
	}
	s.mu.Lock()
	opts := append([]interaction.Option{}, s.playerOpts...)
	s.mu.Unlock()
	opts = append(opts, interaction.WithPresenter(rp))

	c := &character.Character{
		BrainName: brainName,
		GivenName: givenName,
		Player:    interaction.NewPlayer(brainName, s.client, opts...),
	}
	if !s.registry.Register(c) {
		return nil, fmt.Errorf("session: character %q already registered", brainName)
	}
	return c, nil
}

// SetPlayerOptions replaces the player options. Characters already
// registered keep the options they were created with.
func (s *Session) SetPlayerOptions(opts ...interaction.Option) {
	s.mu.Lock()
	s.playerOpts = opts
	s.mu.Unlock()
}

// RemoveCharacter unregisters the character with brainName and cancels
// whatever it was saying. It reports whether the character was registered.
func (s *Session) RemoveCharacter(brainName string) bool {
	c := s.registry.Get(brainName)
	if c == nil {
		return false
	}
	if c.Player != nil {
		c.Player.CancelResponse(true)
	}
	s.registry.Unregister(c)
	return true
}

// ── Run ───────────────────────────────────────────────────────────────────────

// Run starts the session and blocks until ctx is cancelled. The connection
// is closed on return.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.client.Reconnector().Run(gctx) })
	g.Go(func() error { return s.client.ReceiveLoop(gctx) })
	if s.recorder != nil {
		g.Go(func() error { return s.recorder.Run(gctx) })
	}
	g.Go(func() error { return s.tickLoop(gctx) })

	slog.Info("session: started",
		"characters", s.registry.Len(),
		"tick_interval", s.tickInterval,
	)
	s.client.StartSession()

	err := g.Wait()
	if cerr := s.client.Close(); cerr != nil {
		slog.Warn("session: close client", "error", cerr)
	}
	slog.Info("session: stopped")
	return err
}

func (s *Session) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one step of the session: inbound packets are dispatched, every
// player advances and the client sends or connects.
func (s *Session) Tick(ctx context.Context) {
	start := time.Now()
	now := s.now()
	chars := s.registry.Characters()

	for _, p := range s.client.Inbound().Drain() {
		s.registry.ReceivePacket(p)
		for _, c := range chars {
			if c.Player != nil {
				c.Player.ReceivePacket(p)
			}
		}
	}

	active := 0
	speaking := false
	for _, c := range chars {
		if c.Player == nil {
			continue
		}
		c.Player.Tick(now)
		if c.Player.Current() != nil {
			active++
		}
		active += c.Player.Pending()
		speaking = speaking || c.Player.Speaking()
	}
	s.nextTurn(now, speaking || active > 0)

	s.client.Pump(ctx)

	s.metrics.RecordSessionGauges(ctx, active, len(chars), s.client.Pending())
	s.metrics.RecordTick(ctx, time.Since(start).Seconds())
}

// nextTurn asks for the next conversation turn once the characters have
// been quiet for the auto turn delay.
func (s *Session) nextTurn(now time.Time, busy bool) {
	if s.autoTurn <= 0 {
		return
	}
	s.mu.Lock()
	if busy || s.lastActive.IsZero() {
		s.lastActive = now
		s.mu.Unlock()
		return
	}
	due := now.Sub(s.lastActive) >= s.autoTurn
	if due {
		s.lastActive = now
	}
	s.mu.Unlock()

	if due && s.registry.NextTurn() {
		slog.Debug("session: next turn requested")
	}
}

// ── Player input ──────────────────────────────────────────────────────────────

// Say sends a player line to the selected character, or to the
// conversation when no character is selected, and records it.
func (s *Session) Say(text string) bool {
	brain := ""
	if c := s.registry.Current(); c != nil {
		brain = c.BrainName
	}
	if !s.client.SendTextTo(text, brain, false, true) {
		return false
	}
	s.touch()
	s.recorder.Add(history.Entry{
		ConversationID: s.conversationID(),
		Speaker:        history.SpeakerPlayer,
		SpeakerName:    "Player",
		Text:           text,
		FromPlayer:     true,
	})
	return true
}

// Trigger sends a named trigger to the selected character or the
// conversation.
func (s *Session) Trigger(name string, params map[string]string) bool {
	brain := ""
	if c := s.registry.Current(); c != nil {
		brain = c.BrainName
	}
	return s.client.SendTriggerTo(name, params, brain, false, true)
}

// Select makes the character matching name current. name may be a brain
// name, a given name or a misspelling close to one.
func (s *Session) Select(name string) (*character.Character, bool) {
	c := s.registry.Get(name)
	if c == nil {
		c = s.registry.ByGivenName(name)
	}
	if c == nil {
		var ok bool
		if c, _, ok = s.registry.Resolve(name); !ok {
			return nil, false
		}
	}
	s.registry.Select(c)
	return c, true
}

// Deselect clears the selection so that lines go to the conversation.
func (s *Session) Deselect() { s.registry.Select(nil) }

// CancelResponse cancels what the selected character, or every character
// when none is selected, is saying.
func (s *Session) CancelResponse(ctx context.Context, hard bool) int {
	targets := s.registry.Characters()
	if c := s.registry.Current(); c != nil {
		targets = []*character.Character{c}
	}
	n := 0
	for _, c := range targets {
		if c.Player != nil && c.Player.CancelResponse(hard) {
			s.metrics.RecordCancel(ctx, c.BrainName, hard)
			n++
		}
	}
	return n
}

// Continue advances every character waiting for the player.
func (s *Session) Continue() {
	for _, c := range s.registry.Characters() {
		if c.Player != nil {
			c.Player.Continue()
		}
	}
}

// conversationID names the history log of the current target.
func (s *Session) conversationID() string {
	info := s.client.Info()
	if info.IsConversation() {
		return info.Conversation().ID
	}
	if a, ok := info.Character(); ok {
		return a.BrainName
	}
	return ""
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}
