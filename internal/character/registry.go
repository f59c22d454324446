// Package character keeps the set of characters the player can talk to, the
// current selection and the conversation they share.
//
// [Registry] is the single owner of that state. It implements [live.Roster]
// so the client can resolve targets through it, and it forwards scene and
// conversation control packets into conversation updates.
package character

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/internal/live"
	"github.com/MrWong99/parley/pkg/packet"
)

var _ live.Roster = (*Registry)(nil)

// SelectionMode decides how the current character is chosen.
type SelectionMode string

const (
	// SelectManual uses the explicit selection and falls back to the sole
	// registered character.
	SelectManual SelectionMode = "manual"

	// SelectSightAngle uses only the explicit selection, which a host updates
	// from what the player is looking at.
	SelectSightAngle SelectionMode = "sight_angle"
)

// IsValid reports whether m is a known selection mode.
func (m SelectionMode) IsValid() bool {
	switch m {
	case SelectManual, SelectSightAngle:
		return true
	}
	return false
}

// Character is a registered character and the player that voices it.
type Character struct {
	BrainName string
	GivenName string

	// Player may be nil for characters that are addressable but not
	// rendered locally.
	Player *interaction.Player
}

// Conversations sends conversation control packets for the registry.
// *client.Client implements it.
type Conversations interface {
	UpdateConversation(conversationID string) bool
	NextTurn() bool
}

// Events are optional callbacks fired by the registry. They run without the
// registry lock held.
type Events struct {
	OnJoined              func(c *Character)
	OnLeft                func(c *Character)
	OnSelected            func(brainName string)
	OnDeselected          func(brainName string)
	OnConversationUpdated func(conversationID string)
}

// Option configures a [Registry].
type Option func(*Registry)

// WithEvents installs event callbacks.
func WithEvents(e Events) Option {
	return func(r *Registry) { r.events = e }
}

// WithSelectionMode sets the selection mode. The default is [SelectManual].
func WithSelectionMode(m SelectionMode) Option {
	return func(r *Registry) {
		if m.IsValid() {
			r.mode = m
		}
	}
}

// WithDirectory sets the live agent directory used to resolve agent ids.
func WithDirectory(d *live.Directory) Option {
	return func(r *Registry) { r.dir = d }
}

// WithClock overrides the clock used to schedule deferred cancels.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry owns the registered characters. All methods are safe for
// concurrent use.
type Registry struct {
	dir     *live.Directory
	now     func() time.Time
	events  Events
	matcher nameMatcher

	mu             sync.Mutex
	mode           SelectionMode
	chars          []*Character
	selected       *Character
	conversationID string
	conv           Conversations
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		dir:     live.NewDirectory(),
		now:     time.Now,
		mode:    SelectManual,
		matcher: newNameMatcher(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetConversations connects the registry to the client that sends its
// conversation updates.
func (r *Registry) SetConversations(c Conversations) {
	r.mu.Lock()
	r.conv = c
	r.mu.Unlock()
}

// Directory returns the live agent directory.
func (r *Registry) Directory() *live.Directory { return r.dir }

// ── Membership ────────────────────────────────────────────────────────────────

// Register adds c. Registering the same character twice, or a character
// without a brain name, is a no-op that returns false.
func (r *Registry) Register(c *Character) bool {
	if c == nil || c.BrainName == "" {
		return false
	}
	r.mu.Lock()
	if slices.Contains(r.chars, c) || r.getLocked(c.BrainName) != nil {
		r.mu.Unlock()
		return false
	}
	r.chars = append(r.chars, c)
	r.mu.Unlock()

	slog.Info("character: registered", "brain_name", c.BrainName, "given_name", c.GivenName)
	if r.events.OnJoined != nil {
		r.events.OnJoined(c)
	}
	return true
}

// Unregister removes c, clearing the selection first when c is selected.
func (r *Registry) Unregister(c *Character) {
	if c == nil {
		return
	}
	if r.Current() == c {
		r.Select(nil)
	}

	r.mu.Lock()
	i := slices.Index(r.chars, c)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.chars = slices.Delete(r.chars, i, i+1)
	r.mu.Unlock()

	slog.Info("character: unregistered", "brain_name", c.BrainName)
	if r.events.OnLeft != nil {
		r.events.OnLeft(c)
	}
}

// UnregisterAll removes every character and clears the selection.
func (r *Registry) UnregisterAll() {
	r.Select(nil)

	r.mu.Lock()
	left := r.chars
	r.chars = nil
	r.mu.Unlock()

	if r.events.OnLeft == nil {
		return
	}
	for _, c := range left {
		r.events.OnLeft(c)
	}
}

// Characters returns the registered characters in registration order.
func (r *Registry) Characters() []*Character {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.chars)
}

// Len returns the number of registered characters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chars)
}

// CurrentNames returns the brain names of the registered characters.
func (r *Registry) CurrentNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.chars))
	for _, c := range r.chars {
		names = append(names, c.BrainName)
	}
	return names
}

// Get returns the registered character with brainName, or nil.
func (r *Registry) Get(brainName string) *Character {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(brainName)
}

// Must be called with mu held.
func (r *Registry) getLocked(brainName string) *Character {
	for _, c := range r.chars {
		if c.BrainName == brainName {
			return c
		}
	}
	return nil
}

// Lookup returns the agent data of a registered character, with the live
// agent id filled in when the session knows it.
func (r *Registry) Lookup(brainName string) (packet.Agent, bool) {
	c := r.Get(brainName)
	if c == nil {
		return packet.Agent{}, false
	}
	return packet.Agent{
		AgentID:   r.dir.AgentID(brainName),
		BrainName: c.BrainName,
		GivenName: c.GivenName,
	}, true
}

// ByGivenName returns the first character whose given name equals name.
func (r *Registry) ByGivenName(name string) *Character {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chars {
		if c.GivenName == name {
			return c
		}
	}
	return nil
}

// Resolve finds the character whose given name best matches a spoken or
// typed name, tolerating misspellings and mis-transcriptions. It returns the
// match confidence in [0, 1].
func (r *Registry) Resolve(name string) (*Character, float64, bool) {
	chars := r.Characters()
	names := make([]string, len(chars))
	for i, c := range chars {
		names[i] = c.GivenName
	}
	i, score := r.matcher.match(name, names)
	if i < 0 {
		return nil, 0, false
	}
	return chars[i], score, true
}

// IsAnyCharacterSpeaking reports whether any registered character is
// presenting an utterance.
func (r *Registry) IsAnyCharacterSpeaking() bool {
	for _, c := range r.Characters() {
		if c.Player != nil && c.Player.Speaking() {
			return true
		}
	}
	return false
}

// ── Selection ─────────────────────────────────────────────────────────────────

// SelectionMode returns the selection mode.
func (r *Registry) SelectionMode() SelectionMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Current returns the selected character. In manual mode the sole
// registered character is selected implicitly.
func (r *Registry) Current() *Character {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == SelectSightAngle || r.selected != nil {
		return r.selected
	}
	if len(r.chars) == 1 {
		r.selected = r.chars[0]
	}
	return r.selected
}

// Select makes c the current character; nil clears the selection. The
// previous character gets a deferred cancel of its response, the new one has
// any pending cancel withdrawn.
func (r *Registry) Select(c *Character) {
	r.mu.Lock()
	old := r.selected
	if brainOf(old) == brainOf(c) {
		r.mu.Unlock()
		return
	}
	r.selected = c
	r.mu.Unlock()

	if old != nil {
		if old.Player != nil {
			old.Player.CancelResponseAfter(r.now())
		}
		if r.events.OnDeselected != nil {
			r.events.OnDeselected(old.BrainName)
		}
	}
	if c != nil {
		if c.Player != nil {
			c.Player.StopDeferredCancel()
		}
		if r.events.OnSelected != nil {
			r.events.OnSelected(c.BrainName)
		}
	}
	slog.Debug("character: selection changed", "from", brainOf(old), "to", brainOf(c))
}

func brainOf(c *Character) string {
	if c == nil {
		return ""
	}
	return c.BrainName
}

// ── Conversation ──────────────────────────────────────────────────────────────

// ConversationID returns the conversation id, starting a new conversation
// when none exists.
func (r *Registry) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conversationID == "" {
		r.conversationID = uuid.NewString()
	}
	return r.conversationID
}

// StartNewConversation switches to conversationID, or to a fresh id when it
// is empty.
func (r *Registry) StartNewConversation(conversationID string) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	r.mu.Lock()
	r.conversationID = conversationID
	r.mu.Unlock()
}

// UpdateConversation asks the service to (re)build conversationID, or the
// current conversation when it is empty, with the registered characters.
func (r *Registry) UpdateConversation(conversationID string) bool {
	r.mu.Lock()
	conv := r.conv
	r.mu.Unlock()
	if conv == nil {
		return false
	}
	if conversationID == "" {
		conversationID = r.ConversationID()
	}
	return conv.UpdateConversation(conversationID)
}

// NextTurn lets the characters continue the conversation among themselves.
// It does nothing while a character is explicitly selected or fewer than two
// characters are registered.
func (r *Registry) NextTurn() bool {
	r.mu.Lock()
	conv, selected, n := r.conv, r.selected, len(r.chars)
	r.mu.Unlock()
	if selected != nil || conv == nil || n <= 1 {
		return false
	}
	return conv.NextTurn()
}

// ReceivePacket reacts to scene and conversation control packets. A scene
// status while characters are registered re-sends the conversation, which
// restores it after a reconnect. A conversation event adopts the id the
// service assigned.
func (r *Registry) ReceivePacket(p *packet.Packet) {
	if p == nil {
		return
	}
	ctl, ok := p.Payload.(*packet.Control)
	if !ok {
		return
	}
	switch ctl.Action {
	case packet.ControlCurrentSceneStatus:
		if r.Len() > 0 {
			r.UpdateConversation("")
		}
	case packet.ControlConversationEvent:
		id := p.ID.ConversationID
		r.mu.Lock()
		r.conversationID = id
		r.mu.Unlock()
		slog.Debug("character: conversation updated", "conversation_id", id)
		if r.events.OnConversationUpdated != nil {
			r.events.OnConversationUpdated(id)
		}
	}
}
