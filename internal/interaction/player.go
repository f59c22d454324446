package interaction

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/packet"
)

// Defaults applied by [NewPlayer].
const (
	DefaultMaxItemCount        = 100
	DefaultTextSpeedMultiplier = 0.02
	DefaultCancelDelay         = time.Second

	// fadedVolume is the sink volume below which a faded-out character is
	// considered silent.
	fadedVolume = 0.1
)

// State is the playback state of a [Player].
type State int

const (
	// StateIdle means there is no current interaction.
	StateIdle State = iota
	// StateLoading means an interaction is selected but nothing is playing.
	StateLoading
	// StatePlaying means an utterance is being presented.
	StatePlaying
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Presenter renders what a character says and does. Its methods are called
// with the player's lock held and must not call back into the [Player].
type Presenter interface {
	// Present is called when an utterance starts playing.
	Present(brainName string, packets []*packet.Packet)

	// PlayerPacket receives player-originated packets addressed to the
	// character.
	PlayerPacket(brainName string, p *packet.Packet)

	// SetSpeaking reports changes of the speaking flag.
	SetSpeaking(brainName string, speaking bool)

	// SetContinuePrompt shows or hides the "press to continue" prompt.
	SetContinuePrompt(brainName string, visible bool)
}

// Canceller notifies the service that a response should be cancelled. It
// returns false when the cancel could not be sent.
type Canceller interface {
	SendCancelEventTo(interactionID, utteranceID, brainName string, immediate bool) bool
}

// AudioSink plays synthesized speech for one character.
type AudioSink interface {
	// Play starts playback of clip, replacing whatever was playing.
	Play(clip []byte)

	// Stop halts playback and drops the clip.
	Stop()

	// IsPlaying reports whether a clip is still audible.
	IsPlaying() bool

	// FadeOut starts lowering the volume towards silence.
	FadeOut()

	// RestoreVolume undoes a FadeOut.
	RestoreVolume()

	// Volume returns the current output volume in [0, 1].
	Volume() float64
}

// Option configures a [Player].
type Option func(*Player)

// WithAutoProceed controls whether agent utterances advance without the
// player pressing continue. The default is true.
func WithAutoProceed(auto bool) Option {
	return func(p *Player) { p.autoProceed = auto }
}

// WithMaxItemCount caps the processed and cancelled interaction queues.
func WithMaxItemCount(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.maxItems = n
		}
	}
}

// WithTextSpeedMultiplier sets the seconds per character used to pace
// utterances without audio.
func WithTextSpeedMultiplier(m float64) Option {
	return func(p *Player) {
		if m >= 0 {
			p.textSpeed = m
		}
	}
}

// WithCancelDelay sets the delay used by [Player.CancelResponseAfter] when
// no audio sink is attached.
func WithCancelDelay(d time.Duration) Option {
	return func(p *Player) { p.cancelDelay = d }
}

// WithPresenter sets the presenter. Without one, presentation is a no-op.
func WithPresenter(pr Presenter) Option {
	return func(p *Player) { p.presenter = pr }
}

// WithAudioSink attaches an audio sink. Utterances carrying audio are then
// paced by the sink instead of by their text length.
func WithAudioSink(s AudioSink) Option {
	return func(p *Player) { p.sink = s }
}

// Player drains the interactions of one character, one utterance at a time.
// It is advanced by [Player.Tick]; nothing happens between ticks.
//
// All methods are safe for concurrent use.
type Player struct {
	brainName   string
	canceller   Canceller
	presenter   Presenter
	sink        AudioSink
	autoProceed bool
	maxItems    int
	textSpeed   float64
	cancelDelay time.Duration

	mu             sync.Mutex
	current        *Interaction
	prepared       *IndexQueue[*Interaction]
	processed      *IndexQueue[*Interaction]
	cancelled      *IndexQueue[*Interaction]
	lastFromPlayer bool
	continueHeld   bool
	continueOnce   bool
	speaking       bool
	promptVisible  bool

	// playback of the utterance currently presented
	playing   *Utterance
	playingOn *Interaction
	playAudio bool
	playUntil time.Time
	lastClip  []byte
	// draining is set while the in-flight utterance of a soft-cancelled
	// interaction plays out.
	draining bool

	// deferred cancel
	cancelPending bool
	cancelAt      time.Time
	cancelOnFade  bool
}

// NewPlayer returns a player for the character with the given brain name.
// canceller may be nil, in which case cancels are only applied locally.
func NewPlayer(brainName string, canceller Canceller, opts ...Option) *Player {
	p := &Player{
		brainName:   brainName,
		canceller:   canceller,
		presenter:   nopPresenter{},
		autoProceed: true,
		maxItems:    DefaultMaxItemCount,
		textSpeed:   DefaultTextSpeedMultiplier,
		cancelDelay: DefaultCancelDelay,
		prepared:    NewIndexQueue(NewInteraction),
		processed:   NewIndexQueue(NewInteraction),
		cancelled:   NewIndexQueue(NewInteraction),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// BrainName returns the brain name of the character this player drives.
func (p *Player) BrainName() string { return p.brainName }

// ── Tick ──────────────────────────────────────────────────────────────────────

// Tick advances playback to now.
func (p *Player) Tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.runDeferredCancel(now)
	p.trim()

	if p.playing != nil {
		if !p.playbackDone(now) {
			return
		}
		p.finishPlayback()
	}

	if !p.proceed() {
		p.setPrompt(true)
		return
	}
	p.setPrompt(false)

	if p.current == nil {
		if it, ok := p.prepared.Dequeue(true); ok {
			p.current = it
		}
	}
	if p.current != nil && p.current.Current() == nil {
		if p.current.Dequeue() == nil {
			p.processed.Enqueue(p.current)
			p.current = nil
		}
	}
	if p.current != nil && p.current.Current() != nil {
		p.play(now)
		return
	}
	p.setSpeaking(false)
}

// proceed reports whether the next utterance may start.
//
// Must be called with mu held.
func (p *Player) proceed() bool {
	return p.autoProceed || p.lastFromPlayer || p.continueHeld || p.continueOnce ||
		p.current == nil || p.current.IsEmpty()
}

// trim drops one interaction from the front of the processed and cancelled
// queues when they exceed the cap.
//
// Must be called with mu held.
func (p *Player) trim() {
	if p.cancelled.Len() > p.maxItems {
		p.cancelled.Dequeue(false)
	}
	if p.processed.Len() > p.maxItems {
		p.processed.Dequeue(false)
	}
}

// play presents the current utterance and starts pacing it.
//
// Must be called with mu held.
func (p *Player) play(now time.Time) {
	u := p.current.Current()
	p.playing = u
	p.playingOn = p.current
	p.playAudio = false
	p.continueOnce = false

	if clip, ok := u.AudioClip(); ok && p.sink != nil {
		if !bytes.Equal(clip, p.lastClip) || !p.sink.IsPlaying() {
			p.lastClip = clip
			p.sink.Play(clip)
		}
		p.playAudio = true
	} else {
		wait := time.Duration(float64(u.TextSpeed()) * p.textSpeed * float64(time.Second))
		p.playUntil = now.Add(wait)
	}

	p.setSpeaking(true)
	p.presenter.Present(p.brainName, u.Packets())
	slog.Debug("interaction: playing utterance",
		"character", p.brainName,
		"interaction_id", p.current.ID(),
		"utterance_id", u.ID(),
		"audio", p.playAudio,
	)
}

// playbackDone reports whether the presented utterance has finished. Skips
// and hard cancels end playback immediately.
//
// Must be called with mu held.
func (p *Player) playbackDone(now time.Time) bool {
	if p.draining {
		if p.playingOn.Current() != p.playing {
			return true
		}
	} else if p.current != p.playingOn || p.current == nil || p.current.Current() != p.playing {
		return true
	}
	if p.playAudio {
		return !p.sink.IsPlaying()
	}
	return !now.Before(p.playUntil)
}

// finishPlayback records the presented utterance as processed.
//
// Must be called with mu held.
func (p *Player) finishPlayback() {
	if p.draining || p.current == p.playingOn {
		if p.playingOn != nil && p.playingOn.Current() == p.playing {
			p.playingOn.Processed()
		}
	}
	if p.playAudio {
		p.lastClip = nil
	}
	p.clearPlayback()
}

// Must be called with mu held.
func (p *Player) clearPlayback() {
	p.playing = nil
	p.playingOn = nil
	p.playAudio = false
	p.draining = false
}

// abortDrain ends a soft-cancelled utterance before its pacing is over. A
// hard abort files it with the cancelled utterances.
//
// Must be called with mu held.
func (p *Player) abortDrain(hard bool) {
	if !p.draining {
		return
	}
	if p.playingOn.Current() == p.playing {
		if hard {
			p.playingOn.Cancel(true)
		} else {
			p.playingOn.Skip()
		}
	}
	if p.sink != nil {
		p.sink.Stop()
		p.lastClip = nil
	}
	p.clearPlayback()
}

func (p *Player) setSpeaking(v bool) {
	if p.speaking == v {
		return
	}
	p.speaking = v
	p.presenter.SetSpeaking(p.brainName, v)
}

func (p *Player) setPrompt(v bool) {
	if p.promptVisible == v {
		return
	}
	p.promptVisible = v
	p.presenter.SetContinuePrompt(p.brainName, v)
}

// ── Cancellation ──────────────────────────────────────────────────────────────

// CancelResponse interrupts the current interaction. A hard cancel also drops
// the utterance being played and sends the cancel event at once. A soft
// cancel only drops what has not started: the utterance being played keeps
// its pacing and the next interaction waits for it, and the cancel event is
// queued. It returns false when there is nothing to cancel or the
// interaction is uninterruptible. A hard cancel also cuts short an
// utterance still playing out from an earlier soft cancel.
func (p *Player) CancelResponse(hard bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelResponse(hard)
}

// Must be called with mu held.
func (p *Player) cancelResponse(hard bool) bool {
	if hard {
		p.abortDrain(true)
	}
	if p.brainName == "" || p.current == nil || !p.current.Interruptible() {
		return false
	}
	it := p.current
	var utteranceID string
	if u := it.Current(); u != nil {
		utteranceID = u.ID()
	}
	if p.canceller != nil && !p.canceller.SendCancelEventTo(it.ID(), utteranceID, p.brainName, hard) {
		slog.Warn("interaction: cancel event not sent",
			"character", p.brainName,
			"interaction_id", it.ID(),
		)
	}
	inFlight := p.playing != nil && p.playingOn == it && it.Current() == p.playing
	it.Cancel(hard)
	p.prepared.Enqueue(it)
	p.prepared.PourTo(p.cancelled)
	p.current = nil

	if !hard && inFlight {
		p.draining = true
	} else if p.sink != nil {
		p.sink.Stop()
		p.lastClip = nil
	}
	slog.Info("interaction: response cancelled",
		"character", p.brainName,
		"interaction_id", it.ID(),
		"hard", hard,
	)
	return true
}

// CancelResponseAfter schedules a hard cancel. With an audio sink the sink is
// faded out and the cancel runs once it is quiet; otherwise it runs after the
// configured delay. A pending cancel is not rescheduled.
func (p *Player) CancelResponseAfter(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelPending {
		return
	}
	p.cancelPending = true
	if p.sink != nil {
		p.cancelOnFade = true
		p.sink.FadeOut()
		return
	}
	p.cancelAt = now.Add(p.cancelDelay)
}

// StopDeferredCancel aborts a cancel scheduled by [Player.CancelResponseAfter]
// and restores the sink volume.
func (p *Player) StopDeferredCancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cancelPending {
		return
	}
	p.cancelPending = false
	p.cancelOnFade = false
	if p.sink != nil {
		p.sink.RestoreVolume()
	}
}

// CancelPending reports whether a deferred cancel is scheduled.
func (p *Player) CancelPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelPending
}

// Must be called with mu held.
func (p *Player) runDeferredCancel(now time.Time) {
	if !p.cancelPending {
		return
	}
	if p.cancelOnFade {
		if p.sink.Volume() > fadedVolume {
			return
		}
	} else if now.Before(p.cancelAt) {
		return
	}
	p.cancelPending = false
	p.cancelOnFade = false
	p.cancelResponse(true)
	if p.sink != nil {
		p.sink.RestoreVolume()
	}
}

// ── Input ─────────────────────────────────────────────────────────────────────

// Skip abandons the utterance being played.
func (p *Player) Skip() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.abortDrain(false)
	if p.current != nil && p.current.Current() != nil {
		p.current.Skip()
	}
	if p.sink != nil {
		p.sink.Stop()
		p.lastClip = nil
	}
}

// Continue lets the next utterance start once, as if continue had been
// pressed for as long as it takes the player to reach it.
func (p *Player) Continue() {
	p.mu.Lock()
	p.continueOnce = true
	p.mu.Unlock()
}

// PressContinue holds the continue input until [Player.ReleaseContinue].
func (p *Player) PressContinue() {
	p.mu.Lock()
	p.continueHeld = true
	p.mu.Unlock()
}

// ReleaseContinue releases the continue input.
func (p *Player) ReleaseContinue() {
	p.mu.Lock()
	p.continueHeld = false
	p.mu.Unlock()
}

// ReceivePacket routes a packet to this character. Player packets addressed
// to the character go to the presenter; agent packets sent by or to the
// character are queued for playback. Audio is only queued by its speaker.
func (p *Player) ReceivePacket(pkt *packet.Packet) {
	if pkt == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch pkt.SourceType() {
	case packet.SourcePlayer:
		if !pkt.IsBroadcast() && !pkt.IsTarget(p.brainName) {
			return
		}
		if pkt.Kind() != packet.KindAudio {
			p.lastFromPlayer = true
		}
		p.presenter.PlayerPacket(p.brainName, pkt)
	case packet.SourceAgent:
		if !pkt.IsSource(p.brainName) && !pkt.IsTarget(p.brainName) {
			return
		}
		if pkt.Kind() == packet.KindAudio && !pkt.IsSource(p.brainName) {
			return
		}
		p.lastFromPlayer = false
		p.handleAgentPacket(pkt)
	}
}

// HandleAgentPacket queues an agent packet without routing checks.
func (p *Player) HandleAgentPacket(pkt *packet.Packet) {
	if pkt == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handleAgentPacket(pkt)
}

// Must be called with mu held.
func (p *Player) handleAgentPacket(pkt *packet.Packet) {
	switch {
	case p.cancelled.Contains(pkt):
		p.cancelled.Add(pkt)
	case p.current != nil && p.current.Contains(pkt):
		p.current.Add(pkt)
	default:
		p.prepared.Add(pkt)
	}
}

// ── Observers ─────────────────────────────────────────────────────────────────

// Speaking reports whether the character is presenting an utterance.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Current returns the interaction being played, or nil.
func (p *Player) Current() *Interaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.current == nil && p.draining:
		return StatePlaying
	case p.current == nil:
		return StateIdle
	case p.current.Current() == nil:
		return StateLoading
	default:
		return StatePlaying
	}
}

// Pending returns the number of interactions waiting to be played.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepared.Len()
}

// ProcessedCount returns the number of retained played interactions.
func (p *Player) ProcessedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed.Len()
}

// CancelledCount returns the number of retained cancelled interactions.
func (p *Player) CancelledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled.Len()
}

type nopPresenter struct{}

func (nopPresenter) Present(string, []*packet.Packet) {}

func (nopPresenter) PlayerPacket(string, *packet.Packet) {}

func (nopPresenter) SetSpeaking(string, bool) {}

func (nopPresenter) SetContinuePrompt(string, bool) {}
