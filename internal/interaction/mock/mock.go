// Package mock provides test doubles for the interaction.Presenter,
// interaction.Canceller and interaction.AudioSink interfaces.
//
// All types are safe for concurrent use and record every call so tests can
// assert on what the player did.
package mock

import (
	"sync"

	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/pkg/packet"
)

var (
	_ interaction.Presenter = (*Presenter)(nil)
	_ interaction.Canceller = (*Canceller)(nil)
	_ interaction.AudioSink = (*AudioSink)(nil)
)

// PresentCall records a single invocation of Present.
type PresentCall struct {
	BrainName string
	Packets   []*packet.Packet
}

// Presenter is a mock implementation of interaction.Presenter.
type Presenter struct {
	mu sync.Mutex

	// PresentCalls records every call to Present in order.
	PresentCalls []PresentCall

	// PlayerPackets records every packet passed to PlayerPacket.
	PlayerPackets []*packet.Packet

	// Speaking is the last value passed to SetSpeaking.
	Speaking bool

	// SpeakingChanges counts SetSpeaking calls.
	SpeakingChanges int

	// PromptVisible is the last value passed to SetContinuePrompt.
	PromptVisible bool
}

// Present records the call.
func (m *Presenter) Present(brainName string, packets []*packet.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PresentCalls = append(m.PresentCalls, PresentCall{BrainName: brainName, Packets: packets})
}

// PlayerPacket records the packet.
func (m *Presenter) PlayerPacket(_ string, p *packet.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayerPackets = append(m.PlayerPackets, p)
}

// SetSpeaking records the flag.
func (m *Presenter) SetSpeaking(_ string, speaking bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Speaking = speaking
	m.SpeakingChanges++
}

// SetContinuePrompt records the prompt visibility.
func (m *Presenter) SetContinuePrompt(_ string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PromptVisible = visible
}

// Presented returns the number of Present calls.
func (m *Presenter) Presented() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PresentCalls)
}

// LastPresented returns the packets of the most recent Present call, or nil.
func (m *Presenter) LastPresented() []*packet.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PresentCalls) == 0 {
		return nil
	}
	return m.PresentCalls[len(m.PresentCalls)-1].Packets
}

// CancelCall records a single invocation of SendCancelEventTo.
type CancelCall struct {
	InteractionID string
	UtteranceID   string
	BrainName     string
	Immediate     bool
}

// Canceller is a mock implementation of interaction.Canceller.
type Canceller struct {
	mu sync.Mutex

	// Fail makes SendCancelEventTo return false.
	Fail bool

	// Calls records every call in order.
	Calls []CancelCall
}

// SendCancelEventTo records the call and returns !Fail.
func (m *Canceller) SendCancelEventTo(interactionID, utteranceID, brainName string, immediate bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, CancelCall{
		InteractionID: interactionID,
		UtteranceID:   utteranceID,
		BrainName:     brainName,
		Immediate:     immediate,
	})
	return !m.Fail
}

// CallCount returns the number of recorded calls.
func (m *Canceller) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// AudioSink is a mock implementation of interaction.AudioSink. Playback lasts
// until Finish or Stop is called; FadeOut drops the volume to zero at once.
type AudioSink struct {
	mu sync.Mutex

	playing bool
	faded   bool

	// Played records every clip passed to Play.
	Played [][]byte

	// Stops counts Stop calls.
	Stops int
}

// Play records the clip and starts playing.
func (m *AudioSink) Play(clip []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Played = append(m.Played, clip)
	m.playing = true
}

// Stop ends playback.
func (m *AudioSink) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.Stops++
}

// Finish simulates the clip reaching its end.
func (m *AudioSink) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
}

// IsPlaying reports whether a clip is playing.
func (m *AudioSink) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// FadeOut mutes the sink.
func (m *AudioSink) FadeOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faded = true
}

// RestoreVolume unmutes the sink.
func (m *AudioSink) RestoreVolume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faded = false
}

// Volume returns 0 after FadeOut and 1 otherwise.
func (m *AudioSink) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faded {
		return 0
	}
	return 1
}

// PlayCount returns the number of Play calls.
func (m *AudioSink) PlayCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Played)
}
