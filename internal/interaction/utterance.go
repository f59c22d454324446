package interaction

import (
	"slices"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/parley/pkg/packet"
)

var _ Item = (*Utterance)(nil)

// Utterance is the smallest playable unit: every packet sharing one
// utterance id, keyed by packet id.
type Utterance struct {
	id      string
	recent  time.Time
	packets map[string]*packet.Packet
}

// NewUtterance starts an utterance from its first packet. Packets without a
// packet id only set the identity and timestamp.
func NewUtterance(p *packet.Packet) *Utterance {
	u := &Utterance{
		id:      p.ID.UtteranceID,
		recent:  p.Timestamp,
		packets: make(map[string]*packet.Packet),
	}
	if p.ID.PacketID != "" {
		u.packets[p.ID.PacketID] = p
	}
	return u
}

// ID returns the utterance id.
func (u *Utterance) ID() string { return u.id }

// RecentTime returns the latest timestamp among the added packets.
func (u *Utterance) RecentTime() time.Time { return u.recent }

// Contains reports whether p carries this utterance id.
func (u *Utterance) Contains(p *packet.Packet) bool {
	return p != nil && p.ID.UtteranceID == u.id
}

// Add stores p under its packet id. A packet id seen before is overwritten.
// nil packets and packets of other utterances are ignored.
func (u *Utterance) Add(p *packet.Packet) {
	if !u.Contains(p) {
		return
	}
	if p.Timestamp.After(u.recent) {
		u.recent = p.Timestamp
	}
	u.packets[p.ID.PacketID] = p
}

// Len returns the number of stored packets.
func (u *Utterance) Len() int { return len(u.packets) }

// IsEmpty reports whether no packets are stored.
func (u *Utterance) IsEmpty() bool { return len(u.packets) == 0 }

// Cancel drops every stored packet. It is idempotent.
func (u *Utterance) Cancel() { clear(u.packets) }

// Packets returns the stored packets ordered by timestamp, ties broken by
// packet id.
func (u *Utterance) Packets() []*packet.Packet {
	out := make([]*packet.Packet, 0, len(u.packets))
	for _, p := range u.packets {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *packet.Packet) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if a.ID.PacketID < b.ID.PacketID {
			return -1
		}
		if a.ID.PacketID > b.ID.PacketID {
			return 1
		}
		return 0
	})
	return out
}

// TextSpeed returns the rune length of the first text or narrated action in
// the utterance, or 0 when there is none. It stands in for playback length
// when no audio is attached.
func (u *Utterance) TextSpeed() int {
	for _, p := range u.Packets() {
		if s, ok := p.TextContent(); ok {
			return utf8.RuneCountInString(s)
		}
	}
	return 0
}

// Text returns the first text or narrated action content.
func (u *Utterance) Text() string {
	for _, p := range u.Packets() {
		if s, ok := p.TextContent(); ok {
			return s
		}
	}
	return ""
}

// AudioClip returns the first audio chunk of the utterance.
func (u *Utterance) AudioClip() ([]byte, bool) {
	for _, p := range u.Packets() {
		if a, ok := p.Payload.(*packet.Audio); ok {
			return a.Chunk, true
		}
	}
	return nil, false
}
