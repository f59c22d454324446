// Package packet defines the protocol packets exchanged with the dialogue
// service and the helpers used to route them to characters.
//
// A [Packet] carries identity ([ID]), addressing ([Routing]), a timestamp and
// exactly one [Payload]. Payload is a closed sum type: the only
// implementations are the variants declared in this package, so a type
// switch over them is exhaustive.
//
// Packets are treated as immutable once decoded. Queues and utterances share
// pointers to the same Packet value and never modify it.
package packet

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ID groups the identifiers attached to every packet.
type ID struct {
	PacketID       string `json:"packetId"`
	UtteranceID    string `json:"utteranceId"`
	InteractionID  string `json:"interactionId"`
	CorrelationID  string `json:"correlationId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// NewID returns an ID with fresh packet, utterance and interaction ids.
func NewID() ID {
	return ID{
		PacketID:      uuid.NewString(),
		UtteranceID:   uuid.NewString(),
		InteractionID: uuid.NewString(),
	}
}

// Source identifies one end of a packet's route. For agents Name is the
// brain name of the character.
type Source struct {
	Type SourceType `json:"type"`
	Name string     `json:"name,omitempty"`
}

// AgentSource returns a [Source] addressing the agent with the given brain name.
func AgentSource(brainName string) Source {
	return Source{Type: SourceAgent, Name: brainName}
}

// Routing carries the source and target actors of a packet. Targets lists
// additional recipients for multi-character conversations.
type Routing struct {
	Source  Source   `json:"source"`
	Target  Source   `json:"target"`
	Targets []Source `json:"targets,omitempty"`
}

// ToAgents builds a player-sourced routing. A single brain name targets that
// agent, several names fill Targets, and none produces a world broadcast.
func ToAgents(brainNames ...string) Routing {
	r := Routing{Source: Source{Type: SourcePlayer}}
	switch len(brainNames) {
	case 0:
		r.Target = Source{Type: SourceWorld}
	case 1:
		r.Target = AgentSource(brainNames[0])
	default:
		for _, n := range brainNames {
			r.Targets = append(r.Targets, AgentSource(n))
		}
	}
	return r
}

// Packet is a single protocol message.
type Packet struct {
	ID        ID
	Routing   Routing
	Timestamp time.Time
	Payload   Payload
}

// New returns an outbound packet with fresh ids and the current time.
func New(routing Routing, payload Payload) *Packet {
	return &Packet{
		ID:        NewID(),
		Routing:   routing,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Kind reports the payload kind, or [KindUnknown] when the payload is nil.
func (p *Packet) Kind() Kind {
	if p == nil || p.Payload == nil {
		return KindUnknown
	}
	return p.Payload.Kind()
}

// SourceType returns the type of the sending actor.
func (p *Packet) SourceType() SourceType { return p.Routing.Source.Type }

// SourceName returns the name of the sending actor.
func (p *Packet) SourceName() string { return p.Routing.Source.Name }

// TargetName returns the name of the primary target.
func (p *Packet) TargetName() string { return p.Routing.Target.Name }

// IsBroadcast reports whether the packet has no named primary target.
func (p *Packet) IsBroadcast() bool { return p.Routing.Target.Name == "" }

// IsSource reports whether name is the non-empty name of the sender.
func (p *Packet) IsSource(name string) bool {
	return name != "" && p.Routing.Source.Name == name
}

// IsTarget reports whether name is the primary target or one of the
// additional targets. An empty name never matches.
func (p *Packet) IsTarget(name string) bool {
	if name == "" {
		return false
	}
	if p.Routing.Target.Name == name {
		return true
	}
	return slices.ContainsFunc(p.Routing.Targets, func(s Source) bool { return s.Name == name })
}

// IsRelated reports whether the packet concerns the character with the given
// brain name: player packets are related to their targets, everything else to
// its sender.
func (p *Packet) IsRelated(name string) bool {
	if p.SourceType() == SourcePlayer {
		return p.IsTarget(name)
	}
	return p.IsSource(name)
}

// IsInteractionEnd reports whether p is an INTERACTION_END control packet.
func (p *Packet) IsInteractionEnd() bool {
	c, ok := p.Payload.(*Control)
	return ok && c.Action == ControlInteractionEnd
}

// IsUninterruptible reports whether p is the custom marker that makes its
// interaction uninterruptible.
func (p *Packet) IsUninterruptible() bool {
	c, ok := p.Payload.(*Custom)
	return ok && c.Message() == MessageUninterruptible
}

// TextContent returns the text-like content of p: the text of a [Text]
// payload or the narration of an [Action] payload.
func (p *Packet) TextContent() (string, bool) {
	switch pl := p.Payload.(type) {
	case *Text:
		return pl.Text, true
	case *Action:
		return pl.Content, true
	}
	return "", false
}
