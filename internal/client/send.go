package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/packet"
)

// Audio session modes sent with [Client.StartAudioTo].
const (
	MicOpen        = "OPEN_MIC"
	MicExpectEnd   = "EXPECT_AUDIO_END"
	UnderstandFull = "FULL"
	UnderstandSTT  = "SPEECH_RECOGNITION_ONLY"
)

const (
	defaultMicMode    = MicOpen
	defaultUnderstand = UnderstandFull
)

// ── Packet construction ───────────────────────────────────────────────────────

// newPacket addresses payload to the current target: the conversation in
// conversation mode, the selected character otherwise, and the world when
// neither is set.
func (c *Client) newPacket(payload packet.Payload) *packet.Packet {
	if c.info.IsConversation() {
		p := packet.New(packet.Routing{Source: packet.Source{Type: packet.SourcePlayer}}, payload)
		p.ID.ConversationID = c.info.Conversation().ID
		return p
	}
	if a, ok := c.info.Character(); ok {
		return packet.New(packet.ToAgents(a.BrainName), payload)
	}
	return packet.New(packet.ToAgents(), payload)
}

// prepare queues p, or writes it now when immediate is set. An immediate
// packet is refused unless the client is connected.
func (c *Client) prepare(p *packet.Packet, immediate bool) bool {
	if !immediate {
		c.outbound.Push(p)
	} else if c.Status() != StatusConnected {
		return false
	} else if err := c.sendPacket(context.Background(), p); err != nil {
		slog.Warn("client: immediate send failed", "packet_id", p.ID.PacketID, "error", err)
		return false
	}
	if c.onSent != nil {
		c.onSent(p)
	}
	return true
}

// ── Send API ──────────────────────────────────────────────────────────────────

// SendTextTo sends text to brainName, or to the conversation when brainName
// is empty. With resend set the packet is replayed if the session reloads
// before its interaction ends.
func (c *Client) SendTextTo(text, brainName string, immediate, resend bool) bool {
	if text == "" || !c.info.Update(brainName) {
		return false
	}
	p := c.newPacket(&packet.Text{Text: text, Final: true})
	if resend {
		p.ID.CorrelationID = uuid.NewString()
	}
	return c.prepare(p, immediate)
}

// SendNarrativeActionTo sends a narrated player action.
func (c *Client) SendNarrativeActionTo(action, brainName string, immediate, resend bool) bool {
	if action == "" || !c.info.Update(brainName) {
		return false
	}
	p := c.newPacket(&packet.Action{Content: action})
	if resend {
		p.ID.CorrelationID = uuid.NewString()
	}
	return c.prepare(p, immediate)
}

// SendTriggerTo sends the named trigger with optional parameters.
func (c *Client) SendTriggerTo(name string, params map[string]string, brainName string, immediate, resend bool) bool {
	if name == "" || !c.info.Update(brainName) {
		return false
	}
	p := c.newPacket(&packet.Custom{Name: name, Type: packet.CustomTrigger, Params: params})
	if resend {
		p.ID.CorrelationID = uuid.NewString()
	}
	return c.prepare(p, immediate)
}

// SendCancelEventTo asks the service to stop generating interactionID and,
// when set, utteranceID. The client counts as cancelling until the
// interaction ends.
func (c *Client) SendCancelEventTo(interactionID, utteranceID, brainName string, immediate bool) bool {
	if !c.info.Update(brainName) {
		return false
	}
	cancel := &packet.CancelResponse{InteractionID: interactionID}
	if utteranceID != "" {
		cancel.UtteranceIDs = []string{utteranceID}
	}
	p := c.newPacket(cancel)

	c.mu.Lock()
	c.cancelling = true
	c.mu.Unlock()

	c.prepare(p, immediate)
	return true
}

// StartAudioTo opens an audio session with brainName, or with the
// conversation when brainName is empty, closing any session with another
// target first. Empty modes default to open mic with full understanding.
func (c *Client) StartAudioTo(brainName, micMode, understanding string, immediate bool) bool {
	if c.info.IsSameSession(brainName) {
		return true
	}
	c.StopAudioTo(immediate)
	if !c.info.Update(brainName) {
		return false
	}
	if micMode == "" {
		micMode = defaultMicMode
	}
	if understanding == "" {
		understanding = defaultUnderstand
	}
	p := c.newPacket(&packet.Control{
		Action:       packet.ControlAudioSessionStart,
		AudioSession: &packet.AudioSession{Mode: micMode, UnderstandingMode: understanding},
	})
	c.info.StartAudioSession(p.ID.PacketID)
	c.prepare(p, immediate)
	slog.Info("client: audio session started", "target", c.info.Name())
	return true
}

// StopAudioTo closes the open audio session. It returns true when no
// session is open.
func (c *Client) StopAudioTo(immediate bool) bool {
	s := c.info.AudioSession()
	if !s.HasStarted() {
		return true
	}
	target := s.Target
	if s.IsConversation {
		target = ""
	}
	if !c.info.Update(target) {
		return false
	}
	p := c.newPacket(&packet.Control{Action: packet.ControlAudioSessionEnd})
	c.prepare(p, immediate)
	c.info.StopAudioSession()
	slog.Info("client: audio session stopped", "target", c.info.Name())
	return true
}

// SendAudioTo sends a chunk of microphone audio to the current audio
// session target. An immediate chunk is dropped silently while disconnected.
func (c *Client) SendAudioTo(chunk []byte, immediate bool) bool {
	if len(chunk) == 0 {
		return false
	}
	p := c.newPacket(&packet.Audio{Chunk: chunk})
	if !immediate {
		c.outbound.Push(p)
		return true
	}
	if c.Status() == StatusConnected {
		if err := c.sendPacket(context.Background(), p); err != nil {
			slog.Debug("client: audio chunk dropped", "error", err)
		}
	}
	return true
}

// NextTurn asks the next character of the conversation to speak. It only
// applies with auto chat enabled, no cancel in flight and a conversation of
// more than one character.
func (c *Client) NextTurn() bool {
	c.mu.Lock()
	ok := c.autoChat && !c.cancelling
	c.mu.Unlock()
	if !ok || !c.info.IsConversation() || len(c.info.Conversation().BrainNames) <= 1 {
		return false
	}
	return c.SendTriggerTo(packet.NextTurnTrigger, nil, "", false, true)
}

// UpdateConversation (re)builds conversationID with every registered
// character, sent immediately.
func (c *Client) UpdateConversation(conversationID string) bool {
	return c.UpdateConversationWith(conversationID, nil, true)
}

// UpdateConversationWith switches to conversation mode and announces the
// participants. Empty arguments default to the registry's conversation and
// characters. It requires group chat.
func (c *Client) UpdateConversationWith(conversationID string, brainNames []string, immediate bool) bool {
	if conversationID == "" {
		conversationID = c.roster.ConversationID()
	}
	if brainNames == nil {
		brainNames = c.roster.CurrentNames()
	}
	if len(brainNames) < 1 {
		return false
	}
	if !c.info.GroupChat() || !c.info.UpdateMultiTargets(conversationID, brainNames) {
		return false
	}
	participants := make([]packet.Source, 0, len(brainNames))
	for _, n := range brainNames {
		participants = append(participants, packet.AgentSource(n))
	}
	p := packet.New(
		packet.Routing{Source: packet.Source{Type: packet.SourcePlayer}, Targets: participants},
		&packet.Control{Action: packet.ControlConversationUpdate, Participants: participants},
	)
	p.ID.ConversationID = conversationID
	c.prepare(p, immediate)
	return true
}

// ── Outbound ──────────────────────────────────────────────────────────────────

// sendNext writes the oldest queued packet.
func (c *Client) sendNext(ctx context.Context) {
	p, ok := c.outbound.Pop()
	if !ok {
		return
	}
	ctx, span := observe.StartSpan(ctx, "client.send", trace.WithAttributes(
		attribute.String("packet.kind", p.Kind().String()),
		attribute.String("packet.id", p.ID.PacketID),
	))
	defer span.End()

	if err := c.sendPacket(ctx, p); err != nil {
		observe.FailSpan(ctx, err, "packet dropped")
		observe.Logger(ctx).Warn("client: packet dropped", "packet_id", p.ID.PacketID, "kind", p.Kind(), "error", err)
	}
}

// sendPacket resolves p's targets to live agent ids and writes it. Packets
// with a correlation id are kept for replay; the others get a fresh one on
// the wire.
func (c *Client) sendPacket(ctx context.Context, p *packet.Packet) error {
	wire, err := c.toWire(p)
	if err != nil {
		c.metrics.RecordPacketError(ctx, "route")
		return err
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if p.ID.CorrelationID == "" {
		wire.ID.CorrelationID = uuid.NewString()
	} else {
		c.sent = append(c.sent, p)
	}
	c.mu.Unlock()

	return c.write(ctx, conn, wire)
}

// write encodes p and writes it to conn within the write timeout.
func (c *Client) write(ctx context.Context, conn Conn, p *packet.Packet) error {
	data, err := packet.Marshal(p)
	if err != nil {
		c.metrics.RecordPacketError(ctx, "encode")
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	start := time.Now()
	if err := conn.Write(wctx, data); err != nil {
		c.metrics.RecordPacketError(ctx, "write")
		return fmt.Errorf("client: write: %w", err)
	}
	c.metrics.RecordPacketSent(ctx, p.Kind().String(), time.Since(start).Seconds())
	return nil
}

// toWire returns a copy of p addressed by live agent ids. Agent targets
// without a live agent are dropped; a packet left without any target fails
// unless it belongs to a conversation.
func (c *Client) toWire(p *packet.Packet) (*packet.Packet, error) {
	out := *p
	r := p.Routing
	out.Routing = packet.Routing{Source: r.Source, Target: r.Target}

	resolved := 0
	if r.Target.Type == packet.SourceAgent && r.Target.Name != "" {
		id := c.dir.AgentID(r.Target.Name)
		if id == "" {
			out.Routing.Target = packet.Source{}
		} else {
			out.Routing.Target.Name = id
			resolved++
		}
	}
	for _, t := range r.Targets {
		if t.Type != packet.SourceAgent {
			out.Routing.Targets = append(out.Routing.Targets, t)
			continue
		}
		if id := c.dir.AgentID(t.Name); id != "" {
			out.Routing.Targets = append(out.Routing.Targets, packet.AgentSource(id))
			resolved++
		}
	}
	wantsAgent := r.Target.Type == packet.SourceAgent || len(r.Targets) > 0
	if wantsAgent && resolved == 0 && p.ID.ConversationID == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, p.TargetName())
	}

	if ctl, ok := p.Payload.(*packet.Control); ok && len(ctl.Participants) > 0 {
		cp := *ctl
		cp.Participants = make([]packet.Source, 0, len(ctl.Participants))
		for _, s := range ctl.Participants {
			if id := c.dir.AgentID(s.Name); id != "" {
				cp.Participants = append(cp.Participants, packet.AgentSource(id))
			}
		}
		out.Payload = &cp
	}
	return &out, nil
}
