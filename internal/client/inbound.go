package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"

	"github.com/MrWong99/parley/pkg/packet"
)

// ReceiveLoop reads every connection handed over by the reconnect monitor
// until ctx is cancelled. It always returns nil.
func (c *Client) ReceiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case conn := <-c.attached:
			c.readFrom(ctx, conn)
		}
	}
}

// readFrom reads frames from conn until it fails.
func (c *Client) readFrom(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.handleClosed(conn, err)
			return
		}
		c.HandleFrame(ctx, data)
	}
}

// handleClosed reacts to the end of conn. A clean close returns the client
// to idle; anything else is recorded as an error first.
func (c *Client) handleClosed(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Superseded by a newer connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	slog.Info("client: connection closed", "error", err)
	if !isDisconnect(err) {
		c.SetError(fmt.Errorf("client: connection lost: %w", err))
	}
	if c.Status() != StatusError {
		c.setStatus(StatusIdle)
	}
}

// isDisconnect reports whether err is an ordinary end of the connection
// rather than a failure worth reporting.
func isDisconnect(err error) bool {
	return isNormalClose(err) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// HandleFrame decodes one server frame. Session control packets are handled
// here; every other packet is queued on [Client.Inbound] with its agent ids
// mapped back to brain names.
func (c *Client) HandleFrame(ctx context.Context, data []byte) {
	p, err := packet.DecodeResponse(data)
	var svcErr *packet.ServiceError
	switch {
	case errors.As(err, &svcErr):
		c.SetError(svcErr)
		return
	case errors.Is(err, packet.ErrUnsupported):
		c.metrics.RecordPacketError(ctx, "decode")
		slog.Debug("client: unsupported packet skipped")
		return
	case err != nil:
		c.metrics.RecordPacketError(ctx, "decode")
		c.SetError(fmt.Errorf("client: bad frame: %w", err))
		return
	}
	c.metrics.RecordPacketReceived(ctx, p.Kind().String())

	if !c.handleRaw(p) {
		return
	}
	c.inbound.Push(c.fromWire(p))
}

// handleRaw applies session control packets and reports whether p should
// be dispatched.
func (c *Client) handleRaw(p *packet.Packet) bool {
	ctl, ok := p.Payload.(*packet.Control)
	if !ok {
		return true
	}
	switch ctl.Action {
	case packet.ControlWarning:
		slog.Warn("client: service warning", "description", ctl.Description)
		return false
	case packet.ControlInteractionEnd:
		c.finishInteraction(p.ID.CorrelationID)
	case packet.ControlCurrentSceneStatus:
		if ctl.Scene == nil {
			slog.Error("client: load scene failed", "description", ctl.Description)
			return true
		}
		c.registerLiveSession(ctl.Scene.Agents)
		c.setStatus(StatusConnected)

		c.mu.Lock()
		resend := c.sent
		c.sent = nil
		c.errorBackoff = baseErrorBackoff
		c.mu.Unlock()
		for _, sp := range resend {
			c.outbound.Push(sp)
		}
		if len(resend) > 0 {
			slog.Info("client: replaying sent packets", "count", len(resend))
		}
	}
	return true
}

// finishInteraction forgets the sent packets of an ended interaction and
// ends any pending cancel.
func (c *Client) finishInteraction(correlationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if correlationID != "" {
		c.sent = slices.DeleteFunc(c.sent, func(p *packet.Packet) bool {
			return p.ID.CorrelationID == correlationID
		})
	}
	c.cancelling = false
}

// fromWire returns p with live agent ids replaced by brain names. Unknown
// ids are kept as they are.
func (c *Client) fromWire(p *packet.Packet) *packet.Packet {
	out := *p
	out.Routing.Source = c.brainSource(p.Routing.Source)
	out.Routing.Target = c.brainSource(p.Routing.Target)
	if len(p.Routing.Targets) > 0 {
		out.Routing.Targets = make([]packet.Source, len(p.Routing.Targets))
		for i, t := range p.Routing.Targets {
			out.Routing.Targets[i] = c.brainSource(t)
		}
	}

	if ctl, ok := p.Payload.(*packet.Control); ok && (len(ctl.Participants) > 0 || ctl.Conversation != nil) {
		cp := *ctl
		if len(ctl.Participants) > 0 {
			cp.Participants = c.brainSources(ctl.Participants)
		}
		if ctl.Conversation != nil {
			ev := *ctl.Conversation
			ev.Participants = c.brainSources(ev.Participants)
			cp.Conversation = &ev
		}
		out.Payload = &cp
	}
	return &out
}

func (c *Client) brainSource(s packet.Source) packet.Source {
	if s.Type != packet.SourceAgent {
		return s
	}
	if brain, ok := c.dir.BrainName(s.Name); ok {
		s.Name = brain
	}
	return s
}

func (c *Client) brainSources(in []packet.Source) []packet.Source {
	if in == nil {
		return nil
	}
	out := make([]packet.Source, len(in))
	for i, s := range in {
		out[i] = c.brainSource(s)
	}
	return out
}
