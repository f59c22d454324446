package session

import (
	"context"
	"strings"

	"github.com/MrWong99/parley/internal/history"
	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/pkg/packet"
)

var _ interaction.Presenter = (*recordingPresenter)(nil)

// recordingPresenter forwards to an optional presenter and records every
// presented utterance that carries text.
type recordingPresenter struct {
	session   *Session
	givenName string
	next      interaction.Presenter
}

func (r *recordingPresenter) Present(brainName string, packets []*packet.Packet) {
	if r.next != nil {
		r.next.Present(brainName, packets)
	}
	if len(packets) == 0 {
		return
	}
	r.session.touch()
	r.session.metrics.RecordUtterance(context.Background(), brainName)

	text := utteranceText(packets)
	if text == "" {
		return
	}
	first := packets[0]
	r.session.recorder.Add(history.Entry{
		ConversationID: r.session.conversationID(),
		InteractionID:  first.ID.InteractionID,
		UtteranceID:    first.ID.UtteranceID,
		Speaker:        brainName,
		SpeakerName:    r.givenName,
		Text:           text,
		Timestamp:      first.Timestamp,
	})
}

func (r *recordingPresenter) PlayerPacket(brainName string, p *packet.Packet) {
	if r.next != nil {
		r.next.PlayerPacket(brainName, p)
	}
}

func (r *recordingPresenter) SetSpeaking(brainName string, speaking bool) {
	if r.next != nil {
		r.next.SetSpeaking(brainName, speaking)
	}
}

func (r *recordingPresenter) SetContinuePrompt(brainName string, visible bool) {
	if r.next != nil {
		r.next.SetContinuePrompt(brainName, visible)
	}
}

// utteranceText joins the text of the agent packets of an utterance.
func utteranceText(packets []*packet.Packet) string {
	var parts []string
	for _, p := range packets {
		if p.SourceType() != packet.SourceAgent {
			continue
		}
		if s, ok := p.TextContent(); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
