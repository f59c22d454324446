package packet

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned by [Unmarshal] for well-formed packets whose
// payload kind this package does not model (latency reports, logs, session
// responses). Callers usually drop them.
var ErrUnsupported = errors.New("packet: unsupported payload")

// ErrEmptyResult is returned by [DecodeResponse] when the envelope carries
// neither a result nor an error.
var ErrEmptyResult = errors.New("packet: response has no result")

// ServiceError is an error reported by the service inside a response
// envelope.
type ServiceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("packet: service error %d: %s", e.Code, e.Message)
}

// ── Wire types ────────────────────────────────────────────────────────────────

type wireResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ServiceError   `json:"error,omitempty"`
}

type wirePacket struct {
	PacketID  ID             `json:"packetId"`
	Routing   Routing        `json:"routing"`
	Timestamp string         `json:"timestamp,omitempty"`
	Text      *wireText      `json:"text,omitempty"`
	DataChunk *wireDataChunk `json:"dataChunk,omitempty"`
	Control   *wireControl   `json:"control,omitempty"`
	Emotion   *wireEmotion   `json:"emotion,omitempty"`
	Custom    *wireCustom    `json:"custom,omitempty"`
	Action    *wireAction    `json:"action,omitempty"`
	Mutation  *wireMutation  `json:"mutation,omitempty"`

	// Recognised but not modelled.
	SessionControlResponse json.RawMessage `json:"sessionControlResponse,omitempty"`
	LatencyReport          json.RawMessage `json:"latencyReport,omitempty"`
	Log                    json.RawMessage `json:"log,omitempty"`
}

type wireText struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

const dataChunkAudio = "AUDIO"

type wireDataChunk struct {
	Chunk []byte `json:"chunk"`
	Type  string `json:"type"`
}

type wireParticipants struct {
	Participants []Source `json:"participants"`
}

type wireControl struct {
	Action             ControlType        `json:"action"`
	Description        string             `json:"description,omitempty"`
	AudioSessionStart  *AudioSession      `json:"audioSessionStart,omitempty"`
	ConversationUpdate *wireParticipants  `json:"conversationUpdate,omitempty"`
	ConversationEvent  *ConversationEvent `json:"conversationEvent,omitempty"`
	CurrentSceneStatus *SceneStatus       `json:"currentSceneStatus,omitempty"`
}

type wireEmotion struct {
	Behavior SpaffCode `json:"behavior"`
	Strength Strength  `json:"strength"`
}

type wireParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireCustom struct {
	Name       string      `json:"name"`
	Type       CustomType  `json:"type"`
	Parameters []wireParam `json:"parameters,omitempty"`
}

type wireNarration struct {
	Content string `json:"content"`
}

type wireAction struct {
	NarratedAction wireNarration `json:"narratedAction"`
}

type wireCancel struct {
	InteractionID string   `json:"interactionId,omitempty"`
	UtteranceID   []string `json:"utteranceId,omitempty"`
}

type wireMutation struct {
	CancelResponses *wireCancel `json:"cancelResponses,omitempty"`
}

// ── Decoding ──────────────────────────────────────────────────────────────────

// DecodeResponse decodes a server frame of the form
// {"result": <packet>} or {"error": {...}}. A reported error is returned as
// a [*ServiceError].
func DecodeResponse(data []byte) (*Packet, error) {
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("packet: decode response: %w", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, resp.Error
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, ErrEmptyResult
	}
	return Unmarshal(resp.Result)
}

// Unmarshal decodes a single packet. The payload is chosen by the first
// present key in the order text, control, dataChunk (audio only), custom,
// emotion, action, mutation.
func Unmarshal(data []byte) (*Packet, error) {
	var w wirePacket
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("packet: decode: %w", err)
	}

	p := &Packet{
		ID:      w.PacketID,
		Routing: w.Routing,
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("packet: decode timestamp %q: %w", w.Timestamp, err)
		}
		p.Timestamp = ts
	}

	switch {
	case w.Text != nil:
		p.Payload = &Text{Text: w.Text.Text, Final: w.Text.Final}
	case w.Control != nil:
		p.Payload = controlFromWire(w.Control)
	case w.DataChunk != nil && w.DataChunk.Type == dataChunkAudio:
		p.Payload = &Audio{Chunk: w.DataChunk.Chunk}
	case w.Custom != nil:
		c := &Custom{Name: w.Custom.Name, Type: w.Custom.Type}
		if len(w.Custom.Parameters) > 0 {
			c.Params = make(map[string]string, len(w.Custom.Parameters))
			for _, prm := range w.Custom.Parameters {
				c.Params[prm.Name] = prm.Value
			}
		}
		p.Payload = c
	case w.Emotion != nil:
		p.Payload = &Emotion{Behavior: w.Emotion.Behavior, Strength: w.Emotion.Strength}
	case w.Action != nil:
		p.Payload = &Action{Content: w.Action.NarratedAction.Content}
	case w.Mutation != nil && w.Mutation.CancelResponses != nil:
		p.Payload = &CancelResponse{
			InteractionID: w.Mutation.CancelResponses.InteractionID,
			UtteranceIDs:  w.Mutation.CancelResponses.UtteranceID,
		}
	default:
		return p, ErrUnsupported
	}
	return p, nil
}

func controlFromWire(w *wireControl) *Control {
	c := &Control{
		Action:       w.Action,
		Description:  w.Description,
		Conversation: w.ConversationEvent,
		Scene:        w.CurrentSceneStatus,
		AudioSession: w.AudioSessionStart,
	}
	if w.ConversationUpdate != nil {
		c.Participants = w.ConversationUpdate.Participants
	}
	return c
}

// ── Encoding ──────────────────────────────────────────────────────────────────

// Marshal encodes p in the wire format accepted by the service.
func Marshal(p *Packet) ([]byte, error) {
	w := wirePacket{
		PacketID: p.ID,
		Routing:  p.Routing,
	}
	if !p.Timestamp.IsZero() {
		w.Timestamp = p.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	switch pl := p.Payload.(type) {
	case *Text:
		w.Text = &wireText{Text: pl.Text, Final: pl.Final}
	case *Audio:
		w.DataChunk = &wireDataChunk{Chunk: pl.Chunk, Type: dataChunkAudio}
	case *Control:
		wc := &wireControl{
			Action:             pl.Action,
			Description:        pl.Description,
			AudioSessionStart:  pl.AudioSession,
			ConversationEvent:  pl.Conversation,
			CurrentSceneStatus: pl.Scene,
		}
		if pl.Action == ControlConversationUpdate || len(pl.Participants) > 0 {
			wc.ConversationUpdate = &wireParticipants{Participants: pl.Participants}
		}
		w.Control = wc
	case *Emotion:
		w.Emotion = &wireEmotion{Behavior: pl.Behavior, Strength: pl.Strength}
	case *Custom:
		wc := &wireCustom{Name: pl.Name, Type: pl.Type}
		for k, v := range pl.Params {
			wc.Parameters = append(wc.Parameters, wireParam{Name: k, Value: v})
		}
		w.Custom = wc
	case *Action:
		w.Action = &wireAction{NarratedAction: wireNarration{Content: pl.Content}}
	case *CancelResponse:
		w.Mutation = &wireMutation{CancelResponses: &wireCancel{
			InteractionID: pl.InteractionID,
			UtteranceID:   pl.UtteranceIDs,
		}}
	case nil:
		return nil, fmt.Errorf("packet: marshal: %w", ErrUnsupported)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("packet: marshal: %w", err)
	}
	return data, nil
}

// EncodeResponse wraps p in a {"result": ...} envelope, the framing used by
// the service for server-to-client messages.
func EncodeResponse(p *Packet) ([]byte, error) {
	inner, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(wireResponse{Result: inner})
	if err != nil {
		return nil, fmt.Errorf("packet: encode response: %w", err)
	}
	return data, nil
}
