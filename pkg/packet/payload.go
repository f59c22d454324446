package packet

// Kind enumerates the payload variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindAudio
	KindControl
	KindEmotion
	KindCustom
	KindAction
	KindCancelResponse
)

var kindNames = []string{"unknown", "text", "audio", "control", "emotion", "custom", "action", "cancel_response"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Payload is the kind-specific content of a [Packet]. The interface is
// sealed; see the package documentation.
type Payload interface {
	Kind() Kind
	sealed()
}

var (
	_ Payload = (*Text)(nil)
	_ Payload = (*Audio)(nil)
	_ Payload = (*Control)(nil)
	_ Payload = (*Emotion)(nil)
	_ Payload = (*Custom)(nil)
	_ Payload = (*Action)(nil)
	_ Payload = (*CancelResponse)(nil)
)

// Text is a fragment of spoken or typed text.
type Text struct {
	Text  string
	Final bool
}

func (*Text) Kind() Kind { return KindText }
func (*Text) sealed()    {}

// Audio is a chunk of synthesised or captured audio.
type Audio struct {
	Chunk []byte
}

func (*Audio) Kind() Kind { return KindAudio }
func (*Audio) sealed()    {}

// Control carries a session or interaction control event. Only the fields
// matching Action are set.
type Control struct {
	Action       ControlType
	Description  string
	Participants []Source
	Conversation *ConversationEvent
	Scene        *SceneStatus
	AudioSession *AudioSession
}

func (*Control) Kind() Kind { return KindControl }
func (*Control) sealed()    {}

// ConversationEvent is the payload of a CONVERSATION_EVENT control.
type ConversationEvent struct {
	Type         ConversationEventType `json:"eventType"`
	Participants []Source              `json:"participants,omitempty"`
}

// SceneStatus is the payload of a CURRENT_SCENE_STATUS control and lists
// the agents live in the loaded scene.
type SceneStatus struct {
	Agents           []Agent `json:"agents"`
	SceneName        string  `json:"sceneName,omitempty"`
	SceneDescription string  `json:"sceneDescription,omitempty"`
	SceneDisplayName string  `json:"sceneDisplayName,omitempty"`
}

// Agent maps a character's brain name to its live session agent id.
type Agent struct {
	AgentID   string `json:"agentId"`
	BrainName string `json:"brainName"`
	GivenName string `json:"givenName,omitempty"`
}

// AudioSession configures an audio session start.
type AudioSession struct {
	Mode              string `json:"mode,omitempty"`
	UnderstandingMode string `json:"understandingMode,omitempty"`
}

// Emotion reports the emotional behaviour of an agent.
type Emotion struct {
	Behavior SpaffCode
	Strength Strength
}

func (*Emotion) Kind() Kind { return KindEmotion }
func (*Emotion) sealed()    {}

// Custom is a named trigger with string parameters.
type Custom struct {
	Name   string
	Type   CustomType
	Params map[string]string
}

func (*Custom) Kind() Kind { return KindCustom }
func (*Custom) sealed()    {}

// Action is a narrated action.
type Action struct {
	Content string
}

func (*Action) Kind() Kind { return KindAction }
func (*Action) sealed()    {}

// CancelResponse asks the service to stop generating the given interaction
// and utterances.
type CancelResponse struct {
	InteractionID string
	UtteranceIDs  []string
}

func (*CancelResponse) Kind() Kind { return KindCancelResponse }
func (*CancelResponse) sealed()    {}
