package packet

import (
	"fmt"
	"slices"
)

// SourceType classifies the actor on either end of a [Routing].
type SourceType int

const (
	SourceNone SourceType = iota
	SourceUnknown
	SourceAgent
	SourcePlayer
	SourceWorld
)

var sourceTypeNames = []string{"NONE", "UNKNOWN", "AGENT", "PLAYER", "WORLD"}

func (s SourceType) String() string { return enumName(sourceTypeNames, int(s)) }

// MarshalText implements [encoding.TextMarshaler].
func (s SourceType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler]. Unrecognised names
// decode to [SourceUnknown].
func (s *SourceType) UnmarshalText(b []byte) error {
	*s = SourceType(enumValue(sourceTypeNames, string(b), int(SourceUnknown)))
	return nil
}

// ControlType is the sub-action carried by a [Control] payload.
type ControlType int

const (
	ControlUnknown              ControlType = 0
	ControlAudioSessionStart    ControlType = 1
	ControlAudioSessionEnd      ControlType = 2
	ControlInteractionEnd       ControlType = 3
	ControlTTSPlaybackStart     ControlType = 4
	ControlTTSPlaybackEnd       ControlType = 5
	ControlTTSPlaybackMute      ControlType = 6
	ControlTTSPlaybackUnmute    ControlType = 7
	ControlWarning              ControlType = 8
	ControlSessionEnd           ControlType = 9
	ControlConversationStart    ControlType = 10
	ControlConversationUpdate   ControlType = 12
	ControlConversationStarted  ControlType = 13
	ControlConversationEvent    ControlType = 14
	ControlCurrentSceneStatus   ControlType = 15
	ControlSessionConfiguration ControlType = 16
)

var controlTypeNames = map[ControlType]string{
	ControlUnknown:              "UNKNOWN",
	ControlAudioSessionStart:    "AUDIO_SESSION_START",
	ControlAudioSessionEnd:      "AUDIO_SESSION_END",
	ControlInteractionEnd:       "INTERACTION_END",
	ControlTTSPlaybackStart:     "TTS_PLAYBACK_START",
	ControlTTSPlaybackEnd:       "TTS_PLAYBACK_END",
	ControlTTSPlaybackMute:      "TTS_PLAYBACK_MUTE",
	ControlTTSPlaybackUnmute:    "TTS_PLAYBACK_UNMUTE",
	ControlWarning:              "WARNING",
	ControlSessionEnd:           "SESSION_END",
	ControlConversationStart:    "CONVERSATION_START",
	ControlConversationUpdate:   "CONVERSATION_UPDATE",
	ControlConversationStarted:  "CONVERSATION_STARTED",
	ControlConversationEvent:    "CONVERSATION_EVENT",
	ControlCurrentSceneStatus:   "CURRENT_SCENE_STATUS",
	ControlSessionConfiguration: "SESSION_CONFIGURATION",
}

func (c ControlType) String() string {
	if n, ok := controlTypeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ControlType(%d)", int(c))
}

// MarshalText implements [encoding.TextMarshaler].
func (c ControlType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler]. Unrecognised names
// decode to [ControlUnknown].
func (c *ControlType) UnmarshalText(b []byte) error {
	for k, v := range controlTypeNames {
		if v == string(b) {
			*c = k
			return nil
		}
	}
	*c = ControlUnknown
	return nil
}

// SpaffCode is the behaviour code of an [Emotion] payload.
type SpaffCode int

const (
	SpaffNeutral SpaffCode = iota
	SpaffDisgust
	SpaffContempt
	SpaffBelligerence
	SpaffDomineering
	SpaffCriticism
	SpaffAnger
	SpaffTension
	SpaffTenseHumor
	SpaffDefensiveness
	SpaffWhining
	SpaffSadness
	SpaffStonewalling
	SpaffInterest
	SpaffValidation
	SpaffAffection
	SpaffHumor
	SpaffSurprise
	SpaffJoy
)

var spaffNames = []string{
	"NEUTRAL", "DISGUST", "CONTEMPT", "BELLIGERENCE", "DOMINEERING", "CRITICISM",
	"ANGER", "TENSION", "TENSE_HUMOR", "DEFENSIVENESS", "WHINING", "SADNESS",
	"STONEWALLING", "INTEREST", "VALIDATION", "AFFECTION", "HUMOR", "SURPRISE", "JOY",
}

func (s SpaffCode) String() string { return enumName(spaffNames, int(s)) }

// MarshalText implements [encoding.TextMarshaler].
func (s SpaffCode) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *SpaffCode) UnmarshalText(b []byte) error {
	*s = SpaffCode(enumValue(spaffNames, string(b), int(SpaffNeutral)))
	return nil
}

// Strength qualifies the intensity of an [Emotion].
type Strength int

const (
	StrengthUnspecified Strength = iota
	StrengthWeak
	StrengthStrong
	StrengthNormal
)

var strengthNames = []string{"UNSPECIFIED", "WEAK", "STRONG", "NORMAL"}

func (s Strength) String() string { return enumName(strengthNames, int(s)) }

// MarshalText implements [encoding.TextMarshaler].
func (s Strength) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Strength) UnmarshalText(b []byte) error {
	*s = Strength(enumValue(strengthNames, string(b), int(StrengthUnspecified)))
	return nil
}

// ConversationEventType describes what happened to a conversation in a
// CONVERSATION_EVENT control packet.
type ConversationEventType int

const (
	ConversationEvicted ConversationEventType = iota
	ConversationStarted
	ConversationUpdated
)

var conversationEventNames = []string{"EVICTED", "STARTED", "UPDATED"}

func (e ConversationEventType) String() string { return enumName(conversationEventNames, int(e)) }

// MarshalText implements [encoding.TextMarshaler].
func (e ConversationEventType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (e *ConversationEventType) UnmarshalText(b []byte) error {
	*e = ConversationEventType(enumValue(conversationEventNames, string(b), int(ConversationUpdated)))
	return nil
}

// CustomType distinguishes plain triggers from task requests.
type CustomType int

const (
	CustomUnspecified CustomType = iota
	CustomTrigger
	CustomTask
)

var customTypeNames = []string{"UNSPECIFIED", "TRIGGER", "TASK"}

func (c CustomType) String() string { return enumName(customTypeNames, int(c)) }

// MarshalText implements [encoding.TextMarshaler].
func (c CustomType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *CustomType) UnmarshalText(b []byte) error {
	*c = CustomType(enumValue(customTypeNames, string(b), int(CustomUnspecified)))
	return nil
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("UNKNOWN(%d)", i)
	}
	return names[i]
}

func enumValue(names []string, s string, fallback int) int {
	if i := slices.Index(names, s); i >= 0 {
		return i
	}
	return fallback
}
