package live

import (
	"slices"
	"sync"

	"github.com/MrWong99/parley/pkg/packet"
)

// groupName is what [Info.Name] reports in conversation mode.
const groupName = "the chat group"

// Roster is the view of the registered characters that [Info] needs.
type Roster interface {
	// ConversationID returns the current conversation id, creating one if
	// needed.
	ConversationID() string

	// CurrentNames returns the brain names of the registered characters.
	CurrentNames() []string

	// Lookup returns the data of a registered character.
	Lookup(brainName string) (packet.Agent, bool)
}

// Conversation is the multi-character target.
type Conversation struct {
	ID         string
	Status     packet.ConversationEventType
	BrainNames []string
}

// AudioSession describes the open microphone stream, if any.
type AudioSession struct {
	ID             string
	IsConversation bool
	// Target is a brain name or, for conversations, the conversation id.
	Target string
}

// HasStarted reports whether the session is open.
func (s AudioSession) HasStarted() bool { return s.ID != "" }

// Info caches who the player is addressing. Exactly one of single-character
// mode and conversation mode is active at any time. All methods are safe for
// concurrent use.
type Info struct {
	roster Roster

	mu             sync.Mutex
	groupChat      bool
	isConversation bool
	character      *packet.Agent
	conversation   Conversation
	audio          AudioSession
}

// NewInfo returns an Info backed by roster. groupChat allows conversation
// mode with more than one character.
func NewInfo(roster Roster, groupChat bool) *Info {
	return &Info{
		roster:       roster,
		groupChat:    groupChat,
		conversation: Conversation{Status: packet.ConversationEvicted},
	}
}

// SetGroupChat enables or disables conversation mode for several characters.
func (i *Info) SetGroupChat(enabled bool) {
	i.mu.Lock()
	i.groupChat = enabled
	i.mu.Unlock()
}

// GroupChat reports whether conversation mode is enabled.
func (i *Info) GroupChat() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.groupChat
}

// Update targets brainName, or the conversation when brainName is empty.
// It returns false when no usable target exists.
func (i *Info) Update(brainName string) bool {
	if brainName == "" {
		return i.UpdateMultiTargets("", nil)
	}
	return i.UpdateSingleTarget(brainName)
}

// UpdateMultiTargets switches to conversation mode. Without a conversation id
// a single candidate character falls back to single-character mode, and
// several candidates require group chat. Missing ids and names are filled in
// from the roster.
func (i *Info) UpdateMultiTargets(conversationID string, brainNames []string) bool {
	if conversationID == "" {
		if len(brainNames) == 1 && brainNames[0] != "" {
			return i.UpdateSingleTarget(brainNames[0])
		}
		if names := i.roster.CurrentNames(); len(names) == 1 {
			return i.UpdateSingleTarget(names[0])
		}
		if !i.GroupChat() {
			return false
		}
		conversationID = i.roster.ConversationID()
	}
	if len(brainNames) == 0 {
		brainNames = i.roster.CurrentNames()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.setConversation(true)
	i.conversation.ID = conversationID
	i.conversation.BrainNames = slices.Clone(brainNames)
	return len(brainNames) > 0
}

// UpdateSingleTarget switches to single-character mode for brainName. The
// world pseudo-target is always accepted.
func (i *Info) UpdateSingleTarget(brainName string) bool {
	if brainName == "" {
		return false
	}
	i.mu.Lock()
	i.setConversation(false)
	if brainName == packet.SourceWorld.String() {
		i.mu.Unlock()
		return true
	}
	if i.character != nil && i.character.BrainName == brainName {
		i.mu.Unlock()
		return true
	}
	i.mu.Unlock()

	a, ok := i.roster.Lookup(brainName)

	i.mu.Lock()
	defer i.mu.Unlock()
	if !ok {
		i.character = nil
		return false
	}
	i.character = &a
	return true
}

// Must be called with mu held.
func (i *Info) setConversation(on bool) {
	i.isConversation = on
	i.audio.IsConversation = on
	if on {
		i.character = nil
	}
}

// IsConversation reports whether conversation mode is active.
func (i *Info) IsConversation() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.isConversation
}

// Character returns the single target, if any.
func (i *Info) Character() (packet.Agent, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.character == nil {
		return packet.Agent{}, false
	}
	return *i.character, true
}

// Conversation returns a copy of the conversation target. An unset id is
// resolved through the roster.
func (i *Info) Conversation() Conversation {
	i.mu.Lock()
	c := i.conversation
	c.BrainNames = slices.Clone(c.BrainNames)
	i.mu.Unlock()
	if c.ID == "" {
		c.ID = i.roster.ConversationID()
	}
	return c
}

// SetConversationStatus records the last conversation event type.
func (i *Info) SetConversationStatus(status packet.ConversationEventType) {
	i.mu.Lock()
	i.conversation.Status = status
	i.mu.Unlock()
}

// StartAudioSession opens an audio session identified by packetID for the
// current target.
func (i *Info) StartAudioSession(packetID string) {
	i.mu.Lock()
	conv := i.isConversation
	var target string
	if !conv && i.character != nil {
		target = i.character.BrainName
	}
	i.mu.Unlock()

	if conv {
		target = i.roster.ConversationID()
	}

	i.mu.Lock()
	i.audio.ID = packetID
	i.audio.Target = target
	i.mu.Unlock()
}

// StopAudioSession closes the audio session.
func (i *Info) StopAudioSession() {
	i.mu.Lock()
	i.audio.ID = ""
	i.audio.Target = ""
	i.mu.Unlock()
}

// AudioSession returns a copy of the audio session state.
func (i *Info) AudioSession() AudioSession {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.audio
}

// IsSameSession reports whether the open audio session already targets
// brainName, or the current conversation when brainName is empty.
func (i *Info) IsSameSession(brainName string) bool {
	target := i.AudioSession().Target
	if brainName == "" {
		return target != "" && target == i.roster.ConversationID()
	}
	return brainName == target
}

// Name is a display name for the current target.
func (i *Info) Name() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.isConversation {
		return groupName
	}
	if i.character == nil {
		return ""
	}
	return i.character.GivenName
}
