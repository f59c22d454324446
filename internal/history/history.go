// Package history keeps a durable log of what was said in a session.
//
// Played character utterances and player lines are written as [Entry]
// values to a [Store]. The [Recorder] sits between the session tick and the
// store so that a slow database never stalls playback.
//
// Every Store implementation must be safe for concurrent use.
package history

import (
	"context"
	"time"
)

// Entry is one line of dialogue.
type Entry struct {
	// ConversationID groups the entries of one conversation. Single
	// character chats use the brain name of the character.
	ConversationID string

	// InteractionID and UtteranceID identify the service response the line
	// belongs to. Both are empty for player lines.
	InteractionID string
	UtteranceID   string

	// Speaker is the brain name of the character, or "player".
	Speaker string

	// SpeakerName is the display name of the speaker.
	SpeakerName string

	// Text is what was said.
	Text string

	// FromPlayer marks lines typed or spoken by the player.
	FromPlayer bool

	// Timestamp is when the line was played or sent.
	Timestamp time.Time
}

// SpeakerPlayer is the [Entry.Speaker] of player lines.
const SpeakerPlayer = "player"

// SearchOpts narrows a full-text search. Zero fields are ignored.
type SearchOpts struct {
	ConversationID string
	Speaker        string
	After          time.Time
	Before         time.Time

	// Limit caps the result count. Zero means no limit.
	Limit int
}

// Store persists dialogue entries.
type Store interface {
	// Record appends e to the log.
	Record(ctx context.Context, e Entry) error

	// Recent returns the last limit entries of conversationID, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error)

	// Search returns entries whose text matches query, oldest first.
	Search(ctx context.Context, query string, opts SearchOpts) ([]Entry, error)
}
