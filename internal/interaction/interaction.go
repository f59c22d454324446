package interaction

import (
	"time"

	"github.com/MrWong99/parley/pkg/packet"
)

var _ Item = (*Interaction)(nil)

// Interaction is one dialogue turn: the utterances sharing an interaction id.
// Utterances move from prepared to current to processed, or into cancelled
// when the turn is interrupted.
type Interaction struct {
	id            string
	recent        time.Time
	interruptible bool
	ended         bool

	current   *Utterance
	prepared  *IndexQueue[*Utterance]
	processed *IndexQueue[*Utterance]
	cancelled *IndexQueue[*Utterance]
}

// NewInteraction starts an interaction from its first packet, which becomes
// the first prepared utterance.
func NewInteraction(p *packet.Packet) *Interaction {
	it := &Interaction{
		id:            p.ID.InteractionID,
		recent:        p.Timestamp,
		interruptible: true,
		prepared:      NewIndexQueue(NewUtterance),
		processed:     NewIndexQueue(NewUtterance),
		cancelled:     NewIndexQueue(NewUtterance),
	}
	it.Add(p)
	return it
}

// ID returns the interaction id.
func (it *Interaction) ID() string { return it.id }

// RecentTime returns the latest timestamp seen by the interaction.
func (it *Interaction) RecentTime() time.Time { return it.recent }

// Interruptible reports whether the turn may still be cancelled. It flips to
// false for good once an uninterruptible marker arrives.
func (it *Interaction) Interruptible() bool { return it.interruptible }

// ReceivedInteractionEnd reports whether the INTERACTION_END control packet
// has been seen. It is informational; nothing is removed when it is set.
func (it *Interaction) ReceivedInteractionEnd() bool { return it.ended }

// Contains reports whether p carries this interaction id.
func (it *Interaction) Contains(p *packet.Packet) bool {
	return p != nil && p.ID.InteractionID == it.id
}

// Add merges p into the interaction:
//
//  1. INTERACTION_END marks the turn as ended.
//  2. The uninterruptible marker makes the turn uninterruptible.
//  3. A packet that is stale or duplicated relative to the processed
//     utterances is re-admitted to prepared when it is text or custom, and
//     absorbed into processed otherwise.
//  4. A packet of the utterance being played joins it.
//  5. Anything else goes to prepared.
func (it *Interaction) Add(p *packet.Packet) {
	if p == nil {
		return
	}
	if p.Timestamp.After(it.recent) {
		it.recent = p.Timestamp
	}
	if p.IsInteractionEnd() {
		it.ended = true
	}
	if p.IsUninterruptible() {
		it.interruptible = false
	}
	if it.processed.IsOverDue(p) || it.processed.Contains(p) {
		switch p.Payload.(type) {
		case *packet.Text, *packet.Custom:
			it.prepared.Add(p)
		default:
			it.processed.Add(p)
		}
		return
	}
	if it.current != nil && it.current.Contains(p) {
		it.current.Add(p)
		return
	}
	it.prepared.Add(p)
}

// Current returns the utterance being played, or nil.
func (it *Interaction) Current() *Utterance { return it.current }

// Dequeue moves the next prepared utterance into Current and returns it. It
// returns nil when nothing is prepared, leaving Current unchanged.
func (it *Interaction) Dequeue() *Utterance {
	u, ok := it.prepared.Dequeue(true)
	if !ok {
		return nil
	}
	it.current = u
	return u
}

// Skip drops the current utterance without recording it as processed.
func (it *Interaction) Skip() { it.current = nil }

// Processed moves the current utterance to the processed queue.
func (it *Interaction) Processed() {
	if it.current == nil {
		return
	}
	it.processed.Enqueue(it.current)
	it.current = nil
}

// Cancel pours every prepared utterance into cancelled. A hard cancel also
// discards the content of the utterance being played and moves it to
// cancelled; a soft cancel lets it finish.
func (it *Interaction) Cancel(hard bool) {
	if hard && it.current != nil {
		it.current.Cancel()
		it.cancelled.Enqueue(it.current)
		it.current = nil
	}
	it.prepared.PourTo(it.cancelled)
}

// IsEmpty reports whether nothing is prepared and the current utterance is
// absent or empty.
func (it *Interaction) IsEmpty() bool {
	return it.prepared.IsEmpty() && (it.current == nil || it.current.IsEmpty())
}

// Prepared returns the queue of utterances not yet played.
func (it *Interaction) Prepared() *IndexQueue[*Utterance] { return it.prepared }

// ProcessedQueue returns the queue of utterances already played.
func (it *Interaction) ProcessedQueue() *IndexQueue[*Utterance] { return it.processed }

// Cancelled returns the queue of cancelled utterances.
func (it *Interaction) Cancelled() *IndexQueue[*Utterance] { return it.cancelled }
