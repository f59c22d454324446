package interaction

import (
	"time"

	"github.com/MrWong99/parley/pkg/packet"
)

// Item is a group of packets sharing an identifier. [Utterance] and
// [Interaction] are the two implementations.
type Item interface {
	// Contains reports whether p belongs to this item.
	Contains(p *packet.Packet) bool

	// Add merges p into the item. Packets that do not belong are ignored.
	Add(p *packet.Packet)

	// RecentTime is the latest packet timestamp seen by the item.
	RecentTime() time.Time
}

// IndexQueue is an ordered FIFO of items with packet routing. Packets are
// merged into the first item that contains them, or start a new item at the
// back of the queue.
//
// IndexQueue is not safe for concurrent use; it is driven from the tick
// goroutine only.
type IndexQueue[T Item] struct {
	items     []T
	recent    time.Time
	newItem   func(*packet.Packet) T
	onDequeue func(T)
}

// QueueOption configures an [IndexQueue].
type QueueOption[T Item] func(*IndexQueue[T])

// WithDequeueHook registers fn to run when an item is dequeued with
// notification enabled.
func WithDequeueHook[T Item](fn func(T)) QueueOption[T] {
	return func(q *IndexQueue[T]) { q.onDequeue = fn }
}

// NewIndexQueue returns an empty queue that builds new items with newItem.
func NewIndexQueue[T Item](newItem func(*packet.Packet) T, opts ...QueueOption[T]) *IndexQueue[T] {
	q := &IndexQueue[T]{newItem: newItem}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Len returns the number of items.
func (q *IndexQueue[T]) Len() int { return len(q.items) }

// IsEmpty reports whether the queue holds no items.
func (q *IndexQueue[T]) IsEmpty() bool { return len(q.items) == 0 }

// RecentTime is the latest timestamp of any packet or item that entered the
// queue. Dequeuing does not lower it.
func (q *IndexQueue[T]) RecentTime() time.Time { return q.recent }

// At returns the item at index i, or the zero value when out of range.
func (q *IndexQueue[T]) At(i int) T {
	var zero T
	if i < 0 || i >= len(q.items) {
		return zero
	}
	return q.items[i]
}

// Items returns a copy of the queued items in order.
func (q *IndexQueue[T]) Items() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Contains reports whether any queued item contains p.
func (q *IndexQueue[T]) Contains(p *packet.Packet) bool {
	if p == nil {
		return false
	}
	for _, it := range q.items {
		if it.Contains(p) {
			return true
		}
	}
	return false
}

// IsOverDue reports whether p is older than the newest content that already
// passed through this queue.
func (q *IndexQueue[T]) IsOverDue(p *packet.Packet) bool {
	return p != nil && q.recent.After(p.Timestamp)
}

// Add routes p into the matching item or appends a new one. nil packets are
// ignored.
func (q *IndexQueue[T]) Add(p *packet.Packet) {
	if p == nil {
		return
	}
	q.touch(p.Timestamp)
	for _, it := range q.items {
		if it.Contains(p) {
			it.Add(p)
			return
		}
	}
	q.items = append(q.items, q.newItem(p))
}

// Enqueue appends an already built item.
func (q *IndexQueue[T]) Enqueue(item T) {
	q.touch(item.RecentTime())
	q.items = append(q.items, item)
}

// Dequeue removes and returns the front item. When notify is set the dequeue
// hook runs first. ok is false on an empty queue.
func (q *IndexQueue[T]) Dequeue(notify bool) (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	if notify && q.onDequeue != nil {
		q.onDequeue(item)
	}
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// PourTo moves every item into dst, preserving order. q is empty afterwards.
func (q *IndexQueue[T]) PourTo(dst *IndexQueue[T]) {
	if dst == q {
		return
	}
	for {
		item, ok := q.Dequeue(true)
		if !ok {
			return
		}
		dst.Enqueue(item)
	}
}

// Clear drops every item. RecentTime is kept.
func (q *IndexQueue[T]) Clear() {
	clear(q.items)
	q.items = q.items[:0]
}

func (q *IndexQueue[T]) touch(t time.Time) {
	if t.After(q.recent) {
		q.recent = t
	}
}
