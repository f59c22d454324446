package client

import (
	"sync"

	"github.com/MrWong99/parley/pkg/packet"
)

// Queue is a FIFO of packets safe for concurrent use. The client uses one
// for packets waiting to be sent and one for decoded packets waiting to be
// dispatched by the session tick.
type Queue struct {
	mu    sync.Mutex
	items []*packet.Packet
}

// Push appends p. Nil packets are ignored.
func (q *Queue) Push(p *packet.Packet) {
	if p == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

// Pop removes and returns the oldest packet.
func (q *Queue) Pop() (*packet.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p, true
}

// Drain removes and returns every queued packet in order.
func (q *Queue) Drain() []*packet.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued packet.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
