package interaction_test

import (
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/pkg/packet"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// agentPkt builds a packet sent by the agent "bob" to the player.
func agentPkt(interactionID, utteranceID, packetID string, at time.Duration, payload packet.Payload) *packet.Packet {
	return &packet.Packet{
		ID: packet.ID{
			PacketID:      packetID,
			UtteranceID:   utteranceID,
			InteractionID: interactionID,
		},
		Routing: packet.Routing{
			Source: packet.AgentSource("bob"),
			Target: packet.Source{Type: packet.SourcePlayer},
		},
		Timestamp: t0.Add(at),
		Payload:   payload,
	}
}

func text(interactionID, utteranceID, packetID string, at time.Duration, s string) *packet.Packet {
	return agentPkt(interactionID, utteranceID, packetID, at, &packet.Text{Text: s, Final: true})
}

func TestIndexQueue_AddRoutesByID(t *testing.T) {
	t.Parallel()

	q := interaction.NewIndexQueue(interaction.NewUtterance)
	q.Add(text("i1", "u1", "p1", 0, "a"))
	q.Add(text("i1", "u2", "p2", time.Second, "b"))
	q.Add(text("i1", "u1", "p3", 2*time.Second, "c"))
	q.Add(nil)

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	if got := q.At(0).Len(); got != 2 {
		t.Errorf("first utterance holds %d packets, want 2", got)
	}
	if got := q.At(0).ID(); got != "u1" {
		t.Errorf("front = %q, want u1", got)
	}
	if !q.RecentTime().Equal(t0.Add(2 * time.Second)) {
		t.Errorf("RecentTime() = %v", q.RecentTime())
	}
}

func TestIndexQueue_EmptyOperations(t *testing.T) {
	t.Parallel()

	q := interaction.NewIndexQueue(interaction.NewUtterance)
	if u, ok := q.Dequeue(true); ok || u != nil {
		t.Errorf("Dequeue on empty queue = (%v, %v)", u, ok)
	}
	if q.At(0) != nil || q.At(-1) != nil {
		t.Error("At out of range returned an item")
	}
	if q.Contains(nil) || q.IsOverDue(nil) {
		t.Error("nil packet reported as contained or overdue")
	}
	q.Clear()
	q.PourTo(interaction.NewIndexQueue(interaction.NewUtterance))
	if !q.IsEmpty() {
		t.Error("queue not empty")
	}
}

func TestIndexQueue_PourToPreservesOrder(t *testing.T) {
	t.Parallel()

	a := interaction.NewIndexQueue(interaction.NewUtterance)
	b := interaction.NewIndexQueue(interaction.NewUtterance)
	b.Add(text("i0", "u0", "p0", 0, "existing"))
	for i, id := range []string{"u1", "u2", "u3"} {
		a.Add(text("i1", id, "p"+id, time.Duration(i)*time.Second, id))
	}

	a.PourTo(b)

	if !a.IsEmpty() {
		t.Errorf("source holds %d items after PourTo", a.Len())
	}
	want := []string{"u0", "u1", "u2", "u3"}
	got := b.Items()
	if len(got) != len(want) {
		t.Fatalf("destination holds %d items, want %d", len(got), len(want))
	}
	for i, u := range got {
		if u.ID() != want[i] {
			t.Errorf("item %d = %q, want %q", i, u.ID(), want[i])
		}
	}

	b.PourTo(b)
	if b.Len() != len(want) {
		t.Errorf("PourTo self changed length to %d", b.Len())
	}
}

func TestIndexQueue_IsOverDue(t *testing.T) {
	t.Parallel()

	q := interaction.NewIndexQueue(interaction.NewUtterance)
	q.Add(text("i1", "u1", "p1", 10*time.Second, "a"))

	if !q.IsOverDue(text("i1", "u9", "p9", 5*time.Second, "old")) {
		t.Error("older packet not overdue")
	}
	if q.IsOverDue(text("i1", "u9", "p9", 10*time.Second, "same")) {
		t.Error("packet at RecentTime reported overdue")
	}

	// Dequeuing does not lower RecentTime.
	q.Dequeue(false)
	if !q.IsOverDue(text("i1", "u9", "p9", 5*time.Second, "old")) {
		t.Error("overdue lost after dequeue")
	}
}

func TestIndexQueue_DequeueHook(t *testing.T) {
	t.Parallel()

	var hooked []string
	q := interaction.NewIndexQueue(interaction.NewUtterance,
		interaction.WithDequeueHook(func(u *interaction.Utterance) { hooked = append(hooked, u.ID()) }))
	q.Add(text("i1", "u1", "p1", 0, "a"))
	q.Add(text("i1", "u2", "p2", 0, "b"))

	q.Dequeue(false)
	q.Dequeue(true)

	if len(hooked) != 1 || hooked[0] != "u2" {
		t.Errorf("hook calls = %v, want [u2]", hooked)
	}
}
