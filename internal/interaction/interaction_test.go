package interaction_test

import (
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/pkg/packet"
)

func TestInteraction_Lifecycle(t *testing.T) {
	t.Parallel()

	first := text("I1", "U1", "P1", 0, "hello")
	it := interaction.NewInteraction(first)

	if it.ID() != "I1" {
		t.Errorf("ID() = %q, want I1", it.ID())
	}
	if it.IsEmpty() {
		t.Fatal("fresh interaction reported empty")
	}
	u := it.Dequeue()
	if u == nil || !u.Contains(first) || u.Len() != 1 {
		t.Fatalf("Dequeue() = %v, want utterance holding the first packet", u)
	}
	if it.Current() != u {
		t.Error("dequeued utterance is not current")
	}
	it.Processed()
	if !it.IsEmpty() {
		t.Error("interaction not empty after Processed")
	}
	if it.Current() != nil {
		t.Error("current utterance kept after Processed")
	}
	if it.ProcessedQueue().Len() != 1 {
		t.Errorf("processed holds %d utterances, want 1", it.ProcessedQueue().Len())
	}
}

func TestInteraction_DequeueFIFO(t *testing.T) {
	t.Parallel()

	ids := []string{"u1", "u2", "u3", "u4"}
	it := interaction.NewInteraction(text("i1", ids[0], "p-"+ids[0], 0, "x"))
	for i, id := range ids[1:] {
		it.Add(text("i1", id, "p-"+id, time.Duration(i+1)*time.Millisecond, "x"))
	}

	for _, want := range ids {
		u := it.Dequeue()
		if u == nil {
			t.Fatalf("Dequeue() = nil, want %s", want)
		}
		if u.ID() != want {
			t.Errorf("Dequeue() = %s, want %s", u.ID(), want)
		}
		it.Processed()
	}
	if it.Dequeue() != nil {
		t.Error("Dequeue() on drained interaction returned an utterance")
	}
}

func TestInteraction_Markers(t *testing.T) {
	t.Parallel()

	it := interaction.NewInteraction(text("i1", "u1", "p1", 0, "x"))
	if !it.Interruptible() || it.ReceivedInteractionEnd() {
		t.Fatal("fresh interaction has markers set")
	}

	it.Add(agentPkt("i1", "u2", "p2", 0, &packet.Custom{Name: "inworld.uninterruptible", Type: packet.CustomTrigger}))
	it.Add(agentPkt("i1", "u3", "p3", 0, &packet.Control{Action: packet.ControlInteractionEnd}))

	if it.Interruptible() {
		t.Error("uninterruptible marker ignored")
	}
	if !it.ReceivedInteractionEnd() {
		t.Error("INTERACTION_END ignored")
	}

	// No packet re-enables interruption.
	it.Add(text("i1", "u4", "p4", 0, "y"))
	if it.Interruptible() {
		t.Error("interaction became interruptible again")
	}
}

func TestInteraction_OverdueBypass(t *testing.T) {
	t.Parallel()

	it := interaction.NewInteraction(text("i1", "u1", "p1", 10*time.Second, "played"))
	it.Dequeue()
	it.Processed()

	lateText := text("i1", "u0", "p0", 5*time.Second, "late")
	it.Add(lateText)
	if !it.Prepared().Contains(lateText) {
		t.Error("overdue text was not re-admitted to prepared")
	}

	lateEmotion := agentPkt("i1", "u9", "p9", 5*time.Second, &packet.Emotion{Behavior: packet.SpaffJoy})
	it.Add(lateEmotion)
	if it.Prepared().Contains(lateEmotion) {
		t.Error("overdue emotion reached prepared")
	}
	if !it.ProcessedQueue().Contains(lateEmotion) {
		t.Error("overdue emotion not absorbed into processed")
	}

	lateTrigger := agentPkt("i1", "u8", "p8", 5*time.Second, &packet.Custom{Name: "door_opened", Type: packet.CustomTrigger})
	it.Add(lateTrigger)
	if !it.Prepared().Contains(lateTrigger) {
		t.Error("overdue custom packet was not re-admitted to prepared")
	}
}

func TestInteraction_DuplicateOfProcessed(t *testing.T) {
	t.Parallel()

	it := interaction.NewInteraction(text("i1", "u1", "p1", 0, "played"))
	it.Dequeue()
	it.Processed()

	// Newer packet for an already played utterance.
	dup := agentPkt("i1", "u1", "p2", time.Second, &packet.Emotion{Behavior: packet.SpaffJoy})
	it.Add(dup)

	if it.ProcessedQueue().Len() != 1 {
		t.Fatalf("processed holds %d utterances, want 1", it.ProcessedQueue().Len())
	}
	if got := it.ProcessedQueue().At(0).Len(); got != 2 {
		t.Errorf("processed utterance holds %d packets, want 2", got)
	}
	if !it.IsEmpty() {
		t.Error("absorbed packet made the interaction non-empty")
	}
}

func TestInteraction_AddJoinsCurrentUtterance(t *testing.T) {
	t.Parallel()

	it := interaction.NewInteraction(text("i1", "u1", "p1", 0, "x"))
	cur := it.Dequeue()
	it.Add(agentPkt("i1", "u1", "p2", time.Millisecond, &packet.Audio{Chunk: []byte{1}}))

	if cur.Len() != 2 {
		t.Errorf("current utterance holds %d packets, want 2", cur.Len())
	}
	if !it.Prepared().IsEmpty() {
		t.Error("packet of the current utterance went to prepared")
	}
}

func TestInteraction_HardCancel(t *testing.T) {
	t.Parallel()

	it := interaction.NewInteraction(text("i1", "u1", "p1", 0, "in flight"))
	it.Add(text("i1", "u2", "p2", time.Millisecond, "queued"))
	it.Dequeue()

	it.Cancel(true)

	if it.Current() != nil {
		t.Error("current utterance kept after hard cancel")
	}
	if !it.Prepared().IsEmpty() {
		t.Errorf("prepared holds %d utterances after cancel", it.Prepared().Len())
	}
	got := it.Cancelled().Items()
	if len(got) != 2 {
		t.Fatalf("cancelled holds %d utterances, want 2", len(got))
	}
	if got[0].ID() != "u1" || got[1].ID() != "u2" {
		t.Errorf("cancelled order = [%s %s], want [u1 u2]", got[0].ID(), got[1].ID())
	}
	if !it.IsEmpty() {
		t.Error("interaction not empty after hard cancel")
	}
}

func TestInteraction_SoftCancelKeepsCurrent(t *testing.T) {
	t.Parallel()

	it := interaction.NewInteraction(text("i1", "u1", "p1", 0, "in flight"))
	it.Add(text("i1", "u2", "p2", time.Millisecond, "queued"))
	cur := it.Dequeue()

	it.Cancel(false)

	if it.Current() != cur || cur.IsEmpty() {
		t.Error("soft cancel touched the current utterance")
	}
	if it.Cancelled().Len() != 1 || it.Cancelled().At(0).ID() != "u2" {
		t.Errorf("cancelled = %d items, want only u2", it.Cancelled().Len())
	}
}
