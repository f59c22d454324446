package live_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/parley/internal/live"
	"github.com/MrWong99/parley/pkg/packet"
)

// roster is a fixed in-memory live.Roster.
type roster struct {
	convID string
	chars  []packet.Agent
}

func (r *roster) ConversationID() string { return r.convID }

func (r *roster) CurrentNames() []string {
	out := make([]string, 0, len(r.chars))
	for _, c := range r.chars {
		out = append(out, c.BrainName)
	}
	return out
}

func (r *roster) Lookup(brainName string) (packet.Agent, bool) {
	for _, c := range r.chars {
		if c.BrainName == brainName {
			return c, true
		}
	}
	return packet.Agent{}, false
}

var (
	bob   = packet.Agent{AgentID: "a-bob", BrainName: "chars/bob", GivenName: "Bob"}
	alice = packet.Agent{AgentID: "a-alice", BrainName: "chars/alice", GivenName: "Alice"}
)

func TestDirectory_Replace(t *testing.T) {
	t.Parallel()

	d := live.NewDirectory()
	d.Replace([]packet.Agent{bob, alice, {AgentID: "orphan"}})

	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	if got := d.AgentID("chars/bob"); got != "a-bob" {
		t.Errorf("AgentID(bob) = %q", got)
	}
	if brain, ok := d.BrainName("a-alice"); !ok || brain != "chars/alice" {
		t.Errorf("BrainName(a-alice) = (%q, %v)", brain, ok)
	}
	if _, ok := d.BrainName(""); ok {
		t.Error("empty agent id resolved")
	}
	names := d.BrainNames()
	if len(names) != 2 || names[0] != "chars/alice" {
		t.Errorf("BrainNames() = %v", names)
	}

	d.Replace([]packet.Agent{{AgentID: "a-bob-2", BrainName: "chars/bob"}})
	if _, ok := d.Lookup("chars/alice"); ok {
		t.Error("replace kept a stale agent")
	}
	if got := d.AgentID("chars/bob"); got != "a-bob-2" {
		t.Errorf("AgentID(bob) = %q after replace", got)
	}

	d.Clear()
	if d.Len() != 0 {
		t.Error("Clear left agents behind")
	}
}

func TestDirectory_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	d := live.NewDirectory()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Replace([]packet.Agent{bob})
		}()
		go func() {
			defer wg.Done()
			_ = d.AgentID("chars/bob")
			_ = d.BrainNames()
		}()
	}
	wg.Wait()
}

func TestInfo_SingleTarget(t *testing.T) {
	t.Parallel()

	info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob, alice}}, true)

	if !info.Update("chars/bob") {
		t.Fatal("Update(bob) = false")
	}
	if info.IsConversation() {
		t.Error("single target left conversation mode on")
	}
	if c, ok := info.Character(); !ok || c.AgentID != "a-bob" {
		t.Errorf("Character() = (%+v, %v)", c, ok)
	}
	if info.Name() != "Bob" {
		t.Errorf("Name() = %q", info.Name())
	}

	if info.Update("chars/nobody") {
		t.Error("Update of an unregistered character succeeded")
	}
	if _, ok := info.Character(); ok {
		t.Error("stale character kept after failed update")
	}

	if !info.UpdateSingleTarget("WORLD") {
		t.Error("world target rejected")
	}
}

func TestInfo_ModesAreExclusive(t *testing.T) {
	t.Parallel()

	info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob, alice}}, true)
	info.Update("chars/bob")

	if !info.Update("") {
		t.Fatal("Update(\"\") = false with two characters and group chat")
	}
	if !info.IsConversation() {
		t.Fatal("conversation mode not active")
	}
	if _, ok := info.Character(); ok {
		t.Error("single target kept in conversation mode")
	}
	conv := info.Conversation()
	if conv.ID != "c1" || len(conv.BrainNames) != 2 {
		t.Errorf("Conversation() = %+v", conv)
	}
	if info.Name() != "the chat group" {
		t.Errorf("Name() = %q", info.Name())
	}

	info.Update("chars/alice")
	if info.IsConversation() {
		t.Error("conversation mode kept after single target")
	}
}

func TestInfo_MultiTargetFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("sole character", func(t *testing.T) {
		t.Parallel()
		info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob}}, false)
		if !info.UpdateMultiTargets("", nil) {
			t.Fatal("UpdateMultiTargets = false")
		}
		if info.IsConversation() {
			t.Error("sole character should use single mode")
		}
	})
	t.Run("single name", func(t *testing.T) {
		t.Parallel()
		info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob, alice}}, false)
		if !info.UpdateMultiTargets("", []string{"chars/alice"}) || info.IsConversation() {
			t.Error("single brain name should use single mode")
		}
	})
	t.Run("no group chat", func(t *testing.T) {
		t.Parallel()
		info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob, alice}}, false)
		if info.UpdateMultiTargets("", nil) {
			t.Error("conversation allowed without group chat")
		}
	})
	t.Run("explicit conversation", func(t *testing.T) {
		t.Parallel()
		info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob, alice}}, false)
		if !info.UpdateMultiTargets("c2", nil) {
			t.Fatal("explicit conversation rejected")
		}
		if got := info.Conversation().ID; got != "c2" {
			t.Errorf("conversation id = %q, want c2", got)
		}
	})
	t.Run("no characters", func(t *testing.T) {
		t.Parallel()
		info := live.NewInfo(&roster{convID: "c1"}, true)
		if info.UpdateMultiTargets("", nil) {
			t.Error("empty conversation accepted")
		}
	})
}

func TestInfo_AudioSession(t *testing.T) {
	t.Parallel()

	info := live.NewInfo(&roster{convID: "c1", chars: []packet.Agent{bob, alice}}, true)
	info.Update("chars/bob")
	info.StartAudioSession("pkt-1")

	s := info.AudioSession()
	if !s.HasStarted() || s.Target != "chars/bob" || s.IsConversation {
		t.Errorf("AudioSession() = %+v", s)
	}
	if !info.IsSameSession("chars/bob") || info.IsSameSession("chars/alice") {
		t.Error("IsSameSession wrong for single target")
	}

	info.Update("")
	info.StartAudioSession("pkt-2")
	if !info.IsSameSession("") {
		t.Error("conversation session not recognised")
	}

	info.StopAudioSession()
	if info.AudioSession().HasStarted() {
		t.Error("session still open after stop")
	}
}
