package character_test

import (
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/character"
	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/internal/interaction/mock"
	"github.com/MrWong99/parley/pkg/packet"
)

type conversations struct {
	updates []string
	turns   int
}

func (c *conversations) UpdateConversation(id string) bool {
	c.updates = append(c.updates, id)
	return true
}

func (c *conversations) NextTurn() bool {
	c.turns++
	return true
}

func TestRegistry_SoleCharacterFallback(t *testing.T) {
	t.Parallel()

	r := character.New()
	if r.Current() != nil {
		t.Fatal("Current() non-nil with no characters")
	}

	c1 := &character.Character{BrainName: "chars/c1", GivenName: "C1"}
	r.Register(c1)
	if r.Current() != c1 {
		t.Errorf("Current() = %v, want the sole character", r.Current())
	}

	r.Register(&character.Character{BrainName: "chars/c2"})
	if r.Current() != c1 {
		t.Error("implicit selection lost after a second registration")
	}
}

func TestRegistry_NoFallbackInSightAngleMode(t *testing.T) {
	t.Parallel()

	r := character.New(character.WithSelectionMode(character.SelectSightAngle))
	r.Register(&character.Character{BrainName: "chars/c1"})
	if r.Current() != nil {
		t.Error("sight angle mode selected a character implicitly")
	}
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	var joined, left int
	r := character.New(character.WithEvents(character.Events{
		OnJoined: func(*character.Character) { joined++ },
		OnLeft:   func(*character.Character) { left++ },
	}))
	c := &character.Character{BrainName: "chars/c1"}

	if !r.Register(c) || r.Register(c) {
		t.Error("Register() results wrong for repeated registration")
	}
	if r.Register(&character.Character{BrainName: "chars/c1"}) {
		t.Error("duplicate brain name registered")
	}
	if r.Register(&character.Character{}) {
		t.Error("character without brain name registered")
	}
	r.Unregister(c)
	r.Unregister(c)
	r.Unregister(nil)

	if joined != 1 || left != 1 {
		t.Errorf("joined=%d left=%d, want 1 and 1", joined, left)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after unregister", r.Len())
	}
}

func TestRegistry_UnregisterSelectedClearsSelection(t *testing.T) {
	t.Parallel()

	r := character.New()
	c1 := &character.Character{BrainName: "chars/c1"}
	c2 := &character.Character{BrainName: "chars/c2"}
	r.Register(c1)
	r.Register(c2)
	r.Select(c2)

	r.Unregister(c2)
	if r.Current() == c2 {
		t.Error("unregistered character still selected")
	}
	// c1 is now the sole character.
	if r.Current() != c1 {
		t.Errorf("Current() = %v, want c1", r.Current())
	}

	r.UnregisterAll()
	if r.Current() != nil || r.Len() != 0 {
		t.Error("UnregisterAll left state behind")
	}
}

func TestRegistry_SelectSchedulesCancel(t *testing.T) {
	t.Parallel()

	var selected, deselected []string
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := character.New(
		character.WithClock(func() time.Time { return now }),
		character.WithEvents(character.Events{
			OnSelected:   func(b string) { selected = append(selected, b) },
			OnDeselected: func(b string) { deselected = append(deselected, b) },
		}),
	)
	p1 := interaction.NewPlayer("chars/c1", &mock.Canceller{})
	p2 := interaction.NewPlayer("chars/c2", &mock.Canceller{})
	c1 := &character.Character{BrainName: "chars/c1", Player: p1}
	c2 := &character.Character{BrainName: "chars/c2", Player: p2}
	r.Register(c1)
	r.Register(c2)

	r.Select(c1)
	r.Select(c1)
	r.Select(c2)

	if !p1.CancelPending() {
		t.Error("deselected character has no deferred cancel")
	}
	if p2.CancelPending() {
		t.Error("selected character has a deferred cancel")
	}
	if len(selected) != 2 || len(deselected) != 1 || deselected[0] != "chars/c1" {
		t.Errorf("selected=%v deselected=%v", selected, deselected)
	}

	r.Select(c1)
	if p1.CancelPending() {
		t.Error("reselecting did not withdraw the deferred cancel")
	}
}

func TestRegistry_ConversationID(t *testing.T) {
	t.Parallel()

	r := character.New()
	id := r.ConversationID()
	if id == "" || r.ConversationID() != id {
		t.Fatalf("ConversationID() not stable: %q", id)
	}
	r.StartNewConversation("")
	if r.ConversationID() == id {
		t.Error("StartNewConversation kept the old id")
	}
	r.StartNewConversation("fixed")
	if r.ConversationID() != "fixed" {
		t.Errorf("ConversationID() = %q, want fixed", r.ConversationID())
	}
}

func TestRegistry_ReceivePacket(t *testing.T) {
	t.Parallel()

	var updated string
	conv := &conversations{}
	r := character.New(character.WithEvents(character.Events{
		OnConversationUpdated: func(id string) { updated = id },
	}))
	r.SetConversations(conv)

	scene := &packet.Packet{Payload: &packet.Control{Action: packet.ControlCurrentSceneStatus}}
	r.ReceivePacket(scene)
	if len(conv.updates) != 0 {
		t.Error("conversation updated without characters")
	}

	r.Register(&character.Character{BrainName: "chars/c1"})
	r.ReceivePacket(scene)
	if len(conv.updates) != 1 || conv.updates[0] != r.ConversationID() {
		t.Errorf("updates = %v", conv.updates)
	}

	event := &packet.Packet{
		ID:      packet.ID{ConversationID: "server-conv"},
		Payload: &packet.Control{Action: packet.ControlConversationEvent},
	}
	r.ReceivePacket(event)
	if r.ConversationID() != "server-conv" || updated != "server-conv" {
		t.Errorf("conversation id = %q, event = %q", r.ConversationID(), updated)
	}

	r.ReceivePacket(&packet.Packet{Payload: &packet.Text{Text: "ignored"}})
	r.ReceivePacket(nil)
}

func TestRegistry_NextTurn(t *testing.T) {
	t.Parallel()

	conv := &conversations{}
	r := character.New()
	r.SetConversations(conv)
	c1 := &character.Character{BrainName: "chars/c1"}
	r.Register(c1)

	if r.NextTurn() {
		t.Error("NextTurn with a single character")
	}
	r.Register(&character.Character{BrainName: "chars/c2"})
	if !r.NextTurn() || conv.turns != 1 {
		t.Errorf("NextTurn not forwarded, turns=%d", conv.turns)
	}
	r.Select(c1)
	if r.NextTurn() {
		t.Error("NextTurn while a character is selected")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	r := character.New()
	r.Register(&character.Character{BrainName: "chars/bob", GivenName: "Bob"})
	r.Directory().Replace([]packet.Agent{{AgentID: "live-1", BrainName: "chars/bob"}})

	a, ok := r.Lookup("chars/bob")
	if !ok || a.AgentID != "live-1" || a.GivenName != "Bob" {
		t.Errorf("Lookup() = (%+v, %v)", a, ok)
	}
	if _, ok := r.Lookup("chars/nobody"); ok {
		t.Error("Lookup found an unregistered character")
	}
	if r.ByGivenName("Bob") == nil || r.ByGivenName("bob") != nil {
		t.Error("ByGivenName should match exactly")
	}
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	r := character.New()
	for _, c := range []*character.Character{
		{BrainName: "chars/eldrinax", GivenName: "Eldrinax"},
		{BrainName: "chars/grimjaw", GivenName: "Grimjaw"},
		{BrainName: "chars/mara", GivenName: "Captain Mara"},
	} {
		r.Register(c)
	}

	tests := []struct {
		input string
		want  string
	}{
		{"Grimjaw", "chars/grimjaw"},
		{"grimjaw", "chars/grimjaw"},
		{"elder nacks", "chars/eldrinax"},
		{"captain mara", "chars/mara"},
		{"mara", "chars/mara"},
		{"", ""},
		{"hello", ""},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			c, score, ok := r.Resolve(tc.input)
			if tc.want == "" {
				if ok {
					t.Errorf("Resolve(%q) = %s, want no match", tc.input, c.BrainName)
				}
				return
			}
			if !ok {
				t.Fatalf("Resolve(%q) found nothing", tc.input)
			}
			if c.BrainName != tc.want {
				t.Errorf("Resolve(%q) = %s, want %s", tc.input, c.BrainName, tc.want)
			}
			if score < 0.7 {
				t.Errorf("Resolve(%q) score = %f", tc.input, score)
			}
		})
	}
}
