package packet_test

import (
	"testing"

	"github.com/MrWong99/parley/pkg/packet"
)

func agentPacket(source string, payload packet.Payload) *packet.Packet {
	return &packet.Packet{
		Routing: packet.Routing{
			Source: packet.AgentSource(source),
			Target: packet.Source{Type: packet.SourcePlayer, Name: "player"},
		},
		Payload: payload,
	}
}

func TestPacket_Routing(t *testing.T) {
	t.Parallel()

	fromPlayer := &packet.Packet{
		Routing: packet.Routing{
			Source:  packet.Source{Type: packet.SourcePlayer},
			Target:  packet.AgentSource("bob"),
			Targets: []packet.Source{packet.AgentSource("alice")},
		},
		Payload: &packet.Text{Text: "hi"},
	}
	fromAgent := agentPacket("bob", &packet.Text{Text: "hello"})
	broadcast := &packet.Packet{
		Routing: packet.Routing{Source: packet.Source{Type: packet.SourcePlayer}},
		Payload: &packet.Text{Text: "all"},
	}

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"player target", fromPlayer.IsTarget("bob"), true},
		{"player extra target", fromPlayer.IsTarget("alice"), true},
		{"player non target", fromPlayer.IsTarget("carol"), false},
		{"empty name never targets", fromPlayer.IsTarget(""), false},
		{"player related via target", fromPlayer.IsRelated("alice"), true},
		{"player not related via source", fromPlayer.IsRelated(""), false},
		{"agent source", fromAgent.IsSource("bob"), true},
		{"empty name never sources", fromAgent.IsSource(""), false},
		{"agent related via source", fromAgent.IsRelated("bob"), true},
		{"agent unrelated to target", fromAgent.IsRelated("player"), false},
		{"broadcast", broadcast.IsBroadcast(), true},
		{"targeted not broadcast", fromPlayer.IsBroadcast(), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestPacket_Markers(t *testing.T) {
	t.Parallel()

	end := agentPacket("bob", &packet.Control{Action: packet.ControlInteractionEnd})
	if !end.IsInteractionEnd() {
		t.Error("INTERACTION_END control not detected")
	}
	warn := agentPacket("bob", &packet.Control{Action: packet.ControlWarning})
	if warn.IsInteractionEnd() {
		t.Error("WARNING control reported as interaction end")
	}
	unint := agentPacket("bob", &packet.Custom{Name: "inworld.uninterruptible"})
	if !unint.IsUninterruptible() {
		t.Error("uninterruptible custom not detected")
	}
	if agentPacket("bob", &packet.Text{Text: "x"}).IsUninterruptible() {
		t.Error("text reported as uninterruptible")
	}
}

func TestCustom_Message(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want packet.Message
	}{
		{"inworld.goal.enable.quest", packet.MessageGoalEnable},
		{"inworld.goal.complete.greet", packet.MessageGoalComplete},
		{"inworld.conversation.next_turn", packet.MessageConversationNextTurn},
		{"inworld.uninterruptible", packet.MessageUninterruptible},
		{"inworld.debug.critical-error", packet.MessageCritical},
		{"inworld.debug.error", packet.MessageError},
		{"inworld.task.open_door", packet.MessageTask},
		{"my_trigger", packet.MessageNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &packet.Custom{Name: tc.name}
			if got := c.Message(); got != tc.want {
				t.Errorf("Message(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestCustom_TaskName(t *testing.T) {
	t.Parallel()

	c := &packet.Custom{Name: "inworld.task.open_door", Type: packet.CustomTask}
	name, ok := c.TaskName()
	if !ok || name != "open_door" {
		t.Errorf("TaskName() = (%q, %v), want (open_door, true)", name, ok)
	}
	if _, ok := (&packet.Custom{Name: "x", Type: packet.CustomTrigger}).TaskName(); ok {
		t.Error("trigger reported a task name")
	}
}

func TestToAgents(t *testing.T) {
	t.Parallel()

	if r := packet.ToAgents(); r.Target.Type != packet.SourceWorld {
		t.Errorf("no names: target type %v, want WORLD", r.Target.Type)
	}
	if r := packet.ToAgents("bob"); r.Target.Name != "bob" || len(r.Targets) != 0 {
		t.Errorf("one name: got %+v", r)
	}
	r := packet.ToAgents("bob", "alice")
	if r.Target.Name != "" || len(r.Targets) != 2 {
		t.Errorf("two names: got %+v", r)
	}
}
