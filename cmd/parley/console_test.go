package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/MrWong99/parley/internal/character"
	"github.com/MrWong99/parley/pkg/packet"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		want   command
		wantOK bool
	}{
		{line: "", wantOK: false},
		{line: "   ", wantOK: false},
		{line: "/", wantOK: false},
		{line: "Hello there", want: command{name: "say", text: "Hello there"}, wantOK: true},
		{line: "  /Select Old Bob ", want: command{name: "select", args: []string{"Old", "Bob"}, text: "Old Bob"}, wantOK: true},
		{line: "/cancel", want: command{name: "cancel", args: []string{}}, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			got, ok := parseCommand(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.name != tt.want.name || got.text != tt.want.text || len(got.args) != len(tt.want.args) {
				t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	t.Parallel()
	got := parseParams([]string{"item=sword", "bogus", "=x", "count=2"})
	want := map[string]string{"item": "sword", "count": "2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseParams = %v, want %v", got, want)
	}
	if parseParams(nil) != nil {
		t.Error("parseParams(nil) should be nil")
	}
}

func TestConsole_Present(t *testing.T) {
	t.Parallel()

	reg := character.New()
	reg.Register(&character.Character{BrainName: "chars/bob", GivenName: "Bob"})

	var out bytes.Buffer
	c := newConsole(&out, reg)
	c.Present("chars/bob", []*packet.Packet{
		{Payload: &packet.Text{Text: "Welcome, traveller."}},
		{Payload: &packet.Action{Content: "wipes the counter"}},
		{Payload: &packet.Emotion{}},
	})
	c.Present("chars/ghost", []*packet.Packet{{Payload: &packet.Text{Text: "Boo."}}})

	got := out.String()
	for _, want := range []string{"Bob: Welcome, traveller.\n", "*Bob wipes the counter*", "chars/ghost: Boo.\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
