package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/parley/internal/character"
	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/pkg/packet"
)

var _ interaction.Presenter = (*console)(nil)

// console prints what characters say to a terminal and turns typed lines
// into session input.
type console struct {
	reg *character.Registry

	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer, reg *character.Registry) *console {
	return &console{out: out, reg: reg}
}

func (c *console) displayName(brainName string) string {
	if ch := c.reg.Get(brainName); ch != nil && ch.GivenName != "" {
		return ch.GivenName
	}
	return brainName
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Present implements [interaction.Presenter].
func (c *console) Present(brainName string, packets []*packet.Packet) {
	name := c.displayName(brainName)
	for _, p := range packets {
		switch pl := p.Payload.(type) {
		case *packet.Text:
			if pl.Text != "" {
				c.printf("%s: %s\n", name, pl.Text)
			}
		case *packet.Action:
			if pl.Content != "" {
				c.printf("  *%s %s*\n", name, pl.Content)
			}
		}
	}
}

// PlayerPacket implements [interaction.Presenter].
func (c *console) PlayerPacket(brainName string, p *packet.Packet) {
	if text, ok := p.TextContent(); ok {
		slog.Debug("console: player line", "to", brainName, "text", text)
	}
}

// SetSpeaking implements [interaction.Presenter].
func (c *console) SetSpeaking(brainName string, speaking bool) {
	slog.Debug("console: speaking", "brain_name", brainName, "speaking", speaking)
}

// SetContinuePrompt implements [interaction.Presenter].
func (c *console) SetContinuePrompt(brainName string, visible bool) {
	if visible {
		c.printf("  (%s waits; type /continue)\n", c.displayName(brainName))
	}
}

// ── Commands ──────────────────────────────────────────────────────────────────

// command is a parsed input line. A line without a leading slash is a
// "say" command carrying the whole line.
type command struct {
	name string
	args []string
	text string
}

func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", text: line}, true
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	cmd := command{name: strings.ToLower(fields[0]), args: fields[1:]}
	cmd.text = strings.Join(cmd.args, " ")
	return cmd, true
}

// parseParams turns key=value arguments into trigger parameters. Arguments
// without '=' are ignored.
func parseParams(args []string) map[string]string {
	if len(args) == 0 {
		return nil
	}
	params := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			continue
		}
		params[k] = v
	}
	return params
}

const helpText = `commands:
  <text>                     say something to the selected character or the conversation
  /select <name>             select a character by brain name or given name
  /deselect                  talk to the whole conversation
  /cancel [hard]             cancel what the selected character is saying
  /continue                  advance characters waiting for you
  /trigger <name> [k=v ...]  send a trigger
  /next                      ask for the next conversation turn
  /who                       list characters
  /quit                      stop parley
`

// readCommands executes lines from r until r is exhausted, ctx is done or
// the player quits. quit is called on /quit.
func (c *console) readCommands(ctx context.Context, r io.Reader, sess *session.Session, quit func()) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd, ok := parseCommand(sc.Text())
		if !ok {
			continue
		}
		if cmd.name == "quit" || cmd.name == "exit" {
			quit()
			return
		}
		c.execute(ctx, cmd, sess)
	}
	if err := sc.Err(); err != nil {
		slog.Warn("console: read input", "error", err)
	}
}

func (c *console) execute(ctx context.Context, cmd command, sess *session.Session) {
	switch cmd.name {
	case "say":
		if !sess.Say(cmd.text) {
			c.printf("  (not sent: no character or conversation to talk to)\n")
		}
	case "select":
		if cmd.text == "" {
			c.printf("  usage: /select <name>\n")
			return
		}
		ch, ok := sess.Select(cmd.text)
		if !ok {
			c.printf("  no character matches %q\n", cmd.text)
			return
		}
		c.printf("  talking to %s\n", c.displayName(ch.BrainName))
	case "deselect":
		sess.Deselect()
		c.printf("  talking to the conversation\n")
	case "cancel":
		hard := len(cmd.args) > 0 && cmd.args[0] == "hard"
		n := sess.CancelResponse(ctx, hard)
		c.printf("  cancelled %d response(s)\n", n)
	case "continue":
		sess.Continue()
	case "trigger":
		if len(cmd.args) == 0 {
			c.printf("  usage: /trigger <name> [key=value ...]\n")
			return
		}
		if !sess.Trigger(cmd.args[0], parseParams(cmd.args[1:])) {
			c.printf("  trigger %q not sent\n", cmd.args[0])
		}
	case "next":
		if !sess.Registry().NextTurn() {
			c.printf("  no conversation to continue\n")
		}
	case "who":
		current := sess.Registry().Current()
		for _, ch := range sess.Registry().Characters() {
			marker := " "
			if ch == current {
				marker = ">"
			}
			c.printf("  %s %s (%s)\n", marker, c.displayName(ch.BrainName), ch.BrainName)
		}
	case "help":
		c.printf("%s", helpText)
	default:
		c.printf("  unknown command /%s; type /help\n", cmd.name)
	}
}
