// Package live tracks the state of the connected session: which agents are
// live under which ids ([Directory]) and who the player is currently talking
// to ([Info]).
package live

import (
	"slices"
	"sync"

	"github.com/MrWong99/parley/pkg/packet"
)

// Directory maps brain names to the agents of the live session. The whole
// set is replaced at once from each scene status. All methods are safe for
// concurrent use.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]packet.Agent
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{agents: make(map[string]packet.Agent)}
}

// Replace swaps the directory contents for agents. Agents without a brain
// name are skipped.
func (d *Directory) Replace(agents []packet.Agent) {
	next := make(map[string]packet.Agent, len(agents))
	for _, a := range agents {
		if a.BrainName == "" {
			continue
		}
		next[a.BrainName] = a
	}
	d.mu.Lock()
	d.agents = next
	d.mu.Unlock()
}

// Lookup returns the live agent for brainName.
func (d *Directory) Lookup(brainName string) (packet.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[brainName]
	return a, ok
}

// AgentID returns the live agent id for brainName, or "".
func (d *Directory) AgentID(brainName string) string {
	a, _ := d.Lookup(brainName)
	return a.AgentID
}

// BrainName returns the brain name of the live agent with agentID.
func (d *Directory) BrainName(agentID string) (string, bool) {
	if agentID == "" {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for brain, a := range d.agents {
		if a.AgentID == agentID {
			return brain, true
		}
	}
	return "", false
}

// BrainNames returns the registered brain names in sorted order.
func (d *Directory) BrainNames() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.agents))
	for n := range d.agents {
		names = append(names, n)
	}
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Len returns the number of live agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}

// Clear forgets every agent.
func (d *Directory) Clear() { d.Replace(nil) }
