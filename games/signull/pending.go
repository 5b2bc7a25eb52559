package signull

import (
	"slices"
	"sync"
	"time"
)

// DefaultPendingTTL is how long a client waits for the server to confirm a
// command before rolling its prediction back.
const DefaultPendingTTL = 10 * time.Second

// PendingTable is the client side of optimistic play. Commands sent to the
// server are tracked until the authoritative snapshot confirms them or the
// TTL runs out; in between, Predict layers them over the last confirmed
// snapshot. The engine never retries: an expired command is dropped.
type PendingTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	order   []string
	entries map[string]pendingCommand
}

type pendingCommand struct {
	cmd  Command
	sent time.Time
}

func NewPendingTable(ttl time.Duration) *PendingTable {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingTable{
		ttl:     ttl,
		entries: make(map[string]pendingCommand),
	}
}

// Track records cmd as sent at now. Commands need an ID to be confirmed.
func (t *PendingTable) Track(cmd Command, now time.Time) error {
	if cmd.ID == "" {
		return validationError("missing_command_id", "command has no id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[cmd.ID]; ok {
		return conflictError("duplicate_command_id", "command %s is already pending", cmd.ID)
	}
	t.entries[cmd.ID] = pendingCommand{cmd: cmd, sent: now}
	t.order = append(t.order, cmd.ID)
	return nil
}

// Confirm removes a command the server has answered, accepted or not.
func (t *PendingTable) Confirm(id string) (Command, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pc, ok := t.entries[id]
	if !ok {
		return Command{}, false
	}
	t.remove(id)
	return pc.cmd, true
}

// Expire drops every command older than the TTL and returns them so the
// caller can tell the user their action was rolled back.
func (t *PendingTable) Expire(now time.Time) []Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Command
	for _, id := range slices.Clone(t.order) {
		pc := t.entries[id]
		if now.Sub(pc.sent) >= t.ttl {
			out = append(out, pc.cmd)
			t.remove(id)
		}
	}
	return out
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Predict replays the pending commands in send order on top of the
// authoritative room. Commands the engine would reject are skipped; they
// will come back from the server as errors.
func (t *PendingTable) Predict(authoritative Room) Room {
	t.mu.Lock()
	cmds := make([]Command, 0, len(t.order))
	for _, id := range t.order {
		cmds = append(cmds, t.entries[id].cmd)
	}
	t.mu.Unlock()

	room := authoritative
	for _, cmd := range cmds {
		if next, _, err := Apply(room, cmd); err == nil {
			room = next
		}
	}
	return room
}

func (t *PendingTable) remove(id string) {
	delete(t.entries, id)
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}
