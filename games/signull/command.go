package signull

import (
	"strings"
	"time"
)

type CommandKind string

const (
	CmdCreate     CommandKind = "create"
	CmdJoin       CommandKind = "join"
	CmdLeave      CommandKind = "leave"
	CmdDisconnect CommandKind = "disconnect"
	CmdStart      CommandKind = "start"
	CmdSetWord    CommandKind = "setword"
	CmdSignull    CommandKind = "signull"
	CmdConnect    CommandKind = "connect"
	CmdIntercept  CommandKind = "intercept"
	CmdGuess      CommandKind = "guess"
	CmdVolunteer  CommandKind = "volunteer"
	CmdSetter     CommandKind = "setter"
	CmdSet        CommandKind = "set"
	CmdReset      CommandKind = "reset"
	CmdEnd        CommandKind = "end"
	CmdLobby      CommandKind = "lobby"

	CmdStatus   CommandKind = "status"
	CmdPlayers  CommandKind = "players"
	CmdSignulls CommandKind = "signulls"
)

// IsQuery reports whether the command only reads the room.
func (k CommandKind) IsQuery() bool {
	return k == CmdStatus || k == CmdPlayers || k == CmdSignulls
}

// Command is one player action. Only the fields its Kind needs are set.
type Command struct {
	ID     string      `json:"id,omitempty"`
	Kind   CommandKind `json:"kind"`
	Actor  string      `json:"actor"`
	Name   string      `json:"name,omitempty"`
	Word   string      `json:"word,omitempty"`
	Clue   string      `json:"clue,omitempty"`
	RefID  string      `json:"refId,omitempty"`
	Target string      `json:"target,omitempty"`
	Key    string      `json:"key,omitempty"`
	Value  string      `json:"value,omitempty"`
	At     time.Time   `json:"at"`
}

var usage = map[CommandKind]string{
	CmdCreate:    "create <name>",
	CmdJoin:      "join <name>",
	CmdSetWord:   "setword <word>",
	CmdSignull:   "signull <word> <clue>",
	CmdConnect:   "connect <id> <guess>",
	CmdIntercept: "intercept <id> <guess>",
	CmdGuess:     "guess <word>",
	CmdSetter:    "setter <player>",
	CmdSet:       "set <threshold|connects|prefix|maxplayers|guesses|mode|bonus> <value>",
}

// ParseCommand turns one line of the text command surface into a Command
// for actor. Arguments are positional; the clue and player names take the
// rest of the line.
func ParseCommand(actor, line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, validationError("empty_command", "empty command")
	}
	kind := CommandKind(strings.ToLower(fields[0]))
	args := fields[1:]
	rest := func(from int) string { return strings.Join(args[from:], " ") }
	cmd := Command{Kind: kind, Actor: actor}

	need := func(n int) error {
		if len(args) < n {
			return validationError("usage", "usage: %s", usage[kind])
		}
		return nil
	}

	var err error
	switch kind {
	case CmdCreate, CmdJoin:
		if err = need(1); err == nil {
			cmd.Name = rest(0)
		}
	case CmdLeave, CmdStart, CmdVolunteer, CmdReset, CmdEnd, CmdLobby,
		CmdStatus, CmdPlayers, CmdSignulls:
	case CmdSetWord, CmdGuess:
		if err = need(1); err == nil {
			cmd.Word = args[0]
		}
	case CmdSignull:
		if err = need(2); err == nil {
			cmd.Word, cmd.Clue = args[0], rest(1)
		}
	case CmdConnect, CmdIntercept:
		if err = need(2); err == nil {
			cmd.RefID, cmd.Word = args[0], args[1]
		}
	case CmdSetter:
		if err = need(1); err == nil {
			cmd.Target = rest(0)
		}
	case CmdSet:
		if err = need(2); err == nil {
			cmd.Key, cmd.Value = strings.ToLower(args[0]), strings.ToLower(args[1])
		}
	default:
		err = validationError("unknown_command", "unknown command %q", fields[0])
	}
	if err != nil {
		return Command{}, err
	}
	return cmd, nil
}
