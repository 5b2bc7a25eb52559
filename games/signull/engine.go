package signull

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Apply runs cmd against room and returns the next snapshot together with
// the history entries the command appended. A rejected command returns the
// original room untouched. Queries return the room as is.
func Apply(room Room, cmd Command) (Room, []Entry, error) {
	if cmd.Kind.IsQuery() {
		if room.Players[cmd.Actor] == nil {
			return room, nil, permissionError("not_in_room", "join the room first")
		}
		return room, nil, nil
	}
	next := room.Clone()
	mark := len(next.History)
	if err := next.apply(cmd); err != nil {
		return room, nil, err
	}
	return next, slices.Clone(next.History[mark:]), nil
}

func (r *Room) apply(cmd Command) error {
	now := cmd.At
	if cmd.Kind != CmdCreate && cmd.Kind != CmdJoin && r.Players[cmd.Actor] == nil {
		return permissionError("not_in_room", "join the room first")
	}
	turn := r.Rotation.ClueGiver

	var err error
	switch cmd.Kind {
	case CmdCreate:
		err = r.create(cmd.Actor, cmd.Name, now)
	case CmdJoin:
		err = r.join(cmd.Actor, cmd.Name, now)
	case CmdLeave:
		err = r.leave(cmd.Actor, now)
	case CmdDisconnect:
		r.disconnect(cmd.Actor, now)
	case CmdStart:
		err = r.start(cmd.Actor, now)
	case CmdSetWord:
		err = r.setWord(cmd.Actor, cmd.Word, now)
	case CmdSignull:
		err = r.createReference(cmd.Actor, cmd.Word, cmd.Clue, now)
	case CmdConnect:
		err = r.connect(cmd.Actor, cmd.RefID, cmd.Word, now)
	case CmdIntercept:
		err = r.intercept(cmd.Actor, cmd.RefID, cmd.Word, now)
	case CmdGuess:
		err = r.directGuess(cmd.Actor, cmd.Word, now)
	case CmdVolunteer:
		err = r.volunteer(cmd.Actor)
	case CmdSetter:
		err = r.assignSetter(cmd.Actor, cmd.Target, now)
	case CmdSet:
		err = r.changeSetting(cmd.Actor, cmd.Key, cmd.Value, now)
	case CmdReset:
		err = r.reset(cmd.Actor, now)
	case CmdEnd:
		err = r.end(cmd.Actor, now)
	case CmdLobby:
		err = r.returnToLobby(cmd.Actor, now)
	default:
		err = validationError("unknown_command", "unknown command %q", cmd.Kind)
	}
	if err != nil {
		return err
	}

	if cg := r.Rotation.ClueGiver; cg != "" && cg != turn && r.Phase == PhaseGuessing {
		r.log(now, Entry{Kind: EntryTurn, Actor: cg, Text: "it's " + r.name(cg) + "'s turn"})
	}
	return nil
}

func (r *Room) create(actor, name string, now time.Time) error {
	if len(r.Players) > 0 {
		return conflictError("room_open", "room %s is already open", r.ID)
	}
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	settings := r.Settings
	if settings.MaxPlayers == 0 {
		settings = DefaultSettings()
	}
	*r = NewRoom(r.ID, actor, name, settings, now)
	return nil
}

// join adds a guesser, or brings a known player back online. The first
// player into an empty room opens it.
func (r *Room) join(actor, name string, now time.Time) error {
	if len(r.Players) == 0 {
		return r.create(actor, name, now)
	}
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	for _, p := range r.Players {
		if p.ID != actor && strings.EqualFold(p.Name, name) {
			return conflictError("name_taken", "that name is already taken")
		}
	}

	if p := r.Players[actor]; p != nil {
		p.Name = name
		if !p.IsOnline {
			p.IsOnline = true
			r.log(now, Entry{Kind: EntryPlayerOnline, Actor: actor, Text: name + " is back"})
			if r.Phase == PhaseGuessing && p.Role == RoleGuesser {
				r.Rotation.join(r, actor)
			}
		}
		return nil
	}

	if len(r.Players) >= r.Settings.MaxPlayers {
		return ErrRoomFull
	}
	r.Players[actor] = &Player{
		ID:       actor,
		Name:     name,
		Role:     RoleGuesser,
		IsOnline: true,
		JoinSeq:  r.nextSeq(),
	}
	r.log(now, Entry{Kind: EntryPlayerJoined, Actor: actor, Text: name + " joined"})
	if r.Phase == PhaseGuessing {
		r.Rotation.join(r, actor)
	}
	return nil
}

// disconnect marks a player offline. Only the player's own stake in the
// active signull is affected: a clue giver's signull goes inactive, a
// pending connector simply stops counting towards failure.
func (r *Room) disconnect(actor string, now time.Time) {
	p := r.Players[actor]
	if !p.IsOnline {
		return
	}
	p.IsOnline = false
	r.log(now, Entry{Kind: EntryPlayerOffline, Actor: actor, Text: p.Name + " went offline"})
	r.dropFromPlay(actor, now)
}

func (r *Room) dropFromPlay(actor string, now time.Time) {
	if r.Phase != PhaseGuessing {
		return
	}
	if ref := r.CurrentReference; ref != nil && ref.ClueGiverID == actor {
		r.deactivate(now)
		r.Rotation.advance(r)
		return
	}
	r.Rotation.drop(r, actor)
	r.checkFailed(now)
}

func (r *Room) leave(actor string, now time.Time) error {
	p := r.Players[actor]
	if actor == r.SetterID && (r.Phase == PhaseSettingWord || r.Phase == PhaseGuessing) {
		r.deactivate(now)
		r.toLobby()
		r.log(now, Entry{Kind: EntryReset, Actor: actor, Text: "the setter left, back to the lobby"})
	}
	wasOnline := p.IsOnline
	p.IsOnline = false
	if wasOnline {
		r.dropFromPlay(actor, now)
	}
	delete(r.Players, actor)
	r.log(now, Entry{Kind: EntryPlayerLeft, Actor: actor, Text: p.Name + " left"})

	roster := r.Roster()
	if len(roster) == 0 {
		r.HostID, r.SetterID = "", ""
		return nil
	}
	if actor == r.HostID {
		r.HostID = roster[0].ID
		r.log(now, Entry{Kind: EntryHostChanged, Actor: r.HostID, Text: roster[0].Name + " is now host"})
	}
	if actor == r.SetterID {
		next := r.Players[r.HostID]
		r.SetterID = next.ID
		next.Role = RoleSetter
		r.log(now, Entry{Kind: EntrySetterChanged, Actor: next.ID, Text: next.Name + " is now the setter"})
	}
	return nil
}

func (r *Room) start(actor string, now time.Time) error {
	if r.Phase != PhaseLobby {
		return phaseError(PhaseLobby, r.Phase)
	}
	if !r.isHostOrSetter(actor) {
		return permissionError("host_only", "only the host or the setter can start")
	}
	if len(r.ActiveGuessers()) < MinGuessers {
		return conflictError("not_enough_players", "need at least %d guessers online", MinGuessers)
	}
	r.clearRound()
	r.Round++
	r.Phase = PhaseSettingWord
	r.log(now, Entry{Kind: EntryRoundStarted, Actor: actor, Text: fmt.Sprintf("round %d: waiting for %s to pick a word", r.Round, r.name(r.SetterID))})
	return nil
}

func (r *Room) setWord(actor, word string, now time.Time) error {
	if r.Phase != PhaseSettingWord {
		return phaseError(PhaseSettingWord, r.Phase)
	}
	if actor != r.SetterID {
		return permissionError("setter_only", "only the setter picks the word")
	}
	word, err := normalizeWord(word)
	if err != nil {
		return err
	}
	r.SecretWord = word
	r.RevealedCount = 0
	r.DirectGuessesLeft = r.Settings.DirectGuesses
	r.Phase = PhaseGuessing
	r.Rotation.start(r)
	r.log(now, Entry{Kind: EntryWordSet, Actor: actor, Text: fmt.Sprintf("%s picked a %d-letter word", r.name(actor), len(word))})
	return nil
}

func (r *Room) directGuess(actor, word string, now time.Time) error {
	if r.Phase != PhaseGuessing {
		return phaseError(PhaseGuessing, r.Phase)
	}
	if r.Players[actor].Role != RoleGuesser {
		return permissionError("guessers_only", "only guessers can guess the word")
	}
	if r.DirectGuessesLeft <= 0 {
		return permissionError("no_direct_guesses", "no direct guesses left")
	}
	word, err := normalizeWord(word)
	if err != nil {
		return err
	}
	r.DirectGuessesLeft--
	r.log(now, Entry{Kind: EntryDirectGuess, Actor: actor, Text: fmt.Sprintf("%s guessed %s", r.name(actor), word)})
	if word == r.SecretWord {
		r.endRound(WinnerGuessers, now)
	}
	return nil
}

func (r *Room) volunteer(actor string) error {
	if r.Phase != PhaseGuessing {
		return phaseError(PhaseGuessing, r.Phase)
	}
	if r.Players[actor].Role != RoleGuesser {
		return permissionError("guessers_only", "only guessers give clues")
	}
	return r.Rotation.volunteer(r, actor)
}

func (r *Room) assignSetter(actor, target string, now time.Time) error {
	if r.Phase != PhaseLobby {
		return phaseError(PhaseLobby, r.Phase)
	}
	if !r.isHostOrSetter(actor) {
		return permissionError("host_only", "only the host or the setter can change roles")
	}
	next := r.findPlayer(target)
	if next == nil {
		return validationError("unknown_player", "no player %q", target)
	}
	if next.ID == r.SetterID {
		return nil
	}
	if prev := r.Setter(); prev != nil {
		prev.Role = RoleGuesser
	}
	next.Role = RoleSetter
	r.SetterID = next.ID
	r.log(now, Entry{Kind: EntrySetterChanged, Actor: next.ID, Text: next.Name + " is now the setter"})
	return nil
}

func (r *Room) findPlayer(idOrName string) *Player {
	if p := r.Players[idOrName]; p != nil {
		return p
	}
	for _, p := range r.Roster() {
		if strings.EqualFold(p.Name, idOrName) {
			return p
		}
	}
	return nil
}

// changeSetting updates one setting. The quorum may also change mid-round;
// it only applies to signulls created afterwards.
func (r *Room) changeSetting(actor, key, value string, now time.Time) error {
	if !r.isHostOrSetter(actor) {
		return permissionError("host_only", "only the host or the setter can change settings")
	}
	quorumKey := key == "threshold" || key == "connects"
	if r.Phase != PhaseLobby && !(quorumKey && r.Phase != PhaseEnded) {
		return phaseError(PhaseLobby, r.Phase)
	}

	s := r.Settings
	switch key {
	case "threshold", "connects":
		n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return validationError("bad_quorum", "%s must be a number", key)
		}
		q := PercentQuorum(n)
		if key == "connects" {
			q = CountQuorum(n)
		}
		if err := q.validate(); err != nil {
			return err
		}
		s.Quorum = q
	case "prefix":
		on, err := parseSwitch(value)
		if err != nil {
			return err
		}
		s.PrefixMode = on
	case "maxplayers":
		n, err := strconv.Atoi(value)
		if err != nil || n < MinGuessers+1 || n > MaxRoomPlayers {
			return validationError("bad_max_players", "maxplayers must be between %d and %d", MinGuessers+1, MaxRoomPlayers)
		}
		if n < len(r.Players) {
			return conflictError("too_many_players", "%d players are already in the room", len(r.Players))
		}
		s.MaxPlayers = n
	case "guesses":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 99 {
			return validationError("bad_guesses", "guesses must be between 0 and 99")
		}
		s.DirectGuesses = n
	case "mode":
		m := TurnMode(value)
		if !m.valid() {
			return validationError("bad_mode", "mode must be %s or %s", TurnRoundRobin, TurnSignull)
		}
		s.TurnMode = m
		r.Rotation.Mode = m
	case "bonus":
		b := BonusPolicy(value)
		if !b.valid() {
			return validationError("bad_bonus", "bonus must be %s or %s", BonusEach, BonusSplit)
		}
		s.BonusPolicy = b
	default:
		return validationError("unknown_setting", "unknown setting %q", key)
	}
	r.Settings = s
	r.log(now, Entry{Kind: EntrySettingsChanged, Actor: actor, Text: fmt.Sprintf("%s set %s to %s", r.name(actor), key, value)})
	return nil
}

func parseSwitch(v string) (bool, error) {
	switch v {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, validationError("bad_switch", "expected on or off")
}

// reset interrupts a round in progress. The active signull goes inactive and
// no bonus is paid.
func (r *Room) reset(actor string, now time.Time) error {
	if r.Phase != PhaseSettingWord && r.Phase != PhaseGuessing {
		return phaseError(PhaseGuessing, r.Phase)
	}
	if !r.isHostOrSetter(actor) {
		return permissionError("host_only", "only the host or the setter can reset")
	}
	r.deactivate(now)
	r.toLobby()
	r.log(now, Entry{Kind: EntryReset, Actor: actor, Text: r.name(actor) + " reset the round"})
	return nil
}

// end lets the setter side close a round the guessers cannot finish.
func (r *Room) end(actor string, now time.Time) error {
	if r.Phase != PhaseGuessing {
		return phaseError(PhaseGuessing, r.Phase)
	}
	if !r.isHostOrSetter(actor) {
		return permissionError("host_only", "only the host or the setter can end the round")
	}
	r.endRound(WinnerSetter, now)
	return nil
}

func (r *Room) returnToLobby(actor string, now time.Time) error {
	if r.Phase != PhaseEnded {
		return phaseError(PhaseEnded, r.Phase)
	}
	if !r.isHostOrSetter(actor) {
		return permissionError("host_only", "only the host or the setter can return to the lobby")
	}
	r.toLobby()
	r.log(now, Entry{Kind: EntryReturnedToLobby, Actor: actor, Text: "back to the lobby"})
	return nil
}

func (r *Room) toLobby() {
	r.clearRound()
	r.Phase = PhaseLobby
}

// clearRound drops per-round state. Roster, scores, settings and history
// stay.
func (r *Room) clearRound() {
	r.SecretWord = ""
	r.RevealedCount = 0
	r.DirectGuessesLeft = 0
	r.CurrentReference = nil
	r.Signulls = nil
	r.Winner = WinnerNone
	r.Rotation = Rotation{Mode: r.Settings.TurnMode}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return "", validationError("bad_name", "name must be 1-%d characters", MaxNameLength)
	}
	return name, nil
}
