// Package signull implements the rules engine for the Signull word game.
//
// One player (the setter) holds a secret word. The other players (guessers)
// reveal it one letter at a time by creating signulls: a reference word plus a
// free-text clue that the other guessers try to match before the setter
// intercepts it.
//
// The engine is a pure reducer. Apply takes a Room snapshot and a Command and
// returns the next snapshot plus the history entries the command produced.
// Session wraps a Room with a mutex so that commands for one room are applied
// strictly one at a time, and fans snapshots out to subscribers.
package signull

import (
	"slices"
	"time"
)

type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseSettingWord Phase = "setting_word"
	PhaseGuessing    Phase = "guessing"
	PhaseEnded       Phase = "ended"
)

type Role string

const (
	RoleSetter  Role = "setter"
	RoleGuesser Role = "guesser"
)

type Winner string

const (
	WinnerNone     Winner = ""
	WinnerGuessers Winner = "guessers"
	WinnerSetter   Winner = "setter"
)

const (
	MinWordLength = 3
	MaxWordLength = 24
	MaxClueLength = 200
	MaxNameLength = 24

	// MinGuessers is the number of guessers needed to start a round: one to
	// give clues and at least one to connect.
	MinGuessers = 2

	// MaxRoomPlayers bounds maxPlayers so the percent/count round trip in
	// PercentFromCount stays exact.
	MaxRoomPlayers = 100

	DefaultMaxPlayers    = 12
	DefaultDirectGuesses = 3
	DefaultMajority      = 51
)

// Player is one roster entry. Scores survive a return to the lobby.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	IsOnline bool   `json:"isOnline"`
	Score    int    `json:"score"`
	JoinSeq  int    `json:"joinSeq"`
}

// Settings are chosen in the lobby by the host or the setter.
type Settings struct {
	Quorum        Quorum      `json:"quorum"`
	PrefixMode    bool        `json:"prefixMode"`
	MaxPlayers    int         `json:"maxPlayers"`
	DirectGuesses int         `json:"directGuesses"`
	TurnMode      TurnMode    `json:"turnMode"`
	BonusPolicy   BonusPolicy `json:"bonusPolicy"`
}

func DefaultSettings() Settings {
	return Settings{
		Quorum:        PercentQuorum(DefaultMajority),
		MaxPlayers:    DefaultMaxPlayers,
		DirectGuesses: DefaultDirectGuesses,
		TurnMode:      TurnRoundRobin,
		BonusPolicy:   BonusEach,
	}
}

// Room is the canonical game document. Every field is owned by the reducer;
// callers treat a Room as an immutable snapshot and get a new one from Apply.
type Room struct {
	ID                string             `json:"roomId"`
	Phase             Phase              `json:"gamePhase"`
	HostID            string             `json:"hostUid"`
	SetterID          string             `json:"setterUid"`
	Players           map[string]*Player `json:"players"`
	Settings          Settings           `json:"settings"`
	Round             int                `json:"round"`
	SecretWord        string             `json:"secretWord"`
	RevealedCount     int                `json:"revealedCount"`
	DirectGuessesLeft int                `json:"directGuessesLeft"`
	CurrentReference  *Reference         `json:"currentReference"`
	Signulls          []Reference        `json:"signulls"`
	Rotation          Rotation           `json:"rotation"`
	Winner            Winner             `json:"winner"`
	History           []Entry            `json:"gameHistory"`

	// NextSeq numbers players, references and history entries so that the
	// reducer stays deterministic.
	NextSeq int `json:"nextSeq"`
}

// NewRoom opens a room in the lobby with the creator as host and setter.
func NewRoom(id, hostID, hostName string, settings Settings, now time.Time) Room {
	r := Room{
		ID:       id,
		Phase:    PhaseLobby,
		HostID:   hostID,
		SetterID: hostID,
		Players:  make(map[string]*Player),
		Settings: settings,
		Rotation: Rotation{Mode: settings.TurnMode},
	}
	r.NextSeq++
	r.Players[hostID] = &Player{
		ID:       hostID,
		Name:     hostName,
		Role:     RoleSetter,
		IsOnline: true,
		JoinSeq:  r.NextSeq,
	}
	r.log(now, Entry{Kind: EntryRoomCreated, Actor: hostID, Text: hostName + " opened the room"})
	return r
}

// Clone returns a deep copy so the reducer can mutate freely.
func (r Room) Clone() Room {
	out := r
	out.Players = make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		out.Players[id] = &cp
	}
	if r.CurrentReference != nil {
		ref := r.CurrentReference.clone()
		out.CurrentReference = &ref
	}
	if r.Signulls != nil {
		out.Signulls = make([]Reference, len(r.Signulls))
		for i, ref := range r.Signulls {
			out.Signulls[i] = ref.clone()
		}
	}
	out.Rotation.Order = slices.Clone(r.Rotation.Order)
	out.History = slices.Clone(r.History)
	return out
}

// Setter returns the setter, or nil for an empty room.
func (r *Room) Setter() *Player {
	return r.Players[r.SetterID]
}

// Roster returns players in join order.
func (r *Room) Roster() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Player) int { return a.JoinSeq - b.JoinSeq })
	return out
}

// Guessers returns every guesser in join order, online or not.
func (r *Room) Guessers() []*Player {
	var out []*Player
	for _, p := range r.Roster() {
		if p.Role == RoleGuesser {
			out = append(out, p)
		}
	}
	return out
}

// ActiveGuessers returns the online guessers in join order.
func (r *Room) ActiveGuessers() []*Player {
	var out []*Player
	for _, p := range r.Guessers() {
		if p.IsOnline {
			out = append(out, p)
		}
	}
	return out
}

// RevealedPrefix is the part of the secret word everyone may see.
func (r *Room) RevealedPrefix() string {
	if r.RevealedCount > len(r.SecretWord) {
		return r.SecretWord
	}
	return r.SecretWord[:r.RevealedCount]
}

func (r *Room) isHostOrSetter(id string) bool {
	return id != "" && (id == r.HostID || id == r.SetterID)
}

func (r *Room) nextSeq() int {
	r.NextSeq++
	return r.NextSeq
}

// ViewFor masks what playerID may not see yet. The setter sees the whole
// word and every intercept guess; the clue giver sees their own reference
// word. Everything is shown once the round has ended.
func (r Room) ViewFor(playerID string) Room {
	v := r.Clone()
	if v.Phase == PhaseEnded {
		return v
	}
	if playerID != v.SetterID {
		v.SecretWord = r.RevealedPrefix()
	}
	if ref := v.CurrentReference; ref != nil && ref.ClueGiverID != playerID {
		ref.Word = ""
		for i := range ref.Connects {
			if ref.Connects[i].GuesserID != playerID {
				ref.Connects[i].Guess = ""
				ref.Connects[i].Correct = false
			}
		}
		if ref.Intercept != nil && playerID != v.SetterID {
			ref.Intercept.Guess = ""
		}
	}
	if playerID != v.SetterID {
		for i := range v.Signulls {
			if ic := v.Signulls[i].Intercept; ic != nil {
				ic.Guess = ""
			}
		}
	}
	return v
}
