package signull

import "time"

type EntryKind string

const (
	EntryRoomCreated     EntryKind = "room_created"
	EntryPlayerJoined    EntryKind = "player_joined"
	EntryPlayerLeft      EntryKind = "player_left"
	EntryPlayerOnline    EntryKind = "player_online"
	EntryPlayerOffline   EntryKind = "player_offline"
	EntryHostChanged     EntryKind = "host_changed"
	EntrySetterChanged   EntryKind = "setter_changed"
	EntrySettingsChanged EntryKind = "settings_changed"
	EntryRoundStarted    EntryKind = "round_started"
	EntryWordSet         EntryKind = "word_set"
	EntryTurn            EntryKind = "turn"
	EntrySignullCreated  EntryKind = "signull_created"
	EntryConnect         EntryKind = "connect"
	EntryIntercept       EntryKind = "intercept"
	EntryResolved        EntryKind = "signull_resolved"
	EntryIntercepted     EntryKind = "signull_intercepted"
	EntryFailed          EntryKind = "signull_failed"
	EntryInactive        EntryKind = "signull_inactive"
	EntryDirectGuess     EntryKind = "direct_guess"
	EntryScore           EntryKind = "score"
	EntryRoundEnded      EntryKind = "round_ended"
	EntryReset           EntryKind = "reset"
	EntryReturnedToLobby EntryKind = "returned_to_lobby"
)

// Entry is one line of the append-only game history. Seq gives the causal
// order across the whole room.
type Entry struct {
	Seq         int       `json:"seq"`
	Kind        EntryKind `json:"kind"`
	Actor       string    `json:"actor,omitempty"`
	ReferenceID string    `json:"referenceId,omitempty"`
	Points      int       `json:"points,omitempty"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

func (r *Room) log(now time.Time, e Entry) {
	e.Seq = r.nextSeq()
	e.At = now
	r.History = append(r.History, e)
}

func (r *Room) name(id string) string {
	if p := r.Players[id]; p != nil {
		return p.Name
	}
	return id
}
