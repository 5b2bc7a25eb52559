package signull

import "slices"

type TurnMode string

const (
	// TurnRoundRobin hands clue-giving rights around the guessers in join
	// order, one step per finished signull.
	TurnRoundRobin TurnMode = "round_robin"
	// TurnSignull leaves the turn open; the first guesser to volunteer takes it.
	TurnSignull TurnMode = "signull"
)

func (m TurnMode) valid() bool {
	return m == TurnRoundRobin || m == TurnSignull
}

// Rotation tracks who may create the next signull.
type Rotation struct {
	Mode      TurnMode `json:"mode"`
	Order     []string `json:"order"`
	Index     int      `json:"index"`
	ClueGiver string   `json:"clueGiverId"`
}

// start freezes the turn order for a round. Guessers are ordered by join
// sequence, which also breaks ties between players who joined together. Each
// round starts one step further along so the first turn moves around.
func (rt *Rotation) start(r *Room) {
	rt.Mode = r.Settings.TurnMode
	rt.Order = nil
	for _, p := range r.Guessers() {
		rt.Order = append(rt.Order, p.ID)
	}
	rt.ClueGiver = ""
	rt.Index = -1
	if len(rt.Order) == 0 {
		return
	}
	if rt.Mode == TurnRoundRobin {
		rt.Index = (r.Round - 1) % len(rt.Order)
		rt.Index--
		rt.assignNext(r)
	}
}

// advance moves to the next clue giver after a signull reaches a terminal
// status.
func (rt *Rotation) advance(r *Room) {
	if rt.Mode == TurnSignull {
		rt.ClueGiver = ""
		return
	}
	rt.assignNext(r)
}

// assignNext walks forward from Index to the next online guesser. It leaves
// ClueGiver empty when nobody is eligible.
func (rt *Rotation) assignNext(r *Room) {
	rt.ClueGiver = ""
	n := len(rt.Order)
	for i := 1; i <= n; i++ {
		next := (rt.Index + i) % n
		if next < 0 {
			next += n
		}
		if p := r.Players[rt.Order[next]]; p != nil && p.IsOnline && p.Role == RoleGuesser {
			rt.Index = next
			rt.ClueGiver = p.ID
			return
		}
	}
}

// volunteer claims an open turn in signull mode.
func (rt *Rotation) volunteer(r *Room, playerID string) error {
	if rt.Mode != TurnSignull {
		return permissionError("not_signull_mode", "turns rotate in order; volunteering is off")
	}
	if rt.ClueGiver == playerID {
		return nil
	}
	if rt.ClueGiver != "" || r.CurrentReference != nil {
		return ErrNotYourTurn
	}
	rt.ClueGiver = playerID
	if i := slices.Index(rt.Order, playerID); i >= 0 {
		rt.Index = i
	}
	return nil
}

// join appends a late guesser to the end of the order.
func (rt *Rotation) join(r *Room, playerID string) {
	if !slices.Contains(rt.Order, playerID) {
		rt.Order = append(rt.Order, playerID)
	}
	if rt.Mode == TurnRoundRobin && rt.ClueGiver == "" && r.CurrentReference == nil {
		rt.assignNext(r)
	}
}

// drop handles a guesser going offline or leaving. If they held the turn and
// no signull is active, round robin skips ahead and signull mode opens the
// turn to volunteers.
func (rt *Rotation) drop(r *Room, playerID string) {
	if rt.ClueGiver != playerID || r.CurrentReference != nil {
		return
	}
	rt.advance(r)
}

func (rt *Rotation) canCreate(playerID string) bool {
	if rt.ClueGiver == playerID {
		return true
	}
	return rt.Mode == TurnSignull && rt.ClueGiver == ""
}
