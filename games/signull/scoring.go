package signull

import (
	"fmt"
	"time"
)

const (
	PointsIntercept = 5
	PointsConnect   = 5
	PointsClueGiver = 10

	// PointsPerLetter scales both end-of-round bonuses.
	PointsPerLetter = 5
)

// BonusPolicy decides how the guessers' end-of-round bonus is shared.
type BonusPolicy string

const (
	// BonusEach pays every guesser the full bonus.
	BonusEach BonusPolicy = "each"
	// BonusSplit divides the bonus evenly; the remainder goes one point at a
	// time to guessers in join order.
	BonusSplit BonusPolicy = "split"
)

func (b BonusPolicy) valid() bool {
	return b == BonusEach || b == BonusSplit
}

func (r *Room) award(playerID string, points int, reason, refID string, now time.Time) {
	p := r.Players[playerID]
	if p == nil || points == 0 {
		return
	}
	p.Score += points
	r.log(now, Entry{
		Kind:        EntryScore,
		Actor:       playerID,
		ReferenceID: refID,
		Points:      points,
		Text:        fmt.Sprintf("%s +%d (%s)", p.Name, points, reason),
	})
}

// endRound fixes the winner and pays the end-of-round bonus exactly once,
// on the guessing to ended transition.
func (r *Room) endRound(winner Winner, now time.Time) {
	if r.Phase != PhaseGuessing {
		return
	}
	r.deactivate(now)
	r.Phase = PhaseEnded
	r.Winner = winner
	r.Rotation.ClueGiver = ""

	revealed := min(r.RevealedCount, len(r.SecretWord))
	r.award(r.SetterID, PointsPerLetter*revealed, "letters revealed", "", now)
	shares := guesserBonus(r, PointsPerLetter*(len(r.SecretWord)-revealed))
	for _, g := range r.Guessers() {
		r.award(g.ID, shares[g.ID], "letters not needed", "", now)
	}
	r.log(now, Entry{Kind: EntryRoundEnded, Text: fmt.Sprintf("%s win, the word was %s", winner, r.SecretWord)})
}

// guesserBonus shares total among the guessers according to the room's
// bonus policy.
func guesserBonus(r *Room, total int) map[string]int {
	guessers := r.Guessers()
	out := make(map[string]int, len(guessers))
	if total <= 0 || len(guessers) == 0 {
		return out
	}
	if r.Settings.BonusPolicy != BonusSplit {
		for _, g := range guessers {
			out[g.ID] = total
		}
		return out
	}
	share, rem := total/len(guessers), total%len(guessers)
	for i, g := range guessers {
		out[g.ID] = share
		if i < rem {
			out[g.ID]++
		}
	}
	return out
}

// Ledger returns every point event of the room in the order it was earned.
func (r Room) Ledger() []Entry {
	var out []Entry
	for _, e := range r.History {
		if e.Kind == EntryScore {
			out = append(out, e)
		}
	}
	return out
}
