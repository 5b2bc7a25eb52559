package signull

import "fmt"

// Validate checks the invariants every snapshot must hold. Stores call it on
// documents they load back.
func (r Room) Validate() error {
	switch r.Phase {
	case PhaseLobby, PhaseSettingWord, PhaseGuessing, PhaseEnded:
	default:
		return fmt.Errorf("room %s: unknown phase %q", r.ID, r.Phase)
	}

	if len(r.Players) > 0 {
		setters := 0
		for _, p := range r.Players {
			if p.Role == RoleSetter {
				setters++
			}
		}
		if s := r.Setter(); s == nil || s.Role != RoleSetter || setters != 1 {
			return fmt.Errorf("room %s: want exactly one setter, have %d", r.ID, setters)
		}
		if r.Players[r.HostID] == nil {
			return fmt.Errorf("room %s: host %q is not in the room", r.ID, r.HostID)
		}
	}

	if r.RevealedCount < 0 || r.RevealedCount > len(r.SecretWord) {
		return fmt.Errorf("room %s: revealed %d of %d letters", r.ID, r.RevealedCount, len(r.SecretWord))
	}
	if r.DirectGuessesLeft < 0 {
		return fmt.Errorf("room %s: negative direct guesses", r.ID)
	}

	if ref := r.CurrentReference; ref != nil {
		if ref.Status != StatusPending {
			return fmt.Errorf("room %s: active signull %s is %s", r.ID, ref.ID, ref.Status)
		}
		if len(ref.Connects) > len(ref.Eligible) {
			return fmt.Errorf("room %s: signull %s has %d connects for %d guessers", r.ID, ref.ID, len(ref.Connects), len(ref.Eligible))
		}
	}
	for _, ref := range r.Signulls {
		if !ref.Status.Terminal() {
			return fmt.Errorf("room %s: archived signull %s is still %s", r.ID, ref.ID, ref.Status)
		}
	}
	return nil
}
