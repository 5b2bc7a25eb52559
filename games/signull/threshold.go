package signull

import (
	"encoding/json"
	"fmt"
)

// Quorum is the agreement requirement for a signull. It is stored in exactly
// one form, either a percentage of the eligible guessers or an absolute count;
// the other form is always derived.
type Quorum struct {
	ByCount bool
	Value   int
}

func PercentQuorum(p int) Quorum { return Quorum{Value: p} }
func CountQuorum(n int) Quorum   { return Quorum{ByCount: true, Value: n} }

// Required resolves the quorum against g eligible guessers.
func (q Quorum) Required(g int) int {
	if q.ByCount {
		return clampRequired(q.Value, g)
	}
	return CountFromPercent(g, q.Value)
}

// Percent is the display form of the quorum for g eligible guessers.
func (q Quorum) Percent(g int) int {
	if q.ByCount {
		return PercentFromCount(q.Required(g), g)
	}
	return q.Value
}

func (q Quorum) validate() error {
	if q.ByCount {
		if q.Value < 1 || q.Value > MaxRoomPlayers {
			return validationError("bad_quorum", "connects required must be between 1 and %d", MaxRoomPlayers)
		}
		return nil
	}
	if q.Value < 0 || q.Value > 100 {
		return validationError("bad_quorum", "threshold must be between 0 and 100")
	}
	return nil
}

func (q Quorum) String() string {
	if q.ByCount {
		return fmt.Sprintf("%d connects", q.Value)
	}
	return fmt.Sprintf("%d%%", q.Value)
}

type quorumJSON struct {
	MajorityThreshold *int `json:"majorityThreshold,omitempty"`
	ConnectsRequired  *int `json:"connectsRequired,omitempty"`
}

func (q Quorum) MarshalJSON() ([]byte, error) {
	v := q.Value
	if q.ByCount {
		return json.Marshal(quorumJSON{ConnectsRequired: &v})
	}
	return json.Marshal(quorumJSON{MajorityThreshold: &v})
}

func (q *Quorum) UnmarshalJSON(data []byte) error {
	var raw quorumJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.ConnectsRequired != nil:
		*q = CountQuorum(*raw.ConnectsRequired)
	case raw.MajorityThreshold != nil:
		*q = PercentQuorum(*raw.MajorityThreshold)
	default:
		*q = PercentQuorum(DefaultMajority)
	}
	return nil
}

// CountFromPercent converts a percentage of g guessers into a count,
// rounding up and clamping to [1, g]. With no guessers one agreement is
// still required.
func CountFromPercent(g, p int) int {
	if g <= 0 {
		return 1
	}
	return clampRequired((g*p+99)/100, g)
}

// PercentFromCount is the inverse used for display: ceil(r/g*100). Feeding
// the result back into CountFromPercent with the same g yields r again as
// long as g <= 100.
func PercentFromCount(r, g int) int {
	if g <= 0 {
		return 100
	}
	r = clampRequired(r, g)
	return (r*100 + g - 1) / g
}

func clampRequired(r, g int) int {
	if g < 1 {
		g = 1
	}
	return max(1, min(r, g))
}
