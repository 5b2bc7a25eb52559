package signull

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusResolved    Status = "resolved"
	StatusIntercepted Status = "intercepted"
	StatusFailed      Status = "failed"
	StatusInactive    Status = "inactive"
)

func (s Status) Terminal() bool {
	return s != StatusPending
}

// Connect is one guesser's answer to a signull.
type Connect struct {
	GuesserID string    `json:"guesserId"`
	Guess     string    `json:"guess"`
	Correct   bool      `json:"correct"`
	At        time.Time `json:"at"`
}

// Intercept is the setter's single answer to a signull.
type Intercept struct {
	Guess   string    `json:"guess"`
	Correct bool      `json:"correct"`
	At      time.Time `json:"at"`
}

// Reference is a signull. Required and Eligible are frozen when it is
// created, so later roster or quorum changes never move the goalposts.
type Reference struct {
	ID          string     `json:"id"`
	ClueGiverID string     `json:"clueGiverId"`
	Word        string     `json:"word"`
	Clue        string     `json:"clue"`
	Status      Status     `json:"status"`
	Connects    []Connect  `json:"connects"`
	Intercept   *Intercept `json:"intercept,omitempty"`
	Required    int        `json:"required"`
	Eligible    []string   `json:"eligible"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClosedAt    time.Time  `json:"closedAt,omitzero"`
}

func (ref Reference) clone() Reference {
	out := ref
	out.Connects = slices.Clone(ref.Connects)
	out.Eligible = slices.Clone(ref.Eligible)
	if ref.Intercept != nil {
		ic := *ref.Intercept
		out.Intercept = &ic
	}
	return out
}

// CorrectConnects counts the connects that matched the reference word.
func (ref *Reference) CorrectConnects() int {
	n := 0
	for _, c := range ref.Connects {
		if c.Correct {
			n++
		}
	}
	return n
}

func (ref *Reference) answered(playerID string) bool {
	return slices.ContainsFunc(ref.Connects, func(c Connect) bool { return c.GuesserID == playerID })
}

// Reference returns the active or archived signull with id.
func (r *Room) Reference(id string) (Reference, bool) {
	if r.CurrentReference != nil && r.CurrentReference.ID == id {
		return *r.CurrentReference, true
	}
	for _, ref := range r.Signulls {
		if ref.ID == id {
			return ref, true
		}
	}
	return Reference{}, false
}

// activeReference resolves an answer target. Anything other than the
// pending signull is stale.
func (r *Room) activeReference(id string) (*Reference, error) {
	if ref := r.CurrentReference; ref != nil && ref.ID == id {
		return ref, nil
	}
	if ref, ok := r.Reference(id); ok {
		return nil, staleError("already_"+string(ref.Status), "that clue already %s", ref.Status)
	}
	return nil, staleError("unknown_signull", "no signull %q", id)
}

func (r *Room) createReference(actor, word, clue string, now time.Time) error {
	if r.Phase != PhaseGuessing {
		return phaseError(PhaseGuessing, r.Phase)
	}
	p := r.Players[actor]
	if p == nil || p.Role != RoleGuesser {
		return permissionError("guessers_only", "only guessers can send signulls")
	}
	if r.CurrentReference != nil {
		return conflictError("signull_active", "signull %s is still active", r.CurrentReference.ID)
	}
	if !r.Rotation.canCreate(actor) {
		return ErrNotYourTurn
	}

	word, err := normalizeWord(word)
	if err != nil {
		return err
	}
	if r.Settings.PrefixMode {
		prefix := r.RevealedPrefix()
		if !strings.HasPrefix(word, prefix) {
			return validationError("prefix_mismatch", "word must start with %q", prefix)
		}
	}
	clue = strings.TrimSpace(clue)
	if clue == "" {
		return validationError("empty_clue", "clue must not be empty")
	}
	if len(clue) > MaxClueLength {
		return validationError("clue_too_long", "clue must be at most %d characters", MaxClueLength)
	}

	var eligible []string
	for _, g := range r.ActiveGuessers() {
		if g.ID != actor {
			eligible = append(eligible, g.ID)
		}
	}
	if len(eligible) == 0 {
		return conflictError("no_connectors", "nobody is online to connect")
	}

	if r.Rotation.ClueGiver == "" {
		if err := r.Rotation.volunteer(r, actor); err != nil {
			return err
		}
	}

	r.CurrentReference = &Reference{
		ID:          fmt.Sprintf("s%d", r.nextSeq()),
		ClueGiverID: actor,
		Word:        word,
		Clue:        clue,
		Status:      StatusPending,
		Required:    r.Settings.Quorum.Required(len(eligible)),
		Eligible:    eligible,
		CreatedAt:   now,
	}
	r.log(now, Entry{
		Kind:        EntrySignullCreated,
		Actor:       actor,
		ReferenceID: r.CurrentReference.ID,
		Text:        fmt.Sprintf("%s sent a signull: %s", p.Name, clue),
	})
	return nil
}

func (r *Room) intercept(actor, id, guess string, now time.Time) error {
	ref, err := r.activeReference(id)
	if err != nil {
		return err
	}
	if actor != r.SetterID {
		return permissionError("setter_only", "only the setter can intercept")
	}
	if ref.Intercept != nil {
		return ErrDuplicate
	}
	guess, err = normalizeWord(guess)
	if err != nil {
		return err
	}

	correct := guess == ref.Word
	ref.Intercept = &Intercept{Guess: guess, Correct: correct, At: now}
	r.log(now, Entry{Kind: EntryIntercept, Actor: actor, ReferenceID: ref.ID, Text: r.name(actor) + " tried to intercept"})

	if !correct {
		return nil
	}
	r.award(actor, PointsIntercept, "intercept", ref.ID, now)
	r.closeReference(StatusIntercepted, now)
	r.Rotation.advance(r)
	return nil
}

func (r *Room) connect(actor, id, guess string, now time.Time) error {
	ref, err := r.activeReference(id)
	if err != nil {
		return err
	}
	p := r.Players[actor]
	if p == nil || p.Role != RoleGuesser {
		return permissionError("guessers_only", "only guessers can connect")
	}
	if actor == ref.ClueGiverID {
		return permissionError("own_signull", "you cannot connect to your own signull")
	}
	if ref.answered(actor) {
		return ErrDuplicate
	}
	if !slices.Contains(ref.Eligible, actor) {
		return permissionError("not_eligible", "you joined after this signull was sent")
	}
	guess, err = normalizeWord(guess)
	if err != nil {
		return err
	}

	ref.Connects = append(ref.Connects, Connect{
		GuesserID: actor,
		Guess:     guess,
		Correct:   guess == ref.Word,
		At:        now,
	})
	r.log(now, Entry{Kind: EntryConnect, Actor: actor, ReferenceID: ref.ID, Text: p.Name + " connected"})

	if ref.CorrectConnects() >= ref.Required {
		r.resolveReference(now)
		return nil
	}
	r.checkFailed(now)
	return nil
}

// resolveReference reveals a letter and pays the clue giver and every
// guesser whose connect was correct.
func (r *Room) resolveReference(now time.Time) {
	ref := r.CurrentReference
	r.RevealedCount = min(r.RevealedCount+1, len(r.SecretWord))
	r.award(ref.ClueGiverID, PointsClueGiver, "signull resolved", ref.ID, now)
	for _, c := range ref.Connects {
		if c.Correct {
			r.award(c.GuesserID, PointsConnect, "connect", ref.ID, now)
		}
	}
	r.closeReference(StatusResolved, now)
	r.Rotation.advance(r)

	if r.RevealedCount >= len(r.SecretWord) {
		r.endRound(WinnerGuessers, now)
	}
}

// checkFailed fails the active signull once every eligible guesser still
// online has answered without reaching the quorum.
func (r *Room) checkFailed(now time.Time) {
	ref := r.CurrentReference
	if ref == nil {
		return
	}
	for _, id := range ref.Eligible {
		p := r.Players[id]
		if p == nil || !p.IsOnline || p.Role != RoleGuesser {
			continue
		}
		if !ref.answered(id) {
			return
		}
	}
	if ref.CorrectConnects() >= ref.Required {
		return
	}
	r.closeReference(StatusFailed, now)
	r.Rotation.advance(r)
}

// deactivate abandons the active signull without scoring.
func (r *Room) deactivate(now time.Time) {
	if r.CurrentReference == nil {
		return
	}
	r.closeReference(StatusInactive, now)
}

func (r *Room) closeReference(status Status, now time.Time) {
	ref := r.CurrentReference
	ref.Status = status
	ref.ClosedAt = now
	r.Signulls = append(r.Signulls, *ref)
	r.CurrentReference = nil

	text := fmt.Sprintf("signull %s %s", ref.ID, status)
	if status != StatusInactive {
		text = fmt.Sprintf("signull %s %s (%s)", ref.ID, status, ref.Word)
	}
	r.log(now, Entry{Kind: EntryKind("signull_" + string(status)), Actor: ref.ClueGiverID, ReferenceID: ref.ID, Text: text})
}

// normalizeWord trims and upper-cases a word and checks its shape: letters
// only, MinWordLength to MaxWordLength long.
func normalizeWord(s string) (string, error) {
	w := strings.ToUpper(strings.TrimSpace(s))
	if len(w) < MinWordLength || len(w) > MaxWordLength {
		return "", &Error{Kind: KindValidation, Code: ErrInvalidWord.Code,
			Msg: fmt.Sprintf("word must be %d-%d letters", MinWordLength, MaxWordLength)}
	}
	for _, c := range w {
		if c < 'A' || c > 'Z' {
			return "", &Error{Kind: KindValidation, Code: ErrInvalidWord.Code, Msg: "word must contain letters only"}
		}
	}
	return w, nil
}
