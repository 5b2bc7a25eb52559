package signull

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignull_QuorumFromPercent(t *testing.T) {
	t.Parallel()

	// ann gives the clue, four guessers may connect: ceil(4*51/100) = 3.
	g := started(t, "ELEPHANT", "ann", "bob", "cat", "dan", "eve")
	g.do("ann", "signull PLANT grows in a pot")
	ref := g.ref()
	assert.Equal(t, 3, ref.Required)
	assert.Equal(t, []string{"bob", "cat", "dan", "eve"}, ref.Eligible)
	id := ref.ID

	g.do("bob", "connect "+id+" plant")
	g.do("cat", "connect "+id+" PLANT")
	assert.Equal(t, StatusPending, g.ref().Status)
	assert.Equal(t, 0, g.room.RevealedCount)

	g.do("dan", "connect "+id+" Plant")
	assert.Nil(t, g.room.CurrentReference)
	assert.Equal(t, StatusResolved, g.last().Status)
	assert.Equal(t, 1, g.room.RevealedCount)

	g.reject("eve", "connect "+id+" PLANT", ErrStaleReference)
	_, err := g.exec("eve", "connect "+id+" PLANT")
	assert.EqualError(t, err, "that clue already resolved")

	assert.Equal(t, PointsClueGiver, g.score("ann"))
	assert.Equal(t, PointsConnect, g.score("bob"))
	assert.Equal(t, PointsConnect, g.score("cat"))
	assert.Equal(t, PointsConnect, g.score("dan"))
	assert.Zero(t, g.score("eve"))
	assert.Zero(t, g.score("sam"))
	assert.Equal(t, "bob", g.room.Rotation.ClueGiver)
}

func TestSignull_QuorumByCountIgnoresArrivalOrder(t *testing.T) {
	t.Parallel()

	orders := map[string][]string{
		"wrong first":  {"bob:PLANE", "cat:PLANT", "dan:PLANT"},
		"wrong middle": {"bob:PLANT", "cat:PLANE", "dan:PLANT"},
		"wrong last":   {"bob:PLANT", "cat:PLANT", "dan:PLANE"},
	}
	for name, answers := range orders {
		name, answers := name, answers
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := newGame(t, "ann", "bob", "cat", "dan")
			g.do("sam", "set connects 2")
			g.do("sam", "start")
			g.do("sam", "setword ELEPHANT")
			g.do("ann", "signull PLANT grows in a pot")
			id := g.ref().ID
			require.Equal(t, 2, g.ref().Required)

			correct := 0
			for _, a := range answers {
				who, guess := a[:3], a[4:]
				if g.room.CurrentReference == nil {
					g.reject(who, "connect "+id+" "+guess, ErrStaleReference)
					continue
				}
				g.do(who, "connect "+id+" "+guess)
				if guess == "PLANT" {
					correct++
				}
				if correct < 2 {
					assert.Equal(t, StatusPending, g.ref().Status)
				} else {
					assert.Nil(t, g.room.CurrentReference)
				}
			}
			assert.Equal(t, StatusResolved, g.last().Status)
			assert.Equal(t, 1, g.room.RevealedCount)
		})
	}
}

func TestSignull_Intercept(t *testing.T) {
	t.Parallel()

	t.Run("correct intercept wins the race", func(t *testing.T) {
		g := started(t, "ELEPHANT", "ann", "bob", "cat")
		g.do("ann", "signull PLANT grows in a pot")
		id := g.ref().ID
		g.do("bob", "connect "+id+" PLANT")

		g.do("sam", "intercept "+id+" plant")
		assert.Nil(t, g.room.CurrentReference)
		assert.Equal(t, StatusIntercepted, g.last().Status)
		assert.Equal(t, PointsIntercept, g.score("sam"))
		assert.Equal(t, 0, g.room.RevealedCount)
		assert.Zero(t, g.score("ann"))
		assert.Zero(t, g.score("bob"))

		g.reject("cat", "connect "+id+" PLANT", ErrStaleReference)
		assert.Equal(t, "bob", g.room.Rotation.ClueGiver)
	})

	t.Run("wrong intercept is the setter's only try", func(t *testing.T) {
		g := started(t, "ELEPHANT", "ann", "bob")
		g.do("ann", "signull PLANT grows in a pot")
		id := g.ref().ID
		g.do("sam", "intercept "+id+" PLANE")
		assert.Equal(t, StatusPending, g.ref().Status)
		g.reject("sam", "intercept "+id+" PLANT", ErrDuplicate)

		g.do("bob", "connect "+id+" PLANT")
		assert.Equal(t, StatusResolved, g.last().Status)
	})

	t.Run("only the setter intercepts", func(t *testing.T) {
		g := started(t, "ELEPHANT", "ann", "bob")
		g.do("ann", "signull PLANT grows in a pot")
		g.reject("bob", "intercept "+g.ref().ID+" PLANT", ErrPermission)
	})
}

func TestSignull_Failed(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat")
	g.do("ann", "signull PLANT grows in a pot")
	id := g.ref().ID
	g.do("bob", "connect "+id+" PLANE")
	assert.Equal(t, StatusPending, g.ref().Status)
	g.do("cat", "connect "+id+" PLANK")

	assert.Nil(t, g.room.CurrentReference)
	assert.Equal(t, StatusFailed, g.last().Status)
	assert.Equal(t, 0, g.room.RevealedCount)
	assert.Empty(t, g.room.Ledger())
	assert.Equal(t, "bob", g.room.Rotation.ClueGiver)
}

func TestSignull_DuplicateConnectIsIdempotent(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat", "dan")
	g.do("ann", "signull PLANT grows in a pot")
	id := g.ref().ID
	g.do("bob", "connect "+id+" PLANT")
	once := g.room.Clone()

	g.reject("bob", "connect "+id+" PLANT", ErrDuplicate)
	g.reject("bob", "connect "+id+" PLANE", ErrDuplicate)
	assert.Len(t, g.ref().Connects, 1)
	assert.Equal(t, once.CurrentReference.Connects, g.ref().Connects)
}

func TestSignull_CreateRules(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat")
	g.reject("bob", "signull PLANT grows in a pot", ErrNotYourTurn)
	g.reject("sam", "signull PLANT grows in a pot", ErrPermission)
	g.reject("ann", "signull PL grows in a pot", ErrInvalidWord)
	g.reject("ann", "signull PLANT "+strings.Repeat("x", MaxClueLength+1), ErrValidation)

	g.do("ann", "signull PLANT grows in a pot")
	g.reject("ann", "signull EAGLE bird", &Error{Code: "signull_active"})
	g.reject("ann", "connect "+g.ref().ID+" PLANT", &Error{Code: "own_signull"})
	g.reject("bob", "connect s999 PLANT", &Error{Code: "unknown_signull"})
	g.reject("bob", "connect "+g.ref().ID+" P4ANT", ErrInvalidWord)
}

func TestSignull_PrefixMode(t *testing.T) {
	t.Parallel()

	g := newGame(t, "ann", "bob")
	g.do("sam", "set prefix on")
	g.do("sam", "start")
	g.do("sam", "setword ELEPHANT")

	// nothing revealed yet, so any word is fine
	g.do("ann", "signull PLANT grows in a pot")
	g.do("bob", "connect "+g.ref().ID+" PLANT")
	require.Equal(t, 1, g.room.RevealedCount)

	g.reject("bob", "signull PLANT grows in a pot", &Error{Code: "prefix_mismatch"})
	_, err := g.exec("bob", "signull TIGER stripes")
	assert.EqualError(t, err, `word must start with "E"`)
	g.do("bob", "signull eagle bird of prey")
	assert.Equal(t, "EAGLE", g.ref().Word)
}

func TestSignull_FullRevealWins(t *testing.T) {
	t.Parallel()

	g := started(t, "CAT", "ann", "bob")
	words := []struct{ giver, other, word string }{
		{"ann", "bob", "CAMEL"},
		{"bob", "ann", "CAPER"},
		{"ann", "bob", "CATCH"},
	}
	for i, w := range words {
		g.do(w.giver, "signull "+w.word+" a clue")
		g.do(w.other, "connect "+g.ref().ID+" "+w.word)
		assert.Equal(t, i+1, g.room.RevealedCount)
	}
	assert.Equal(t, PhaseEnded, g.room.Phase)
	assert.Equal(t, WinnerGuessers, g.room.Winner)

	// setter bonus: 5 per revealed letter; nothing left for the guessers
	assert.Equal(t, 15, g.score("sam"))
	assert.Equal(t, 2*PointsClueGiver+PointsConnect, g.score("ann"))
	assert.Equal(t, PointsClueGiver+2*PointsConnect, g.score("bob"))
}

func TestSignull_ClueGiverDisconnect(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat")
	g.do("ann", "signull PLANT grows in a pot")
	id := g.ref().ID

	next, _, err := Apply(g.room, Command{Kind: CmdDisconnect, Actor: "ann", At: t0})
	require.NoError(t, err)
	g.room = next

	assert.Nil(t, g.room.CurrentReference)
	assert.Equal(t, StatusInactive, g.last().Status)
	assert.Equal(t, "bob", g.room.Rotation.ClueGiver)
	g.reject("bob", "connect "+id+" PLANT", ErrStaleReference)
}

func TestSignull_ConnectorLeavingDoesNotAbort(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat", "dan")
	g.do("ann", "signull PLANT grows in a pot")
	id := g.ref().ID
	g.do("bob", "connect "+id+" PLANE")
	g.do("cat", "connect "+id+" PLANK")
	require.Equal(t, StatusPending, g.ref().Status)

	// dan was the last one who could still answer
	g.do("dan", "leave")
	assert.Nil(t, g.room.CurrentReference)
	assert.Equal(t, StatusFailed, g.last().Status)
}

func TestSignull_LateJoinerIsNotEligible(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob")
	g.do("ann", "signull PLANT grows in a pot")
	g.do("cat", "join cat")
	g.reject("cat", "connect "+g.ref().ID+" PLANT", &Error{Code: "not_eligible"})
	assert.Contains(t, g.room.Rotation.Order, "cat")
}

func TestSignull_QuorumChangeIsNotRetroactive(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat", "dan")
	g.do("ann", "signull PLANT grows in a pot")
	require.Equal(t, 2, g.ref().Required)

	g.do("sam", "set connects 1")
	assert.Equal(t, 2, g.ref().Required)
	g.do("bob", "connect "+g.ref().ID+" PLANT")
	assert.Equal(t, StatusPending, g.ref().Status)
	g.do("cat", "connect "+g.ref().ID+" PLANT")
	assert.Equal(t, StatusResolved, g.last().Status)

	g.do("bob", "signull EAGLE bird of prey")
	assert.Equal(t, 1, g.ref().Required)
}

func TestSignull_TerminalStatusNeverChanges(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat")
	g.do("ann", "signull PLANT grows in a pot")
	id := g.ref().ID
	g.do("sam", "intercept "+id+" PLANT")
	archived := g.last()

	g.reject("bob", "connect "+id+" PLANT", ErrStaleReference)
	g.reject("sam", "intercept "+id+" PLANT", ErrStaleReference)
	g.do("bob", "signull EAGLE bird of prey")
	g.do("ann", "connect "+g.ref().ID+" EAGLE")
	g.do("cat", "connect "+g.ref().ID+" EAGLE")

	got, ok := g.room.Reference(id)
	require.True(t, ok)
	assert.Equal(t, archived, got)
	assert.Equal(t, StatusIntercepted, got.Status)
}
