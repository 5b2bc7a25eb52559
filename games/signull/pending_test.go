package signull

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTable_TrackConfirm(t *testing.T) {
	t.Parallel()

	pt := NewPendingTable(0)
	require.ErrorIs(t, pt.Track(Command{Kind: CmdStart}, t0), &Error{Code: "missing_command_id"})
	require.NoError(t, pt.Track(Command{ID: "c1", Kind: CmdStart}, t0))
	require.ErrorIs(t, pt.Track(Command{ID: "c1", Kind: CmdStart}, t0), ErrConflict)
	assert.Equal(t, 1, pt.Len())

	cmd, ok := pt.Confirm("c1")
	assert.True(t, ok)
	assert.Equal(t, CmdStart, cmd.Kind)
	_, ok = pt.Confirm("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, pt.Len())
}

func TestPendingTable_Expire(t *testing.T) {
	t.Parallel()

	pt := NewPendingTable(DefaultPendingTTL)
	require.NoError(t, pt.Track(Command{ID: "c1", Kind: CmdStart}, t0))
	require.NoError(t, pt.Track(Command{ID: "c2", Kind: CmdEnd}, t0.Add(5*time.Second)))

	assert.Empty(t, pt.Expire(t0.Add(9*time.Second)))

	expired := pt.Expire(t0.Add(10 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, "c1", expired[0].ID)
	assert.Equal(t, 1, pt.Len())

	expired = pt.Expire(t0.Add(time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, "c2", expired[0].ID)
}

func TestPendingTable_Predict(t *testing.T) {
	t.Parallel()

	g := started(t, "ELEPHANT", "ann", "bob", "cat")
	g.do("sam", "set connects 2")
	authoritative := g.room.Clone()

	pt := NewPendingTable(DefaultPendingTTL)
	require.NoError(t, pt.Track(Command{ID: "c1", Kind: CmdSignull, Actor: "ann", Word: "PLANT", Clue: "grows", At: t0}, t0))
	require.NoError(t, pt.Track(Command{ID: "c2", Kind: CmdIntercept, Actor: "ann", RefID: "s1", Word: "PLANT", At: t0}, t0))

	predicted := pt.Predict(authoritative)
	require.NotNil(t, predicted.CurrentReference)
	assert.Equal(t, "PLANT", predicted.CurrentReference.Word)
	assert.Nil(t, predicted.CurrentReference.Intercept, "rejected prediction is skipped")
	assert.Empty(t, cmp.Diff(g.room, authoritative), "prediction must not touch the confirmed room")

	// once the server confirms, the prediction falls back to the snapshot
	pt.Confirm("c1")
	pt.Confirm("c2")
	assert.Empty(t, cmp.Diff(authoritative, pt.Predict(authoritative)))
}
