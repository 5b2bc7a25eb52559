package signull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want Command
	}{
		{"create Sam Smith", Command{Kind: CmdCreate, Name: "Sam Smith"}},
		{"JOIN ann", Command{Kind: CmdJoin, Name: "ann"}},
		{"start", Command{Kind: CmdStart}},
		{"setword elephant", Command{Kind: CmdSetWord, Word: "elephant"}},
		{"signull PLANT  grows in   a pot", Command{Kind: CmdSignull, Word: "PLANT", Clue: "grows in a pot"}},
		{"connect s3 plant", Command{Kind: CmdConnect, RefID: "s3", Word: "plant"}},
		{"intercept s3 plant", Command{Kind: CmdIntercept, RefID: "s3", Word: "plant"}},
		{"guess ELEPHANT", Command{Kind: CmdGuess, Word: "ELEPHANT"}},
		{"setter Ann Lee", Command{Kind: CmdSetter, Target: "Ann Lee"}},
		{"set Mode Signull", Command{Kind: CmdSet, Key: "mode", Value: "signull"}},
		{"status", Command{Kind: CmdStatus}},
		{"signulls", Command{Kind: CmdSignulls}},
	}
	for _, tt := range tests {
		got, err := ParseCommand("p1", tt.line)
		require.NoError(t, err, tt.line)
		tt.want.Actor = "p1"
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestParseCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		code string
	}{
		{"", "empty_command"},
		{"   ", "empty_command"},
		{"dance", "unknown_command"},
		{"join", "usage"},
		{"signull PLANT", "usage"},
		{"connect s1", "usage"},
		{"set threshold", "usage"},
	}
	for _, tt := range tests {
		_, err := ParseCommand("p1", tt.line)
		require.Error(t, err, tt.line)
		assert.ErrorIs(t, err, ErrValidation, tt.line)
		assert.ErrorIs(t, err, &Error{Code: tt.code}, tt.line)
	}
}

func TestCommandKind_IsQuery(t *testing.T) {
	t.Parallel()
	assert.True(t, CmdStatus.IsQuery())
	assert.True(t, CmdPlayers.IsQuery())
	assert.False(t, CmdConnect.IsQuery())
}
