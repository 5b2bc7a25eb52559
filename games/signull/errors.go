package signull

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected command. No kind is fatal to the room: a
// rejected command leaves the snapshot exactly as it was.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindPermission     Kind = "permission"
	KindPhase          Kind = "phase"
	KindStaleReference Kind = "stale_reference"
	KindConflict       Kind = "conflict"
)

// Error is returned for every rejected command. Code names the specific
// rejection ("not_your_turn", "prefix_mismatch", ...) so front-ends can
// surface each case distinctly.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches sentinels by code when the target has one, by kind otherwise.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation     = &Error{Kind: KindValidation, Msg: "invalid input"}
	ErrPermission     = &Error{Kind: KindPermission, Msg: "not allowed"}
	ErrPhase          = &Error{Kind: KindPhase, Msg: "wrong phase"}
	ErrStaleReference = &Error{Kind: KindStaleReference, Msg: "signull is no longer active"}
	ErrConflict       = &Error{Kind: KindConflict, Msg: "conflicting command"}

	ErrInvalidWord = &Error{Kind: KindValidation, Code: "invalid_word", Msg: "invalid word"}
	ErrNotYourTurn = &Error{Kind: KindPermission, Code: "not_your_turn", Msg: "not your turn"}
	ErrDuplicate   = &Error{Kind: KindConflict, Code: "duplicate_answer", Msg: "you already answered this signull"}
	ErrRoomFull    = &Error{Kind: KindConflict, Code: "room_full", Msg: "room is full"}
)

// KindOf reports the kind of err, or "" for errors the engine did not produce.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func validationError(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

func permissionError(code, format string, args ...any) *Error {
	return newError(KindPermission, code, format, args...)
}

func phaseError(want Phase, have Phase) *Error {
	return newError(KindPhase, "wrong_phase", "not allowed during %s (needs %s)", have, want)
}

func staleError(code, format string, args ...any) *Error {
	return newError(KindStaleReference, code, format, args...)
}

func conflictError(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}
