package game

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every rejection returned by a Session matches exactly one of these via errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPhase  = errors.New("invalid phase")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidTurn   = errors.New("invalid turn")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrRoomFull      = errors.New("room full")
	ErrInvariant     = errors.New("invariant violated")
)

// Error is a rejected operation. State is never mutated when an Error is returned.
type Error struct {
	Kind error
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

// Unwrap exposes the kind so callers can use errors.Is(err, game.ErrInvalidTurn).
func (e *Error) Unwrap() error {
	return e.Kind
}

func reject(op string, kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindName returns a stable, client-facing name for the kind carried by err.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidTurn):
		return "invalid_turn"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	default:
		return "internal"
	}
}
