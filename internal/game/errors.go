package game

import (
	"errors"
	"fmt"
)

// Category sentinels. Every rejection returned by an engine matches exactly
// one of them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrState      = errors.New("state error")
	ErrInternal   = errors.New("internal error")
)

var (
	ErrInvalidAmount       = newValidation("Invalid bet amount")
	ErrInsufficientBalance = newValidation("Insufficient balance")
	ErrBetTooLarge         = newValidation("Bet exceeds the maximum")
	ErrBetTooSmall         = newValidation("Bet is below the minimum")
	ErrEmptyMessage        = newValidation("Message is empty")
	ErrMessageTooLong      = newValidation("Message is too long")
	ErrMalformedMessage    = newValidation("Malformed message")
	ErrInvalidUser         = newValidation("Invalid user")

	ErrNotAuthenticated = newState("Not authenticated")
	ErrBettingClosed    = newState("Betting is closed")
	ErrAlreadyJoined    = newState("Already joined this round")
	ErrNoActiveBet      = newState("No active bet")
	ErrAlreadyCashedOut = newState("Already cashed out")
	ErrRoundNotActive   = newState("Round is not active")
	ErrRainNotFound     = newState("Rain not found")
	ErrRainActive       = newState("A rain is already active")
	ErrRainHost         = newState("Host cannot join their own rain")
)

// Error is a rejection whose Message is safe to show the player.
type Error struct {
	kind    error
	parent  *Error
	Message string
}

func newValidation(msg string) *Error { return &Error{kind: ErrValidation, Message: msg} }
func newState(msg string) *Error      { return &Error{kind: ErrState, Message: msg} }

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	return target == e.kind || (e.parent != nil && target == e.parent)
}

// detail extends the message with player-safe context. The result still
// matches e with errors.Is.
func (e *Error) detail(format string, args ...any) *Error {
	return &Error{kind: e.kind, parent: e, Message: e.Message + ": " + fmt.Sprintf(format, args...)}
}

// publicMessage hides internal failures behind a generic text.
func publicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error, please retry"
}

// errorKind is the metrics label for err.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrState):
		return "state"
	default:
		return "internal"
	}
}
