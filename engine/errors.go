package engine

import "fmt"

// ValidationError reports user input outside the allowed enumerations or an
// action that does not fit the current conversation step. Recoverable: the
// caller re-prompts and the session state is unchanged.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// Code returns the stable error code used in logs.
func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

// SessionClosedError reports an action targeting a session in a terminal
// state. The action is a no-op; the caller informs the user.
type SessionClosedError struct {
	State State
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session already closed (%s)", e.State)
}

// Code returns the stable error code used in logs.
func (e *SessionClosedError) Code() string { return "SESSION_CLOSED" }

// StaleActionError reports an answer submission for a cursor the session has
// already advanced past, e.g. a double-tap on an old keyboard. The session
// is not mutated.
type StaleActionError struct {
	Cursor  int
	Current int
}

func (e *StaleActionError) Error() string {
	return fmt.Sprintf("stale answer for question %d, session is at %d", e.Cursor, e.Current)
}

// Code returns the stable error code used in logs.
func (e *StaleActionError) Code() string { return "STALE_ACTION" }

// BusyError reports that a session's action queue is saturated. The action
// is rejected rather than interleaved with the one in flight.
type BusyError struct {
	UserID int64
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session for user %d is busy", e.UserID)
}

// Code returns the stable error code used in logs.
func (e *BusyError) Code() string { return "SESSION_BUSY" }
