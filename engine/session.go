package engine

import (
	"time"

	"attestbot/quiz"
)

// State identifies a step of the test conversation.
type State string

const (
	StateUnregistered          State = "unregistered"
	StateRegisteringPosition   State = "registering_position"
	StateRegisteringDepartment State = "registering_department"
	StateAwaitingSpecChoice    State = "awaiting_spec_choice"
	StateInProgress            State = "in_progress"
	StateCompleted             State = "completed"
	StateAbandoned             State = "abandoned"
	StateAborted               State = "aborted"
)

// Terminal reports whether no further transitions are accepted from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateAbandoned, StateAborted:
		return true
	}
	return false
}

// Profile is a registered user: position and department are members of the
// configured closed enumerations.
type Profile struct {
	UserID       int64
	Position     string
	Department   string
	RegisteredAt time.Time
}

// TestSession is one user's attempt at a specialization test. It is mutated
// exclusively by the owning Machine and becomes immutable once it reaches a
// terminal state.
type TestSession struct {
	ID        string
	UserID    int64
	Spec      *quiz.Specialization
	Answers   []quiz.Answer
	Cursor    int
	StartedAt time.Time
	State     State
}

// Questions returns the immutable question sequence of the session.
func (s *TestSession) Questions() quiz.QuestionSet { return s.Spec.Questions }
