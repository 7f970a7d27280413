package engine

import (
	"context"
	"time"

	"attestbot/quiz"
)

// Action is a typed inbound event applied to a user's state machine. User
// actions arrive from the transport; timeout actions are synthesized by the
// timer service onto the same per-session queue.
type Action interface {
	actionName() string
}

// Start begins or restarts the conversation.
type Start struct{}

// SelectPosition answers the position registration prompt.
type SelectPosition struct {
	Position string
}

// SelectDepartment answers the department registration prompt.
type SelectDepartment struct {
	Department string
}

// SelectSpecialization picks the test track and starts the test.
type SelectSpecialization struct {
	SpecID string
}

// SubmitAnswer submits the selected option indices for the question at
// Cursor. A cursor behind the session's current one is stale and rejected.
type SubmitAnswer struct {
	Cursor   int
	Selected []int
}

// Cancel aborts the conversation from any non-terminal state.
type Cancel struct{}

// questionTimeout is synthesized when the per-question deadline elapses.
type questionTimeout struct {
	Cursor int
}

// sessionTimeout is synthesized when the whole-session deadline elapses.
type sessionTimeout struct{}

func (Start) actionName() string                { return "start" }
func (SelectPosition) actionName() string       { return "select_position" }
func (SelectDepartment) actionName() string     { return "select_department" }
func (SelectSpecialization) actionName() string { return "select_specialization" }
func (SubmitAnswer) actionName() string         { return "submit_answer" }
func (Cancel) actionName() string               { return "cancel" }
func (questionTimeout) actionName() string      { return "question_timeout" }
func (sessionTimeout) actionName() string       { return "session_timeout" }

// QuestionView is what the presenter needs to render one question.
type QuestionView struct {
	SpecName  string
	Index     int
	Total     int
	Question  quiz.Question
	TimeLimit time.Duration
}

// Presenter renders outbound prompts and results. Rendering details are the
// transport's concern; the engine only decides what to show and when.
type Presenter interface {
	PromptPosition(ctx context.Context, userID int64, positions []string) error
	PromptDepartment(ctx context.Context, userID int64, departments []string) error
	PromptSpecializations(ctx context.Context, userID int64, specs []*quiz.Specialization) error
	ShowQuestion(ctx context.Context, userID int64, view QuestionView) error
	NotifyQuestionTimeout(ctx context.Context, userID int64, index int) error
	ShowResult(ctx context.Context, userID int64, result quiz.GradeResult, saved bool) error
	NotifyAbandoned(ctx context.Context, userID int64) error
	NotifyAborted(ctx context.Context, userID int64) error
}

// Store is the persistence contract the engine depends on. Implementations
// must be safe for concurrent calls from different sessions.
type Store interface {
	SaveProfile(ctx context.Context, p Profile) error
	// LoadProfile returns nil with no error when the user is not registered.
	LoadProfile(ctx context.Context, userID int64) (*Profile, error)
	SaveSession(ctx context.Context, session *TestSession, result quiz.GradeResult) error
}

// Timers arms and releases the deadlines of one session. Implementations
// must make Stop calls idempotent; a timer firing concurrently with its Stop
// resolves at the machine by queue order, not at the timer.
type Timers interface {
	ArmQuestion(cursor int, d time.Duration)
	StopQuestion()
	ArmSession(d time.Duration)
	StopAll()
}
