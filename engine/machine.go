package engine

import (
	"context"
	"log/slog"
	"time"

	"attestbot/core/config"
	"attestbot/core/logger"
	"attestbot/quiz"
)

// Deps bundles everything a Machine needs besides its timers. Shared across
// all machines; every field must be safe for concurrent use.
type Deps struct {
	Bank      *quiz.Bank
	Scale     quiz.Scale
	Store     Store
	Presenter Presenter
	// ZeroAnswerPolicy decides what a session timeout with no recorded
	// answers produces: config.ZeroAnswerGrade or config.ZeroAnswerAbandon.
	ZeroAnswerPolicy string
	// Now and NewID are injectable for tests; nil means real clock / uuid.
	Now   func() time.Time
	NewID func() string
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Machine drives one user's conversation. All methods are called from the
// single goroutine owning the user's action queue; the struct itself holds
// no locks.
type Machine struct {
	userID  int64
	state   State
	profile *Profile
	// draftPosition survives between the two registration steps.
	draftPosition string
	session       *TestSession
	// shownAt is when the current question was presented.
	shownAt time.Time
	deps    Deps
	timers  Timers
}

// NewMachine returns a machine in the unregistered state. The profile, if
// any, is loaded lazily on the first Start.
func NewMachine(userID int64, deps Deps, timers Timers) *Machine {
	return &Machine{
		userID: userID,
		state:  StateUnregistered,
		deps:   deps,
		timers: timers,
	}
}

// State returns the current conversation state.
func (m *Machine) State() State { return m.state }

// Apply executes one action against the machine. Recoverable rejections come
// back as typed errors with the session untouched; stale timeouts are
// discarded silently.
func (m *Machine) Apply(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case Start:
		return m.start(ctx)
	case SelectPosition:
		return m.selectPosition(ctx, a)
	case SelectDepartment:
		return m.selectDepartment(ctx, a)
	case SelectSpecialization:
		return m.selectSpecialization(ctx, a)
	case SubmitAnswer:
		return m.submitAnswer(ctx, a)
	case Cancel:
		return m.cancel(ctx)
	case questionTimeout:
		return m.questionTimedOut(ctx, a.Cursor)
	case sessionTimeout:
		return m.sessionTimedOut(ctx)
	default:
		return &ValidationError{Field: "action", Value: action.actionName()}
	}
}

// start resets the conversation. An unfinished session is discarded without
// persisting; a registered user skips straight to the specialization choice.
func (m *Machine) start(ctx context.Context) error {
	m.timers.StopAll()
	if m.session != nil && m.session.State == StateInProgress {
		logger.Info(ctx, "engine", "session.discarded",
			slog.Int64("user_id", m.userID),
			slog.String("session_id", m.session.ID),
			slog.String("status", "discarded"))
	}
	m.session = nil

	if m.profile == nil {
		p, err := m.deps.Store.LoadProfile(ctx, m.userID)
		if err != nil {
			return err
		}
		m.profile = p
	}
	if m.profile != nil {
		m.transition(ctx, StateAwaitingSpecChoice)
		return m.deps.Presenter.PromptSpecializations(ctx, m.userID, m.deps.Bank.ListSpecializations())
	}
	m.transition(ctx, StateRegisteringPosition)
	return m.deps.Presenter.PromptPosition(ctx, m.userID, m.deps.Bank.Positions())
}

func (m *Machine) selectPosition(ctx context.Context, a SelectPosition) error {
	if err := m.expect(StateRegisteringPosition, a); err != nil {
		return err
	}
	if !m.deps.Bank.HasPosition(a.Position) {
		return &ValidationError{Field: "position", Value: a.Position}
	}
	m.draftPosition = a.Position
	m.transition(ctx, StateRegisteringDepartment)
	return m.deps.Presenter.PromptDepartment(ctx, m.userID, m.deps.Bank.Departments())
}

func (m *Machine) selectDepartment(ctx context.Context, a SelectDepartment) error {
	if err := m.expect(StateRegisteringDepartment, a); err != nil {
		return err
	}
	if !m.deps.Bank.HasDepartment(a.Department) {
		return &ValidationError{Field: "department", Value: a.Department}
	}
	p := Profile{
		UserID:       m.userID,
		Position:     m.draftPosition,
		Department:   a.Department,
		RegisteredAt: m.deps.now(),
	}
	if err := m.deps.Store.SaveProfile(ctx, p); err != nil {
		return err
	}
	m.profile = &p
	m.draftPosition = ""
	logger.Info(ctx, "engine", "profile.registered",
		slog.Int64("user_id", m.userID),
		slog.String("position", p.Position),
		slog.String("department", p.Department))
	m.transition(ctx, StateAwaitingSpecChoice)
	return m.deps.Presenter.PromptSpecializations(ctx, m.userID, m.deps.Bank.ListSpecializations())
}

func (m *Machine) selectSpecialization(ctx context.Context, a SelectSpecialization) error {
	if err := m.expect(StateAwaitingSpecChoice, a); err != nil {
		return err
	}
	spec, err := m.deps.Bank.Get(a.SpecID)
	if err != nil {
		return err
	}
	m.session = &TestSession{
		ID:        m.newID(),
		UserID:    m.userID,
		Spec:      spec,
		Answers:   make([]quiz.Answer, 0, len(spec.Questions)),
		StartedAt: m.deps.now(),
		State:     StateInProgress,
	}
	m.transition(ctx, StateInProgress)
	logger.Info(ctx, "engine", "session.start",
		slog.Int64("user_id", m.userID),
		slog.String("session_id", m.session.ID),
		slog.String("spec", spec.ID),
		slog.Int("questions", len(spec.Questions)))
	m.timers.ArmSession(spec.SessionTime)
	return m.present(ctx)
}

func (m *Machine) submitAnswer(ctx context.Context, a SubmitAnswer) error {
	if err := m.expect(StateInProgress, a); err != nil {
		return err
	}
	if a.Cursor != m.session.Cursor {
		return &StaleActionError{Cursor: a.Cursor, Current: m.session.Cursor}
	}
	if len(a.Selected) == 0 {
		return &ValidationError{Field: "answer", Value: "empty selection"}
	}
	q := m.session.Questions()[m.session.Cursor]
	for _, idx := range a.Selected {
		if idx < 0 || idx >= len(q.Options) {
			return &ValidationError{Field: "answer", Value: "option out of range"}
		}
	}
	m.timers.StopQuestion()
	m.session.Answers = append(m.session.Answers, quiz.Answer{
		Selected: a.Selected,
		Elapsed:  m.deps.now().Sub(m.shownAt),
	})
	return m.advance(ctx)
}

func (m *Machine) questionTimedOut(ctx context.Context, cursor int) error {
	if m.state != StateInProgress || cursor != m.session.Cursor {
		// Lost the race against an answer already applied. Drop it.
		logger.Debug(ctx, "engine", "timeout.stale",
			slog.Int64("user_id", m.userID),
			slog.Int("cursor", cursor),
			slog.String("status", "discarded"))
		return nil
	}
	m.session.Answers = append(m.session.Answers, quiz.Answer{
		TimedOut: true,
		Elapsed:  m.session.Spec.QuestionTime,
	})
	logger.Info(ctx, "engine", "question.timeout",
		slog.Int64("user_id", m.userID),
		slog.String("session_id", m.session.ID),
		slog.Int("cursor", cursor))
	if err := m.deps.Presenter.NotifyQuestionTimeout(ctx, m.userID, cursor); err != nil {
		logger.Warn(ctx, "engine", "present.fail", slog.Any("err", err))
	}
	return m.advance(ctx)
}

func (m *Machine) sessionTimedOut(ctx context.Context) error {
	if m.state != StateInProgress {
		logger.Debug(ctx, "engine", "timeout.stale",
			slog.Int64("user_id", m.userID),
			slog.String("status", "discarded"))
		return nil
	}
	m.timers.StopAll()
	answered := 0
	for _, ans := range m.session.Answers {
		if !ans.TimedOut {
			answered++
		}
	}
	logger.Info(ctx, "engine", "session.timeout",
		slog.Int64("user_id", m.userID),
		slog.String("session_id", m.session.ID),
		slog.Int("count", answered))
	if answered == 0 && m.deps.ZeroAnswerPolicy != config.ZeroAnswerGrade {
		m.session.State = StateAbandoned
		m.transition(ctx, StateAbandoned)
		return m.deps.Presenter.NotifyAbandoned(ctx, m.userID)
	}
	return m.finish(ctx)
}

// cancel aborts from any non-terminal state. Nothing is persisted.
func (m *Machine) cancel(ctx context.Context) error {
	if m.state.Terminal() {
		return &SessionClosedError{State: m.state}
	}
	m.timers.StopAll()
	if m.session != nil {
		m.session.State = StateAborted
	}
	m.draftPosition = ""
	m.transition(ctx, StateAborted)
	return m.deps.Presenter.NotifyAborted(ctx, m.userID)
}

// advance moves the cursor and either presents the next question or grades.
func (m *Machine) advance(ctx context.Context) error {
	m.session.Cursor++
	if m.session.Cursor >= len(m.session.Questions()) {
		m.timers.StopAll()
		return m.finish(ctx)
	}
	return m.present(ctx)
}

func (m *Machine) present(ctx context.Context) error {
	spec := m.session.Spec
	m.shownAt = m.deps.now()
	m.timers.ArmQuestion(m.session.Cursor, spec.QuestionTime)
	return m.deps.Presenter.ShowQuestion(ctx, m.userID, QuestionView{
		SpecName:  spec.Name,
		Index:     m.session.Cursor,
		Total:     len(spec.Questions),
		Question:  spec.Questions[m.session.Cursor],
		TimeLimit: spec.QuestionTime,
	})
}

// finish grades the session and persists it. A failed save is reported to
// the user but does not undo completion.
func (m *Machine) finish(ctx context.Context) error {
	result := m.deps.Scale.Score(m.session.Questions(), m.session.Answers)
	m.session.State = StateCompleted
	m.transition(ctx, StateCompleted)

	saved := true
	if err := m.deps.Store.SaveSession(ctx, m.session, result); err != nil {
		saved = false
		logger.Error(ctx, "engine", "session.save",
			slog.Int64("user_id", m.userID),
			slog.String("session_id", m.session.ID),
			slog.String("status", "unsaved"),
			slog.Any("err", err))
	}
	logger.Info(ctx, "engine", "session.complete",
		slog.Int64("user_id", m.userID),
		slog.String("session_id", m.session.ID),
		slog.String("spec", m.session.Spec.ID),
		slog.Int("correct", result.Correct),
		slog.Int("total", result.Total),
		slog.Int("percent", result.Percent),
		slog.String("grade", result.Grade))
	return m.deps.Presenter.ShowResult(ctx, m.userID, result, saved)
}

// expect rejects an action that does not fit the current state. Terminal
// states get the dedicated closed error so the transport can answer with a
// restart hint instead of a generic rejection.
func (m *Machine) expect(want State, a Action) error {
	if m.state == want {
		return nil
	}
	if m.state.Terminal() {
		return &SessionClosedError{State: m.state}
	}
	return &ValidationError{Field: "action", Value: a.actionName()}
}

func (m *Machine) transition(ctx context.Context, to State) {
	from := m.state
	m.state = to
	logger.Debug(ctx, "engine", "session.transition",
		slog.Int64("user_id", m.userID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
}

func (m *Machine) newID() string {
	if m.deps.NewID != nil {
		return m.deps.NewID()
	}
	return newSessionID()
}
