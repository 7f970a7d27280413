package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestbot/core/config"
	"attestbot/quiz"
)

type fakeTimers struct {
	armedQuestion []int
	armedSession  []time.Duration
	stopQuestion  int
	stopAll       int
}

func (f *fakeTimers) ArmQuestion(cursor int, _ time.Duration) {
	f.armedQuestion = append(f.armedQuestion, cursor)
}
func (f *fakeTimers) StopQuestion()              { f.stopQuestion++ }
func (f *fakeTimers) ArmSession(d time.Duration) { f.armedSession = append(f.armedSession, d) }
func (f *fakeTimers) StopAll()                   { f.stopAll++ }

type recorder struct {
	events  []string
	views   []QuestionView
	results []quiz.GradeResult
	saved   []bool
}

func (r *recorder) log(event string) { r.events = append(r.events, event) }

func (r *recorder) PromptPosition(context.Context, int64, []string) error {
	r.log("prompt_position")
	return nil
}
func (r *recorder) PromptDepartment(context.Context, int64, []string) error {
	r.log("prompt_department")
	return nil
}
func (r *recorder) PromptSpecializations(context.Context, int64, []*quiz.Specialization) error {
	r.log("prompt_specs")
	return nil
}
func (r *recorder) ShowQuestion(_ context.Context, _ int64, v QuestionView) error {
	r.log(fmt.Sprintf("question_%d", v.Index))
	r.views = append(r.views, v)
	return nil
}
func (r *recorder) NotifyQuestionTimeout(_ context.Context, _ int64, index int) error {
	r.log(fmt.Sprintf("timeout_%d", index))
	return nil
}
func (r *recorder) ShowResult(_ context.Context, _ int64, result quiz.GradeResult, saved bool) error {
	r.log("result")
	r.results = append(r.results, result)
	r.saved = append(r.saved, saved)
	return nil
}
func (r *recorder) NotifyAbandoned(context.Context, int64) error {
	r.log("abandoned")
	return nil
}
func (r *recorder) NotifyAborted(context.Context, int64) error {
	r.log("aborted")
	return nil
}

type memStore struct {
	profiles    map[int64]Profile
	sessions    []*TestSession
	results     []quiz.GradeResult
	saveSessErr error
	loadErr     error
}

func newMemStore() *memStore {
	return &memStore{profiles: map[int64]Profile{}}
}

func (s *memStore) SaveProfile(_ context.Context, p Profile) error {
	s.profiles[p.UserID] = p
	return nil
}

func (s *memStore) LoadProfile(_ context.Context, userID int64) (*Profile, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) SaveSession(_ context.Context, session *TestSession, result quiz.GradeResult) error {
	if s.saveSessErr != nil {
		return s.saveSessErr
	}
	s.sessions = append(s.sessions, session)
	s.results = append(s.results, result)
	return nil
}

// testBank loads one three-question track plus reference enumerations from a
// throwaway data dir.
func testBank(t *testing.T) *quiz.Bank {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("positions.json", `["inspector","senior inspector"]`)
	write("departments.json", `["north","south"]`)
	write("questions/enforcement.json", `[
	  {"question": "q0", "options": ["a", "b"], "correct_answers": [1]},
	  {"question": "q1", "options": ["a", "b", "c"], "correct_answers": [0, 2]},
	  {"question": "q2", "options": ["a", "b"], "correct_answers": [0]}
	]`)
	bank, err := quiz.Load(config.QuizConfig{
		DataDir:         dir,
		PositionsFile:   "positions.json",
		DepartmentsFile: "departments.json",
		Specializations: []config.SpecializationConfig{{
			ID: "enforcement", Name: "Enforcement", QuestionsFile: "enforcement.json",
			SecondsPerQuestion: 30,
		}},
	})
	require.NoError(t, err)
	return bank
}

func testScale() quiz.Scale {
	return quiz.NewScale([]quiz.Bucket{
		{MinPercent: 0, Label: "fail"},
		{MinPercent: 60, Label: "pass"},
		{MinPercent: 90, Label: "excellent"},
	})
}

type harness struct {
	machine *Machine
	timers  *fakeTimers
	out     *recorder
	store   *memStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		timers: &fakeTimers{},
		out:    &recorder{},
		store:  newMemStore(),
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	deps := Deps{
		Bank:             testBank(t),
		Scale:            testScale(),
		Store:            h.store,
		Presenter:        h.out,
		ZeroAnswerPolicy: config.ZeroAnswerAbandon,
		Now:              func() time.Time { return now },
		NewID: func() string {
			seq++
			return fmt.Sprintf("sess-%d", seq)
		},
	}
	h.machine = NewMachine(7, deps, h.timers)
	return h
}

// startTest drives the machine through registration into the first question.
func (h *harness) startTest(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.machine.Apply(ctx, Start{}))
	require.NoError(t, h.machine.Apply(ctx, SelectPosition{Position: "inspector"}))
	require.NoError(t, h.machine.Apply(ctx, SelectDepartment{Department: "north"}))
	require.NoError(t, h.machine.Apply(ctx, SelectSpecialization{SpecID: "enforcement"}))
}

func TestRegistrationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, Start{}))
	assert.Equal(t, StateRegisteringPosition, h.machine.State())

	require.NoError(t, h.machine.Apply(ctx, SelectPosition{Position: "inspector"}))
	assert.Equal(t, StateRegisteringDepartment, h.machine.State())

	require.NoError(t, h.machine.Apply(ctx, SelectDepartment{Department: "north"}))
	assert.Equal(t, StateAwaitingSpecChoice, h.machine.State())

	p, ok := h.store.profiles[7]
	require.True(t, ok)
	assert.Equal(t, "inspector", p.Position)
	assert.Equal(t, "north", p.Department)
	assert.Equal(t, []string{"prompt_position", "prompt_department", "prompt_specs"}, h.out.events)
}

func TestRegistrationRejectsUnknownValues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.machine.Apply(ctx, Start{}))

	err := h.machine.Apply(ctx, SelectPosition{Position: "astronaut"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "position", verr.Field)
	// rejected input leaves the step unchanged
	assert.Equal(t, StateRegisteringPosition, h.machine.State())

	require.NoError(t, h.machine.Apply(ctx, SelectPosition{Position: "inspector"}))
	err = h.machine.Apply(ctx, SelectDepartment{Department: "west"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "department", verr.Field)
	assert.Empty(t, h.store.profiles)
}

func TestReturningUserSkipsRegistration(t *testing.T) {
	h := newHarness(t)
	h.store.profiles[7] = Profile{UserID: 7, Position: "inspector", Department: "north"}

	require.NoError(t, h.machine.Apply(context.Background(), Start{}))
	assert.Equal(t, StateAwaitingSpecChoice, h.machine.State())
	assert.Equal(t, []string{"prompt_specs"}, h.out.events)
}

func TestFullSessionCompletes(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	assert.Equal(t, StateInProgress, h.machine.State())
	assert.Equal(t, []int{0}, h.timers.armedQuestion)
	require.Len(t, h.timers.armedSession, 1)
	assert.Equal(t, 90*time.Second, h.timers.armedSession[0])

	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))
	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 1, Selected: []int{2, 0}}))
	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 2, Selected: []int{1}}))

	assert.Equal(t, StateCompleted, h.machine.State())
	require.Len(t, h.store.sessions, 1)
	assert.Equal(t, StateCompleted, h.store.sessions[0].State)

	require.Len(t, h.out.results, 1)
	res := h.out.results[0]
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 67, res.Percent)
	assert.Equal(t, "pass", res.Grade)
	assert.Equal(t, []bool{true}, h.out.saved)
}

func TestStaleAnswerRejectedWithoutMutation(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))

	// second tap on the question 0 keyboard
	err := h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{0}})
	var stale *StaleActionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, 0, stale.Cursor)
	assert.Equal(t, 1, stale.Current)
	assert.Len(t, h.machine.session.Answers, 1)
	assert.Equal(t, []int{1}, h.machine.session.Answers[0].Selected)
}

func TestAnswerValidation(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	var verr *ValidationError
	require.ErrorAs(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0}), &verr)
	require.ErrorAs(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{5}}), &verr)
	assert.Empty(t, h.machine.session.Answers)
}

func TestQuestionTimeoutAdvances(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, questionTimeout{Cursor: 0}))

	require.Len(t, h.machine.session.Answers, 1)
	assert.True(t, h.machine.session.Answers[0].TimedOut)
	assert.Equal(t, 1, h.machine.session.Cursor)
	assert.Contains(t, h.out.events, "timeout_0")
	assert.Contains(t, h.out.events, "question_1")
}

func TestStaleQuestionTimeoutDiscarded(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))

	// timer for question 0 fired after the answer was applied
	require.NoError(t, h.machine.Apply(ctx, questionTimeout{Cursor: 0}))
	assert.Len(t, h.machine.session.Answers, 1)
	assert.False(t, h.machine.session.Answers[0].TimedOut)
	assert.Equal(t, 1, h.machine.session.Cursor)
	assert.NotContains(t, h.out.events, "timeout_0")
}

func TestSessionTimeoutGradesPartial(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))
	require.NoError(t, h.machine.Apply(ctx, sessionTimeout{}))

	assert.Equal(t, StateCompleted, h.machine.State())
	require.Len(t, h.out.results, 1)
	res := h.out.results[0]
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 33, res.Percent)
	require.Len(t, h.store.sessions, 1)
}

func TestSessionTimeoutWithNoAnswersAbandons(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, sessionTimeout{}))

	assert.Equal(t, StateAbandoned, h.machine.State())
	assert.Contains(t, h.out.events, "abandoned")
	// abandoned attempts are not persisted
	assert.Empty(t, h.store.sessions)
}

func TestSessionTimeoutZeroAnswerGradePolicy(t *testing.T) {
	h := newHarness(t)
	h.machine.deps.ZeroAnswerPolicy = config.ZeroAnswerGrade
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, sessionTimeout{}))

	assert.Equal(t, StateCompleted, h.machine.State())
	require.Len(t, h.out.results, 1)
	assert.Equal(t, 0, h.out.results[0].Percent)
	require.Len(t, h.store.sessions, 1)
}

func TestCancelAborts(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, Cancel{}))
	assert.Equal(t, StateAborted, h.machine.State())
	assert.Contains(t, h.out.events, "aborted")
	assert.Empty(t, h.store.sessions)
	assert.NotZero(t, h.timers.stopAll)

	var closed *SessionClosedError
	require.ErrorAs(t, h.machine.Apply(ctx, Cancel{}), &closed)
	assert.Equal(t, StateAborted, closed.State)
}

func TestActionsAfterTerminalStateRejected(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()
	require.NoError(t, h.machine.Apply(ctx, Cancel{}))

	var closed *SessionClosedError
	require.ErrorAs(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{0}}), &closed)
}

func TestStartAfterTerminalBeginsFresh(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()
	require.NoError(t, h.machine.Apply(ctx, Cancel{}))

	// registered by now, so a restart goes straight to the track choice
	require.NoError(t, h.machine.Apply(ctx, Start{}))
	assert.Equal(t, StateAwaitingSpecChoice, h.machine.State())
}

func TestStartDuringSessionDiscardsIt(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	ctx := context.Background()
	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))

	require.NoError(t, h.machine.Apply(ctx, Start{}))
	assert.Equal(t, StateAwaitingSpecChoice, h.machine.State())
	assert.Empty(t, h.store.sessions)
	assert.Nil(t, h.machine.session)
}

func TestFailedSaveStillShowsResult(t *testing.T) {
	h := newHarness(t)
	h.startTest(t)
	h.store.saveSessErr = errors.New("boom")
	ctx := context.Background()

	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))
	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 1, Selected: []int{0, 2}}))
	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 2, Selected: []int{0}}))

	assert.Equal(t, StateCompleted, h.machine.State())
	assert.Equal(t, []bool{false}, h.out.saved)
	require.Len(t, h.out.results, 1)
	assert.Equal(t, 100, h.out.results[0].Percent)
}

func TestElapsedRecordedPerAnswer(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	h.machine.deps.Now = func() time.Time { return current }
	h.startTest(t)
	ctx := context.Background()

	current = base.Add(12 * time.Second)
	require.NoError(t, h.machine.Apply(ctx, SubmitAnswer{Cursor: 0, Selected: []int{1}}))
	assert.Equal(t, 12*time.Second, h.machine.session.Answers[0].Elapsed)
}
