package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestbot/core/config"
	"attestbot/quiz"
)

func hubDeps(t *testing.T, out Presenter, store Store) Deps {
	t.Helper()
	seq := 0
	return Deps{
		Bank:             testBank(t),
		Scale:            testScale(),
		Store:            store,
		Presenter:        out,
		ZeroAnswerPolicy: config.ZeroAnswerAbandon,
		NewID: func() string {
			seq++
			return fmt.Sprintf("sess-%d", seq)
		},
	}
}

func TestHubDispatchDrivesFullFlow(t *testing.T) {
	out := &recorder{}
	store := newMemStore()
	hub := NewHub(hubDeps(t, out, store), 0)
	defer hub.Close()
	ctx := context.Background()

	require.NoError(t, hub.Dispatch(ctx, 7, Start{}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectPosition{Position: "inspector"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectDepartment{Department: "north"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectSpecialization{SpecID: "enforcement"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SubmitAnswer{Cursor: 0, Selected: []int{1}}))
	require.NoError(t, hub.Dispatch(ctx, 7, SubmitAnswer{Cursor: 1, Selected: []int{0, 2}}))
	require.NoError(t, hub.Dispatch(ctx, 7, SubmitAnswer{Cursor: 2, Selected: []int{0}}))

	require.Len(t, store.sessions, 1)
	assert.Equal(t, 100, out.results[0].Percent)
}

func TestHubSerializesConcurrentAnswers(t *testing.T) {
	out := &recorder{}
	store := newMemStore()
	hub := NewHub(hubDeps(t, out, store), 32)
	defer hub.Close()
	ctx := context.Background()

	require.NoError(t, hub.Dispatch(ctx, 7, Start{}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectPosition{Position: "inspector"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectDepartment{Department: "north"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectSpecialization{SpecID: "enforcement"}))

	// hammer question 0 from many goroutines; exactly one wins
	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted, stale int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := hub.Dispatch(ctx, 7, SubmitAnswer{Cursor: 0, Selected: []int{1}})
			mu.Lock()
			defer mu.Unlock()
			var staleErr *StaleActionError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &staleErr):
				stale++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 15, stale)
}

func TestHubUsersAreIndependent(t *testing.T) {
	out := &recorder{}
	store := newMemStore()
	hub := NewHub(hubDeps(t, out, store), 0)
	defer hub.Close()
	ctx := context.Background()

	require.NoError(t, hub.Dispatch(ctx, 1, Start{}))
	require.NoError(t, hub.Dispatch(ctx, 2, Start{}))
	require.NoError(t, hub.Dispatch(ctx, 1, SelectPosition{Position: "inspector"}))

	// user 2 is still choosing a position
	var verr *ValidationError
	require.ErrorAs(t, hub.Dispatch(ctx, 2, SelectDepartment{Department: "north"}), &verr)
}

type blockingPresenter struct {
	recorder
	release chan struct{}
	once    sync.Once
}

func (p *blockingPresenter) PromptPosition(context.Context, int64, []string) error {
	p.once.Do(func() { <-p.release })
	return nil
}

func TestHubRejectsWhenQueueSaturated(t *testing.T) {
	out := &blockingPresenter{release: make(chan struct{})}
	store := newMemStore()
	hub := NewHub(hubDeps(t, out, store), 1)
	defer hub.Close()
	defer close(out.release)

	// the first action occupies the runner; once a second one sits in the
	// single queue slot, further dispatches bounce
	go hub.Dispatch(context.Background(), 7, Start{})
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := hub.Dispatch(ctx, 7, Cancel{})
		var busy *BusyError
		return errors.As(err, &busy)
	}, 2*time.Second, 5*time.Millisecond)
}

type signalPresenter struct {
	recorder
	done chan struct{}
}

func (p *signalPresenter) ShowResult(ctx context.Context, userID int64, result quiz.GradeResult, saved bool) error {
	err := p.recorder.ShowResult(ctx, userID, result, saved)
	close(p.done)
	return err
}

func TestHubRealTimersFireIntoQueue(t *testing.T) {
	out := &signalPresenter{done: make(chan struct{})}
	store := newMemStore()
	deps := hubDeps(t, out, store)

	// shrink the per-question deadline so the timers fire within the test
	sp, err := deps.Bank.Get("enforcement")
	require.NoError(t, err)
	sp.QuestionTime = 20 * time.Millisecond
	sp.SessionTime = 10 * time.Second

	hub := NewHub(deps, 0)
	defer hub.Close()
	ctx := context.Background()

	require.NoError(t, hub.Dispatch(ctx, 7, Start{}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectPosition{Position: "inspector"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectDepartment{Department: "north"}))
	require.NoError(t, hub.Dispatch(ctx, 7, SelectSpecialization{SpecID: "enforcement"}))

	// every question times out and the session grades itself
	select {
	case <-out.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish on timers")
	}
	assert.Equal(t, 0, out.results[0].Correct)
	assert.Equal(t, 3, out.results[0].Total)
}
