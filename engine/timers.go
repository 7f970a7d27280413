package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

func newSessionID() string { return uuid.NewString() }

// sessionTimers arms real deadlines for one session. Fired timers do not
// touch the machine directly; they enqueue a timeout action so ordering with
// user actions is decided by the single consumer.
type sessionTimers struct {
	enqueue func(Action)

	mu       sync.Mutex
	question *time.Timer
	session  *time.Timer
}

func newSessionTimers(enqueue func(Action)) *sessionTimers {
	return &sessionTimers{enqueue: enqueue}
}

func (t *sessionTimers) ArmQuestion(cursor int, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.question != nil {
		t.question.Stop()
	}
	t.question = time.AfterFunc(d, func() {
		t.enqueue(questionTimeout{Cursor: cursor})
	})
}

func (t *sessionTimers) StopQuestion() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.question != nil {
		t.question.Stop()
		t.question = nil
	}
}

func (t *sessionTimers) ArmSession(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		t.session.Stop()
	}
	t.session = time.AfterFunc(d, func() {
		t.enqueue(sessionTimeout{})
	})
}

func (t *sessionTimers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.question != nil {
		t.question.Stop()
		t.question = nil
	}
	if t.session != nil {
		t.session.Stop()
		t.session = nil
	}
}
