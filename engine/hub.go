package engine

import (
	"context"
	"sync"
)

const defaultQueueSize = 8

// queued carries one action through a runner's queue. res is nil for timer
// events; nobody waits on those.
type queued struct {
	ctx    context.Context
	action Action
	res    chan error
}

type runner struct {
	queue   chan queued
	machine *Machine
}

// Hub owns one Machine per user and serializes all actions for a user
// through a single goroutine. Concurrent submissions for the same session
// never interleave; the loser of an answer/timeout race is resolved by
// arrival order on the queue.
type Hub struct {
	deps      Deps
	queueSize int

	mu      sync.Mutex
	runners map[int64]*runner

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHub returns a hub using queueSize slots per user; zero or negative
// picks the default.
func NewHub(deps Deps, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		deps:      deps,
		queueSize: queueSize,
		runners:   make(map[int64]*runner),
		done:      make(chan struct{}),
	}
}

// Dispatch enqueues a user action and waits for the machine's verdict. A
// saturated queue rejects immediately with BusyError instead of blocking
// the transport.
func (h *Hub) Dispatch(ctx context.Context, userID int64, action Action) error {
	r := h.runner(userID)
	q := queued{ctx: ctx, action: action, res: make(chan error, 1)}
	select {
	case r.queue <- q:
	default:
		return &BusyError{UserID: userID}
	}
	select {
	case err := <-q.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return context.Canceled
	}
}

func (h *Hub) runner(userID int64) *runner {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.runners[userID]; ok {
		return r
	}
	r := &runner{queue: make(chan queued, h.queueSize)}
	timers := newSessionTimers(func(a Action) {
		select {
		case r.queue <- queued{ctx: context.Background(), action: a}:
		case <-h.done:
		}
	})
	r.machine = NewMachine(userID, h.deps, timers)
	h.runners[userID] = r
	h.wg.Add(1)
	go h.run(r)
	return r
}

func (h *Hub) run(r *runner) {
	defer h.wg.Done()
	for {
		select {
		case q := <-r.queue:
			err := r.machine.Apply(q.ctx, q.action)
			if q.res != nil {
				q.res <- err
			}
		case <-h.done:
			r.machine.timers.StopAll()
			return
		}
	}
}

// Close stops every runner and releases pending timers. Safe to call more
// than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}
