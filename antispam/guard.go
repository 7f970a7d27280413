// Package antispam bounds per-user action throughput with fixed windows.
package antispam

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitedError signals that a user exceeded the action budget for the
// current window. The action causing it must not mutate any state.
type RateLimitedError struct {
	UserID  int64
	RetryIn time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("user %d rate limited, retry in %s", e.UserID, e.RetryIn.Round(time.Second))
}

// Code returns the stable error code used in logs.
func (e *RateLimitedError) Code() string { return "RATE_LIMITED" }

type window struct {
	start time.Time
	count int
}

// Guard counts actions per user within a fixed window. Counters are
// independent per user; a stale window resets on the next action.
type Guard struct {
	mu        sync.Mutex
	windows   map[int64]*window
	interval  time.Duration
	max       int
	now       func() time.Time
	lastSweep time.Time
}

// New builds a Guard allowing maxActions per user within the given window.
func New(windowSize time.Duration, maxActions int) *Guard {
	if windowSize <= 0 {
		windowSize = 10 * time.Second
	}
	if maxActions <= 0 {
		maxActions = 5
	}
	return &Guard{
		windows:  make(map[int64]*window),
		interval: windowSize,
		max:      maxActions,
		now:      time.Now,
	}
}

// Allow registers one action for the user. It returns a RateLimitedError
// when the budget for the current window is already spent; the rejected
// action is not counted toward the next window.
func (g *Guard) Allow(userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	w, ok := g.windows[userID]
	if !ok || now.Sub(w.start) >= g.interval {
		g.windows[userID] = &window{start: now, count: 1}
		return nil
	}
	if w.count >= g.max {
		return &RateLimitedError{
			UserID:  userID,
			RetryIn: g.interval - now.Sub(w.start),
		}
	}
	w.count++
	return nil
}

// Reset drops the counter for one user, used when a session ends.
func (g *Guard) Reset(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.windows, userID)
}

// sweep drops expired windows at most once per interval to keep the map from
// accumulating one entry per user ever seen.
func (g *Guard) sweep(now time.Time) {
	if now.Sub(g.lastSweep) < g.interval {
		return
	}
	g.lastSweep = now
	for id, w := range g.windows {
		if now.Sub(w.start) >= g.interval {
			delete(g.windows, id)
		}
	}
}
