package store

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// StoreError wraps a database failure with the operation that produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Code returns the stable error code used in logs.
func (e *StoreError) Code() string { return "STORE_ERROR" }

type userRow struct {
	UserID       int64     `db:"user_id"`
	Position     string    `db:"position"`
	Department   string    `db:"department"`
	RegisteredAt time.Time `db:"registered_at"`
}

type sessionRow struct {
	ID         string    `db:"id"`
	UserID     int64     `db:"user_id"`
	Spec       string    `db:"spec"`
	State      string    `db:"state"`
	Correct    int       `db:"correct"`
	Total      int       `db:"total"`
	Percent    int       `db:"percent"`
	Grade      string    `db:"grade"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

type answerRow struct {
	SessionID string        `db:"session_id"`
	Position  int           `db:"position"`
	Selected  pq.Int64Array `db:"selected"`
	TimedOut  bool          `db:"timed_out"`
	ElapsedMS int64         `db:"elapsed_ms"`
}

// HistoryEntry is one completed attempt in a user's history, newest first.
type HistoryEntry struct {
	SessionID  string    `db:"id"`
	Spec       string    `db:"spec"`
	Correct    int       `db:"correct"`
	Total      int       `db:"total"`
	Percent    int       `db:"percent"`
	Grade      string    `db:"grade"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}
