package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"attestbot/core/logger"
	"attestbot/engine"
	"attestbot/quiz"
)

const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
)

// Store persists profiles and completed sessions in Postgres. Methods are
// safe for concurrent use; writes retry transient failures with a linear
// backoff before giving up.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// SaveProfile inserts or refreshes a user's registration.
func (s *Store) SaveProfile(ctx context.Context, p engine.Profile) error {
	const q = `
		INSERT INTO users (user_id, position, department, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET position = EXCLUDED.position,
		    department = EXCLUDED.department,
		    registered_at = EXCLUDED.registered_at`
	return s.withRetry(ctx, "save_profile", func() error {
		_, err := s.db.ExecContext(ctx, q, p.UserID, p.Position, p.Department, p.RegisteredAt)
		return err
	})
}

// LoadProfile returns nil with no error when the user is not registered.
func (s *Store) LoadProfile(ctx context.Context, userID int64) (*engine.Profile, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, position, department, registered_at FROM users WHERE user_id = $1`,
		userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "load_profile", Err: err}
	}
	return &engine.Profile{
		UserID:       row.UserID,
		Position:     row.Position,
		Department:   row.Department,
		RegisteredAt: row.RegisteredAt,
	}, nil
}

// SaveSession writes a graded session and its per-question answers in one
// transaction.
func (s *Store) SaveSession(ctx context.Context, session *engine.TestSession, result quiz.GradeResult) error {
	return s.withRetry(ctx, "save_session", func() error {
		return s.saveSessionOnce(ctx, session, result)
	})
}

func (s *Store) saveSessionOnce(ctx context.Context, session *engine.TestSession, result quiz.GradeResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO sessions (id, user_id, spec, state, correct, total, percent, grade, started_at, finished_at)
		VALUES (:id, :user_id, :spec, :state, :correct, :total, :percent, :grade, :started_at, :finished_at)`,
		sessionRow{
			ID:         session.ID,
			UserID:     session.UserID,
			Spec:       session.Spec.ID,
			State:      string(session.State),
			Correct:    result.Correct,
			Total:      result.Total,
			Percent:    result.Percent,
			Grade:      result.Grade,
			StartedAt:  session.StartedAt,
			FinishedAt: time.Now(),
		})
	if err != nil {
		return err
	}

	for i, ans := range session.Answers {
		selected := make(pq.Int64Array, 0, len(ans.Selected))
		for _, idx := range ans.Selected {
			selected = append(selected, int64(idx))
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO session_answers (session_id, position, selected, timed_out, elapsed_ms)
			VALUES (:session_id, :position, :selected, :timed_out, :elapsed_ms)`,
			answerRow{
				SessionID: session.ID,
				Position:  i,
				Selected:  selected,
				TimedOut:  ans.TimedOut,
				ElapsedMS: ans.Elapsed.Milliseconds(),
			})
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadHistory returns a user's completed attempts, newest first, capped at
// limit.
func (s *Store) LoadHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []HistoryEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, spec, correct, total, percent, grade, started_at, finished_at
		FROM sessions
		WHERE user_id = $1 AND state = 'completed'
		ORDER BY finished_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, &StoreError{Op: "load_history", Err: err}
	}
	return entries, nil
}

// withRetry retries op on transient errors. Context cancellation and
// constraint violations are not retried.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		backoff := time.Duration(attempt) * retryBackoff
		logger.Warn(ctx, "store", op+".retry",
			slog.Int("attempts", attempt),
			slog.Int64("backoff_ms", backoff.Milliseconds()),
			slog.Any("err", err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &StoreError{Op: op, Err: ctx.Err()}
		}
	}
	return &StoreError{Op: op, Err: err}
}

// retryable reports whether an error is worth another attempt. Unique and
// foreign key violations never are.
func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23", "42": // integrity violation, syntax or access
			return false
		}
	}
	return true
}
