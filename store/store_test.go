package store

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableClassifiesErrors(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.True(t, retryable(&pq.Error{Code: "57P01"}))  // admin shutdown
	assert.False(t, retryable(&pq.Error{Code: "23505"})) // unique violation
	assert.False(t, retryable(&pq.Error{Code: "42P01"})) // undefined table
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	s := &Store{}
	calls := 0
	err := s.withRetry(context.Background(), "save_profile", func() error {
		calls++
		return &pq.Error{Code: "23505"}
	})

	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "save_profile", serr.Op)
	assert.Equal(t, "STORE_ERROR", serr.Code())
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecovers(t *testing.T) {
	s := &Store{}
	calls := 0
	err := s.withRetry(context.Background(), "save_session", func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	s := &Store{}
	calls := 0
	err := s.withRetry(context.Background(), "save_session", func() error {
		calls++
		return errors.New("transient")
	})
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, maxAttempts, calls)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	s := &Store{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := s.withRetry(ctx, "save_profile", func() error {
		calls++
		return errors.New("transient")
	})
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, calls)
}
