package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoubles(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, Backoff(0))
	assert.Equal(t, time.Second, Backoff(1))
	assert.Equal(t, 2*time.Second, Backoff(2))
}

func TestShouldRetryClassification(t *testing.T) {
	assert.True(t, ShouldRetry(nil, 429))
	assert.True(t, ShouldRetry(nil, 408))
	assert.True(t, ShouldRetry(nil, 500))
	assert.True(t, ShouldRetry(nil, 503))
	assert.True(t, ShouldRetry(context.DeadlineExceeded, 0))

	assert.False(t, ShouldRetry(nil, 400))
	assert.False(t, ShouldRetry(nil, 401))
	assert.False(t, ShouldRetry(errors.New("invalid recipient"), 422))
	assert.False(t, ShouldRetry(nil, 0))
}

func TestDoRetriesTransientToExhaustion(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), nil, nil, time.Second, func(context.Context) (string, error) {
		calls++
		return "", &CallError{Err: errors.New("upstream busy"), HTTPStatus: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "upstream busy")
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), nil, nil, time.Second, func(context.Context) (string, error) {
		calls++
		return "", &CallError{Err: errors.New("bad chat id"), HTTPStatus: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), nil, nil, time.Second, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &CallError{Err: errors.New("flaky"), HTTPStatus: 500}
		}
		return "msg-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got)
	assert.Equal(t, 2, calls)
}

func TestDoBreakerOpenShortCircuits(t *testing.T) {
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	calls := 0
	call := func(context.Context) (string, error) {
		calls++
		return "", &CallError{Err: errors.New("down"), HTTPStatus: 400}
	}

	_, err := Do(context.Background(), nil, br, time.Second, call)
	require.Error(t, err)
	require.Equal(t, 1, calls)

	_, err = Do(context.Background(), nil, br, time.Second, call)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 1, calls, "an open breaker must not reach the provider")
}
