package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_SucceedsOnLastAttempt(t *testing.T) {
	var calls int
	var retried []int
	cfg := fastRetry(5)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	val, err := DoVal(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 5 {
			return "", NewTransientError(errors.New("gateway timeout"), 504)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []int{1, 2, 3, 4}, retried)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("gateway timeout"), 504)
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 5, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return NewPermanentError(errors.New("bad request"), 400)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NotFoundNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	var calls int
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBoundaryRetryConfig_Backoff(t *testing.T) {
	cfg := BoundaryRetryConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Backoff(0))
	assert.Equal(t, 6*time.Second, cfg.Backoff(1))
	assert.Equal(t, 12*time.Second, cfg.Backoff(2))
	assert.Equal(t, 24*time.Second, cfg.Backoff(3))
}

func TestBackoff_CappedAndJittered(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, Multiplier: 2}
	assert.Equal(t, 4*time.Second, cfg.Backoff(10))

	cfg.JitterFraction = 0.5
	for i := 0; i < 20; i++ {
		d := cfg.Backoff(0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWait_HonorsRetryAfter(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Multiplier: 2}.normalized()

	hinted := &TransientError{Err: errors.New("slow down"), StatusCode: 429, RetryAfter: 5 * time.Second}
	assert.Equal(t, 5*time.Second, cfg.wait(0, hinted))

	hinted.RetryAfter = time.Hour
	assert.Equal(t, 10*time.Second, cfg.wait(0, hinted))

	hinted.RetryAfter = 100 * time.Millisecond
	assert.Equal(t, time.Second, cfg.wait(0, hinted))

	assert.Equal(t, 2*time.Second, cfg.wait(1, errors.New("plain")))
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 41, NewTransientError(errors.New("busy"), 503)
		}
		return 42, NewPermanentError(errors.New("gone"), 410)
	})
	require.Error(t, err)
	assert.Zero(t, val)
	assert.Equal(t, 2, calls)
}
