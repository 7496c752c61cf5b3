package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff. Zero fields fall back to
// DefaultRetryConfig, except JitterFraction where zero means none.
type RetryConfig struct {
	MaxAttempts    int // including the first try
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFraction float64 // each delay varies by up to ±fraction

	// ShouldRetry replaces IsTransient as the retry test.
	ShouldRetry func(err error) bool

	// OnRetry is called before each wait with the 1-based number of the
	// attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is used for provider and geocoder calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

// BoundaryRetryConfig waits 3s, 6s, 12s and 24s between five attempts.
func BoundaryRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 3 * time.Second,
		MaxBackoff:     2 * time.Minute,
		Multiplier:     2,
	}
}

func (cfg RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	cfg.JitterFraction = math.Max(cfg.JitterFraction, 0)
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	return cfg
}

// Backoff returns the wait after the 0-based attempt, jitter included.
func (cfg RetryConfig) Backoff(attempt int) time.Duration {
	cfg = cfg.normalized()
	d := math.Min(float64(cfg.InitialBackoff)*math.Pow(cfg.Multiplier, float64(attempt)), float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		d *= 1 + cfg.JitterFraction*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

// wait is the pause after a failed attempt. A server's Retry-After hint
// stretches the backoff but never past MaxBackoff.
func (cfg RetryConfig) wait(attempt int, err error) time.Duration {
	d := cfg.Backoff(attempt)
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > d {
		d = min(te.RetryAfter, cfg.MaxBackoff)
	}
	return d
}

// Do calls fn until it succeeds, fails with an error ShouldRetry rejects,
// or uses up MaxAttempts. The last error is returned as is. Cancelling ctx
// ends the loop without another attempt.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts || ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.wait(attempt-1, err)) {
			return err
		}
	}
}

// DoVal is Do for calls that produce a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var val T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			val = v
		}
		return err
	})
	return val, err
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs each retry at Warn.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("class", string(Classify(err))),
			zap.Error(err),
		)
	}
}
