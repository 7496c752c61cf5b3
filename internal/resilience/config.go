package resilience

import "time"

// FromRetryConfig builds a RetryConfig from config values, keeping defaults
// for non-positive inputs. jitterFraction is used as given when >= 0.
func FromRetryConfig(base RetryConfig, maxAttempts int, initialBackoff time.Duration, multiplier, jitterFraction float64) RetryConfig {
	cfg := base
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromBreakerConfig builds a BreakerConfig from config values.
func FromBreakerConfig(failureThreshold int, cooldown time.Duration) BreakerConfig {
	return BreakerConfig{FailureThreshold: failureThreshold, Cooldown: cooldown}
}
