package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/resilience"
)

// Option configures an adapter.
type Option func(*adapter)

// WithMapping replaces the response field mapping.
func WithMapping(m location.FieldMapping) Option {
	return func(a *adapter) {
		if len(m) > 0 {
			a.mapping = m
		}
	}
}

// WithRetry overrides the per-call retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(a *adapter) { a.retry = cfg }
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(a *adapter) { a.breaker = b }
}

// adapter holds what every provider shares: the field mapping, the retry
// policy and an optional breaker.
type adapter struct {
	name    string
	mapping location.FieldMapping
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	log     *zap.Logger
}

func newAdapter(name string, opts []Option) adapter {
	a := adapter{
		name:    name,
		mapping: location.DefaultMapping,
		retry:   resilience.DefaultRetryConfig(),
		log:     zap.L().With(zap.String("component", "provider."+name)),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// call runs fetch under retry and the breaker, then normalizes the items.
// Items without usable coordinates are skipped; the returned count still
// includes them.
func (a *adapter) call(ctx context.Context, op string, fetch func(ctx context.Context) ([]map[string]any, error)) ([]location.Record, int, error) {
	cfg := a.retry
	cfg.OnRetry = resilience.RetryLogger(a.name, op)

	attempt := func(ctx context.Context) ([]map[string]any, error) {
		return resilience.DoVal(ctx, cfg, fetch)
	}
	var items []map[string]any
	var err error
	if a.breaker != nil {
		items, err = resilience.ExecuteVal(ctx, a.breaker, attempt)
	} else {
		items, err = attempt(ctx)
	}
	if err != nil {
		return nil, 0, eris.Wrapf(err, "provider: %s %s", a.name, op)
	}

	records := make([]location.Record, 0, len(items))
	skipped := 0
	for _, it := range items {
		rec, err := a.mapping.Normalize(a.name, it)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		a.log.Debug("skipped items without coordinates",
			zap.String("op", op),
			zap.Int("skipped", skipped),
			zap.Int("returned", len(items)),
		)
	}
	return records, len(items), nil
}
