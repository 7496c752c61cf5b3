package boundary

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolution is a resolved region with how it was obtained.
type Resolution struct {
	Bounds   *RegionBounds `json:"bounds"`
	Strategy string        `json:"strategy"`
	Degraded bool          `json:"degraded"`
	Reason   ReasonCode    `json:"reason,omitempty"`
	Cause    string        `json:"cause,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
}

// Resolver walks an ordered strategy list until one produces bounds.
// Successful resolutions are cached for the lifetime of the cache.
type Resolver struct {
	strategies  []Strategy
	cache       *Cache
	countryHint string
	log         *zap.Logger
}

// NewResolver creates a resolver. A nil cache disables caching.
func NewResolver(cache *Cache, countryHint string, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies:  strategies,
		cache:       cache,
		countryHint: countryHint,
		log:         zap.L().With(zap.String("component", "boundary.resolver")),
	}
}

// Resolve returns the bounds for region. code optionally disambiguates
// regions sharing a name.
func (r *Resolver) Resolve(ctx context.Context, region, code string) (*RegionBounds, error) {
	res, err := r.ResolveDetailed(ctx, region, code)
	if err != nil {
		return nil, err
	}
	return res.Bounds, nil
}

// ResolveDetailed is Resolve with the strategy used and, for fallbacks,
// why the primary strategy missed.
func (r *Resolver) ResolveDetailed(ctx context.Context, region, code string) (*Resolution, error) {
	key := CacheKey(region, r.countryHint)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			hit := *cached
			hit.Cached = true
			return &hit, nil
		}
	}

	req := Request{Region: region, Code: code, CountryHint: r.countryHint}
	var firstErr, lastErr error
	for i, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "boundary: resolve %q", region)
		}

		bounds, ok, err := s.Resolve(ctx, req)
		if ok {
			res := &Resolution{Bounds: bounds, Strategy: s.Name(), Degraded: i > 0}
			if res.Degraded {
				res.Reason = reasonFor(firstErr)
				if firstErr != nil {
					res.Cause = firstErr.Error()
				}
				r.log.Warn("using fallback bounds",
					zap.String("region", region),
					zap.String("strategy", s.Name()),
					zap.String("reason", string(res.Reason)),
				)
			}
			if r.cache != nil {
				r.cache.Put(key, res)
			}
			return res, nil
		}

		if err == nil {
			err = eris.Errorf("boundary: strategy %s produced no bounds", s.Name())
		}
		if firstErr == nil {
			firstErr = err
		}
		lastErr = err
		r.log.Info("boundary strategy missed",
			zap.String("region", region),
			zap.String("strategy", s.Name()),
			zap.Error(err),
		)
	}

	if lastErr == nil {
		return nil, eris.Errorf("boundary: resolve %q: no strategies configured", region)
	}
	return nil, eris.Wrapf(lastErr, "boundary: resolve %q: all strategies failed", region)
}
