package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/resilience"
)

// CascadeClient tries providers in order until one matches. Answers,
// including misses, are memoized for the life of the client.
type CascadeClient struct {
	providers []Provider

	mu    sync.Mutex
	cache map[string]*Result
}

// NewCascadeClient creates a client over providers.
func NewCascadeClient(providers ...Provider) *CascadeClient {
	return &CascadeClient{providers: providers, cache: make(map[string]*Result)}
}

// Lookup returns the first matching result. When every provider misses the
// result has Matched=false. The error is the last provider error, returned
// only if no provider answered at all.
func (c *CascadeClient) Lookup(ctx context.Context, query string) (*Result, error) {
	key := cacheKey(query)
	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var lastErr error
	answered := false
	for _, p := range c.providers {
		res, err := p.Geocode(ctx, query)
		if err != nil {
			zap.L().Debug("geocode cascade: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		answered = true
		if res.Matched {
			c.store(key, res)
			return res, nil
		}
	}

	if !answered && lastErr != nil {
		return nil, lastErr
	}
	miss := &Result{Source: "cascade"}
	c.store(key, miss)
	return miss, nil
}

// Geocode returns the coordinate for query, or an error wrapping
// resilience.ErrNotFound when no provider matched.
func (c *CascadeClient) Geocode(ctx context.Context, query string) (geodesy.LatLon, error) {
	res, err := c.Lookup(ctx, query)
	if err != nil {
		return geodesy.LatLon{}, err
	}
	if !res.Matched {
		return geodesy.LatLon{}, eris.Wrapf(resilience.ErrNotFound, "geocode: %q", query)
	}
	return geodesy.LatLon{Lat: res.Latitude, Lon: res.Longitude}, nil
}

func (c *CascadeClient) store(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = r
}

// cacheKey is the SHA-256 hex of the normalized query.
func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
