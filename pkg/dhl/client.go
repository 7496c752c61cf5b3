// Package dhl queries the DHL Parcel service-point locator.
package dhl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/resilience"
)

// DefaultURL is the Dutch by-geo endpoint.
const DefaultURL = "https://api-gw.dhlparcel.nl/parcel-shop-locations/NL/by-geo"

// MaxLimit is the largest page the locator returns. Without a limit
// parameter the upstream page size is 15, so ByGeo always sends one.
const MaxLimit = 50

// Client searches service points around a coordinate.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithLimiter sets the request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client with a 30s timeout and no rate limit.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		baseURL:    DefaultURL,
		userAgent:  "pickup-cli/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ByGeo returns the raw service-point objects within radiusMeters of
// (lat, lon), at most limit of them. limit is clamped to MaxLimit.
func (c *Client) ByGeo(ctx context.Context, lat, lon float64, radiusMeters, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "dhl: rate limit")
	}

	params := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 6, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 6, 64)},
		"radius":    {strconv.Itoa(radiusMeters)},
		"limit":     {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "dhl: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "dhl: request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "dhl: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "dhl: read body"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ResponseError("dhl", resp, body)
	}

	items, err := location.ExtractItems(body)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "dhl: parse response"), resp.StatusCode)
	}
	return items, nil
}
