// Package postnl queries the PostNL location widget for pickup points inside
// a bounding box.
package postnl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/resilience"
)

// DefaultURL is the location widget endpoint.
const DefaultURL = "https://productprijslokatie.postnl.nl/location-widget/api/locations"

// ParcelProductFilter restricts results to consumer parcel pickup.
const ParcelProductFilter = `[{"productId":"23"}]`

// Client searches pickup points by box. The endpoint has no result cap.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	country    string
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

// WithCountry sets the three-letter country filter. Default "nld".
func WithCountry(iso3 string) Option {
	return func(c *Client) {
		if iso3 != "" {
			c.country = iso3
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
		country:    "nld",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ByBox returns the raw location objects inside bbox. Business-only
// locations are excluded.
func (c *Client) ByBox(ctx context.Context, bbox geodesy.BBox) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "postnl: rate limit")
	}

	params := url.Values{
		"country":        {c.country},
		"business":       {"false"},
		"filters":        {"[]"},
		"productFilters": {ParcelProductFilter},
		"defaultFilters": {"[]"},
		"bottomLeftLat":  {coord(bbox.MinLat)},
		"bottomLeftLon":  {coord(bbox.MinLon)},
		"topRightLat":    {coord(bbox.MaxLat)},
		"topRightLon":    {coord(bbox.MaxLon)},
		"lang":           {"NL"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "postnl: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "postnl: request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "postnl: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "postnl: read body"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ResponseError("postnl", resp, body)
	}

	items, err := location.ExtractItems(body)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "postnl: parse response"), resp.StatusCode)
	}
	return items, nil
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
