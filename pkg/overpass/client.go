// Package overpass is a minimal client for the OpenStreetMap Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pickup-cli/internal/resilience"
)

// DefaultURL is the main public Overpass interpreter.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// Response is the JSON body of an `out geom` query.
type Response struct {
	Elements []Element `json:"elements"`
}

// Element is a node, way or relation.
type Element struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Tags    map[string]string `json:"tags,omitempty"`
	Members []Member          `json:"members,omitempty"`
}

// Member is a relation member with inline geometry.
type Member struct {
	Type     string  `json:"type"`
	Ref      int64   `json:"ref"`
	Role     string  `json:"role"`
	Geometry []Point `json:"geometry,omitempty"`
}

// Point is one vertex of a member geometry.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Client posts Overpass QL queries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the interpreter endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the HTTP timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a client with a 90s timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    DefaultURL,
		userAgent:  "pickup-cli/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query runs ql and decodes the result. 429 and gateway errors come back as
// resilience.TransientError; other failures as resilience.PermanentError.
func (c *Client) Query(ctx context.Context, ql string) (*Response, error) {
	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "overpass: request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: read body"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ResponseError("overpass", resp, body)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "overpass: parse response"), resp.StatusCode)
	}
	return &out, nil
}
