// Package geocode resolves free-text place names to a single coordinate,
// trying Nominatim and PDOK Locatieserver in order.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies the client to public geocoding services.
const DefaultUserAgent = "pickup-cli/1.0 (+https://github.com/sells-group/pickup-cli)"

// Result is one geocoding answer.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Source      string // "nominatim" or "pdok"
	Matched     bool
}

// Provider is a single geocoding backend. A miss is a Result with
// Matched=false, not an error.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Option configures a provider.
type Option func(*settings)

type settings struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	baseURL      string
	userAgent    string
	countryCodes string
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		s.httpClient = hc
	}
}

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(s *settings) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLimiter sets the limiter directly.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *settings) {
		s.limiter = l
	}
}

// WithBaseURL overrides the service endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithCountryCodes restricts results to ISO 3166-1 alpha-2 codes,
// comma separated.
func WithCountryCodes(codes string) Option {
	return func(s *settings) {
		s.countryCodes = codes
	}
}

func newSettings(baseURL string, opts []Option) settings {
	s := settings{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		baseURL:    baseURL,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
