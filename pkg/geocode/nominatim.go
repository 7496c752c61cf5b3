package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pickup-cli/internal/resilience"
)

// NominatimURL is the public OpenStreetMap search endpoint.
const NominatimURL = "https://nominatim.openstreetmap.org/search"

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Nominatim geocodes against an OpenStreetMap Nominatim instance.
type Nominatim struct {
	settings
}

// NewNominatim creates a Nominatim provider. The public instance allows one
// request per second, which is the default limit.
func NewNominatim(opts ...Option) *Nominatim {
	return &Nominatim{settings: newSettings(NominatimURL, opts)}
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// Geocode implements Provider.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	if n.countryCodes != "" {
		params.Set("countrycodes", n.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: nominatim request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ResponseError("geocode: nominatim", resp, body)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "geocode: nominatim parse response"), resp.StatusCode)
	}
	if len(places) == 0 {
		return &Result{Source: n.Name()}, nil
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return nil, resilience.NewPermanentError(eris.Errorf("geocode: nominatim bad coordinates %q,%q", places[0].Lat, places[0].Lon), resp.StatusCode)
	}
	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: places[0].DisplayName,
		Source:      n.Name(),
		Matched:     true,
	}, nil
}
