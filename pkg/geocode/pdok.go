package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pickup-cli/internal/resilience"
)

// PDOKURL is the Dutch national Locatieserver free-text endpoint.
const PDOKURL = "https://api.pdok.nl/bzk/locatieserver/search/v3_1/free"

type pdokResponse struct {
	Response struct {
		NumFound int       `json:"numFound"`
		Docs     []pdokDoc `json:"docs"`
	} `json:"response"`
}

type pdokDoc struct {
	Type         string `json:"type"`
	DisplayName  string `json:"weergavenaam"`
	CentroidLL string `json:"centroide_ll"`
}

// PDOK geocodes Dutch municipalities via the PDOK Locatieserver.
type PDOK struct {
	settings
	docType string
}

// NewPDOK creates a PDOK provider filtered to municipalities.
func NewPDOK(opts ...Option) *PDOK {
	return &PDOK{settings: newSettings(PDOKURL, opts), docType: "gemeente"}
}

// Name implements Provider.
func (p *PDOK) Name() string { return "pdok" }

// Geocode implements Provider.
func (p *PDOK) Geocode(ctx context.Context, query string) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: pdok rate limit")
	}

	params := url.Values{
		"q":    {query},
		"fq":   {"type:" + p.docType},
		"rows": {"1"},
		"fl":   {"type,weergavenaam,centroide_ll"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: pdok build request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: pdok request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: pdok read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ResponseError("geocode: pdok", resp, body)
	}

	var parsed pdokResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "geocode: pdok parse response"), resp.StatusCode)
	}
	if len(parsed.Response.Docs) == 0 {
		return &Result{Source: p.Name()}, nil
	}

	doc := parsed.Response.Docs[0]
	point, err := wkt.UnmarshalPoint(doc.CentroidLL)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(err, "geocode: pdok centroid %q", doc.CentroidLL), resp.StatusCode)
	}
	return &Result{
		Latitude:    point.Lat(),
		Longitude:   point.Lon(),
		DisplayName: doc.DisplayName,
		Source:      p.Name(),
		Matched:     true,
	}, nil
}
