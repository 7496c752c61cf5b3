package boundary

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/resilience"
	"github.com/sells-group/pickup-cli/pkg/overpass"
)

// OverpassSource looks up boundary relations through the Overpass API.
type OverpassSource struct {
	client       *overpass.Client
	countryISO   string
	queryTimeout int
}

// NewOverpassSource creates a Source restricted to one country.
// queryTimeout is the server-side timeout in seconds.
func NewOverpassSource(client *overpass.Client, countryISO string, queryTimeout int) *OverpassSource {
	if queryTimeout <= 0 {
		queryTimeout = 45
	}
	return &OverpassSource{client: client, countryISO: countryISO, queryTimeout: queryTimeout}
}

// LookupRelation implements Source. It returns resilience.ErrNotFound when
// the query matches nothing.
func (s *OverpassSource) LookupRelation(ctx context.Context, name, code string, adminLevel int) (*Relation, error) {
	ql := overpass.RelationQuery(s.countryISO, name, code, adminLevel, s.queryTimeout)
	resp, err := s.client.Query(ctx, ql)
	if err != nil {
		return nil, err
	}
	if len(resp.Elements) == 0 {
		return nil, eris.Wrapf(resilience.ErrNotFound, "boundary: relation %q", name)
	}

	el := resp.Elements[0]
	if el.Type != "relation" {
		return nil, resilience.NewPermanentError(eris.Errorf("boundary: relation %q: got %s element", name, el.Type), 0)
	}

	rel := &Relation{ID: el.ID, Name: el.Tags["name"], Tags: el.Tags}
	for _, m := range el.Members {
		if m.Type != "way" {
			continue
		}
		frag := WayFragment{Role: Role(m.Role), Points: make([]geodesy.LatLon, 0, len(m.Geometry))}
		for _, p := range m.Geometry {
			frag.Points = append(frag.Points, geodesy.LatLon{Lat: p.Lat, Lon: p.Lon})
		}
		rel.Members = append(rel.Members, frag)
	}
	return rel, nil
}
