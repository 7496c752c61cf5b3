package boundary

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/resilience"
)

// Request identifies the region to resolve.
type Request struct {
	Region      string
	Code        string
	CountryHint string
}

// Strategy is one step of the fallback chain. ok is true when bounds were
// produced; err explains a miss.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (bounds *RegionBounds, ok bool, err error)
}

// Source looks up a boundary relation by name, optionally narrowed by an
// official code. A missing relation is reported as resilience.ErrNotFound.
type Source interface {
	LookupRelation(ctx context.Context, name, code string, adminLevel int) (*Relation, error)
}

// Geocoder resolves a free-text place to a single point.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geodesy.LatLon, error)
}

// DefaultNameMapping maps common spellings to the official relation name.
var DefaultNameMapping = map[string]string{
	"s-Hertogenbosch": "'s-Hertogenbosch",
	"Bergen (L.)":     "Bergen",
	"Bergen (NH.)":    "Bergen",
	"Nuenen":          "Nuenen c.a.",
}

// DefaultCodeMapping disambiguates regions that share an official name.
var DefaultCodeMapping = map[string]string{
	"Bergen (L.)":  "0893",
	"Bergen (NH.)": "0373",
}

// RelationStrategy fetches the boundary relation and assembles it, retrying
// transient lookup failures.
type RelationStrategy struct {
	source     Source
	retry      resilience.RetryConfig
	adminLevel int
	names      map[string]string
	codes      map[string]string
	log        *zap.Logger
}

// RelationOption configures a RelationStrategy.
type RelationOption func(*RelationStrategy)

// WithRetry overrides the lookup retry policy.
func WithRetry(cfg resilience.RetryConfig) RelationOption {
	return func(s *RelationStrategy) { s.retry = cfg }
}

// WithAdminLevel sets the administrative level searched.
func WithAdminLevel(level int) RelationOption {
	return func(s *RelationStrategy) {
		if level > 0 {
			s.adminLevel = level
		}
	}
}

// WithNameMapping replaces DefaultNameMapping.
func WithNameMapping(m map[string]string) RelationOption {
	return func(s *RelationStrategy) {
		if m != nil {
			s.names = m
		}
	}
}

// WithCodeMapping replaces DefaultCodeMapping.
func WithCodeMapping(m map[string]string) RelationOption {
	return func(s *RelationStrategy) {
		if m != nil {
			s.codes = m
		}
	}
}

// NewRelationStrategy creates the primary strategy over source.
func NewRelationStrategy(source Source, opts ...RelationOption) *RelationStrategy {
	s := &RelationStrategy{
		source:     source,
		retry:      resilience.BoundaryRetryConfig(),
		adminLevel: 8,
		names:      DefaultNameMapping,
		codes:      DefaultCodeMapping,
		log:        zap.L().With(zap.String("component", "boundary.relation")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Strategy.
func (s *RelationStrategy) Name() string { return SourceRelation }

// Resolve implements Strategy.
func (s *RelationStrategy) Resolve(ctx context.Context, req Request) (*RegionBounds, bool, error) {
	name := req.Region
	if mapped, ok := s.names[req.Region]; ok {
		name = mapped
	}
	code := req.Code
	if code == "" {
		code = s.codes[req.Region]
	}

	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("overpass", "lookup_relation")
	rel, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Relation, error) {
		return s.source.LookupRelation(ctx, name, code, s.adminLevel)
	})
	if err != nil {
		return nil, false, eris.Wrapf(err, "boundary: lookup relation %q", name)
	}
	if rel.Name == "" {
		rel.Name = req.Region
	}

	asm, err := Assemble(*rel)
	if err != nil {
		return nil, false, err
	}
	if asm.ForcedClosures > 0 || asm.Repaired {
		s.log.Warn("boundary needed fixing",
			zap.String("region", req.Region),
			zap.Int("forced_closures", asm.ForcedClosures),
			zap.Bool("repaired", asm.Repaired),
		)
	}
	return NewPolygonBounds(req.Region, asm.Geometry), true, nil
}

// GeocodeStrategy approximates a region by a generous circle around its
// geocoded center. It overcovers on purpose. Country restriction is left to
// the geocoder's configuration.
type GeocodeStrategy struct {
	geocoder     Geocoder
	radiusMeters int
}

// NewGeocodeStrategy creates the fallback strategy.
func NewGeocodeStrategy(g Geocoder, radiusMeters int) *GeocodeStrategy {
	if radiusMeters <= 0 {
		radiusMeters = 20_000
	}
	return &GeocodeStrategy{geocoder: g, radiusMeters: radiusMeters}
}

// Name implements Strategy.
func (s *GeocodeStrategy) Name() string { return SourceGeocode }

// Resolve implements Strategy.
func (s *GeocodeStrategy) Resolve(ctx context.Context, req Request) (*RegionBounds, bool, error) {
	center, err := s.geocoder.Geocode(ctx, req.Region)
	if err != nil {
		return nil, false, eris.Wrapf(err, "boundary: geocode %q", req.Region)
	}
	return NewCircleBounds(req.Region, center, s.radiusMeters), true, nil
}

// ReasonCode explains why a resolution is degraded.
type ReasonCode string

// Reason codes.
const (
	ReasonNone              ReasonCode = ""
	ReasonRelationNotFound  ReasonCode = "relation_not_found"
	ReasonRelationExhausted ReasonCode = "relation_retries_exhausted"
	ReasonRelationRejected  ReasonCode = "relation_rejected"
	ReasonGeometryInvalid   ReasonCode = "geometry_invalid"
)

func reasonFor(err error) ReasonCode {
	var ge *GeometryError
	switch {
	case err == nil:
		return ReasonNone
	case errors.As(err, &ge):
		return ReasonGeometryInvalid
	case resilience.IsNotFound(err):
		return ReasonRelationNotFound
	case resilience.IsTransient(err):
		return ReasonRelationExhausted
	default:
		return ReasonRelationRejected
	}
}
