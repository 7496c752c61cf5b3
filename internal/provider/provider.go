// Package provider adapts carrier pickup-point APIs to the two search shapes
// the collector understands: capped radius search and uncapped box search.
package provider

import (
	"context"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
)

// Kind is the search shape a provider supports.
type Kind string

// Provider kinds.
const (
	KindCapped Kind = "capped"
	KindBBox   Kind = "bbox"
)

// Provider is a named pickup-point source.
type Provider interface {
	Name() string
	Kind() Kind
}

// CappedSearcher answers radius searches and returns at most Cap items per
// call. A full page means the area may hold more. Search also reports how
// many items the endpoint returned before unusable ones were dropped.
type CappedSearcher interface {
	Provider
	Cap() int
	Search(ctx context.Context, center geodesy.LatLon, radiusMeters, limit int) (records []location.Record, returned int, err error)
}

// BBoxSearcher answers box searches without a result cap.
type BBoxSearcher interface {
	Provider
	SearchBBox(ctx context.Context, bbox geodesy.BBox) ([]location.Record, error)
}
