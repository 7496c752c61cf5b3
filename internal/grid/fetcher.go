package grid

import (
	"context"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
)

// Searcher is a capped radius search against one provider. returned is the
// number of items the endpoint sent, counted before any were dropped during
// normalization.
type Searcher interface {
	Search(ctx context.Context, center geodesy.LatLon, radiusMeters, limit int) (records []location.Record, returned int, err error)
}

// SaturatingFetcher queries one cell and flags results that hit the cap.
type SaturatingFetcher struct {
	searcher Searcher
}

// NewSaturatingFetcher wraps s.
func NewSaturatingFetcher(s Searcher) *SaturatingFetcher {
	return &SaturatingFetcher{searcher: s}
}

// Fetch searches around the cell center with the provider cap as limit. The
// result is saturated when the endpoint returned limit items, even if some of
// them could not be used.
func (f *SaturatingFetcher) Fetch(ctx context.Context, cell Cell, limit int) (FetchResult, error) {
	records, returned, err := f.searcher.Search(ctx, cell.Center, cell.RadiusMeters, limit)
	if err != nil {
		return FetchResult{Cell: cell}, &FetchError{Cell: cell, Err: err}
	}
	return FetchResult{
		Cell:      cell,
		Records:   records,
		Saturated: returned == limit,
	}, nil
}
