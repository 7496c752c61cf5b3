package provider

import (
	"context"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/pkg/dhl"
)

// DHL is the capped radius provider backed by the DHL Parcel locator.
type DHL struct {
	adapter
	client *dhl.Client
}

// NewDHL wraps client.
func NewDHL(client *dhl.Client, opts ...Option) *DHL {
	return &DHL{adapter: newAdapter("DHL", opts), client: client}
}

// Name implements Provider.
func (d *DHL) Name() string { return d.name }

// Kind implements Provider.
func (d *DHL) Kind() Kind { return KindCapped }

// Cap implements CappedSearcher.
func (d *DHL) Cap() int { return dhl.MaxLimit }

// Search implements CappedSearcher.
func (d *DHL) Search(ctx context.Context, center geodesy.LatLon, radiusMeters, limit int) ([]location.Record, int, error) {
	return d.call(ctx, "by_geo", func(ctx context.Context) ([]map[string]any, error) {
		return d.client.ByGeo(ctx, center.Lat, center.Lon, radiusMeters, limit)
	})
}
