package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pickup-cli/internal/boundary"
	"github.com/sells-group/pickup-cli/internal/config"
	"github.com/sells-group/pickup-cli/internal/export"
	"github.com/sells-group/pickup-cli/internal/grid"
	"github.com/sells-group/pickup-cli/internal/pipeline"
	"github.com/sells-group/pickup-cli/internal/provider"
	"github.com/sells-group/pickup-cli/internal/resilience"
	"github.com/sells-group/pickup-cli/internal/store"
	"github.com/sells-group/pickup-cli/pkg/dhl"
	"github.com/sells-group/pickup-cli/pkg/geocode"
	"github.com/sells-group/pickup-cli/pkg/overpass"
	"github.com/sells-group/pickup-cli/pkg/postnl"
)

// initStore opens the configured run store. It returns nil for driver none.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// limiter turns a requests-per-second setting into a limiter. Zero or
// negative means unlimited.
func limiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// initGeocoder builds the coarse geocoder cascade in configured order.
func initGeocoder(c *config.Config) *geocode.CascadeClient {
	shared := []geocode.Option{
		geocode.WithLimiter(limiter(c.Geocode.RateLimit)),
		geocode.WithUserAgent(c.Geocode.UserAgent),
		geocode.WithCountryCodes(c.Geocode.CountryCodes),
	}

	var providers []geocode.Provider
	for _, name := range c.Geocode.Providers {
		switch name {
		case "nominatim":
			providers = append(providers, geocode.NewNominatim(append(shared, geocode.WithBaseURL(c.Geocode.NominatimURL))...))
		case "pdok":
			providers = append(providers, geocode.NewPDOK(append(shared, geocode.WithBaseURL(c.Geocode.PDOKURL))...))
		}
	}
	return geocode.NewCascadeClient(providers...)
}

// initResolver builds the boundary resolver: the relation lookup first,
// then a padded circle around the geocoded center.
func initResolver(c *config.Config) *boundary.Resolver {
	b := c.Boundary
	client := overpass.NewClient(
		overpass.WithBaseURL(b.OverpassURL),
		overpass.WithUserAgent(c.Geocode.UserAgent),
		overpass.WithTimeout(time.Duration(b.TimeoutSecs+30)*time.Second),
	)
	names, codes := b.Mappings()

	relation := boundary.NewRelationStrategy(
		boundary.NewOverpassSource(client, b.CountryISO, b.TimeoutSecs),
		boundary.WithRetry(b.Retry()),
		boundary.WithAdminLevel(b.AdminLevel),
		boundary.WithNameMapping(names),
		boundary.WithCodeMapping(codes),
	)
	fallback := boundary.NewGeocodeStrategy(initGeocoder(c), b.FallbackRadiusMeters)

	return boundary.NewResolver(boundary.NewCache(), b.CountryISO, relation, fallback)
}

// initProviders registers every known provider and returns the enabled
// ones in configured order.
func initProviders(c *config.Config) ([]provider.Provider, error) {
	p := c.Providers
	breakers := resilience.NewBreakers(p.Breaker())
	retry := p.Retry()

	reg := provider.NewRegistry()
	reg.Register(provider.NewDHL(
		dhl.NewClient(
			dhl.WithBaseURL(p.DHL.BaseURL),
			dhl.WithLimiter(limiter(p.DHL.RateLimit)),
			dhl.WithUserAgent(p.UserAgent),
		),
		provider.WithRetry(retry),
		provider.WithBreaker(breakers.Get("DHL")),
	))
	reg.Register(provider.NewPostNL(
		postnl.NewClient(
			postnl.WithBaseURL(p.PostNL.BaseURL),
			postnl.WithLimiter(limiter(p.PostNL.RateLimit)),
			postnl.WithUserAgent(p.UserAgent),
		),
		provider.WithRetry(retry),
		provider.WithBreaker(breakers.Get("PostNL")),
	))

	return reg.Select(p.Enabled)
}

// gridSettings maps the grid config section onto the runner's settings.
func gridSettings(g config.GridConfig) pipeline.GridSettings {
	return pipeline.GridSettings{
		SpacingKm:           g.SpacingKm,
		InitialRadiusMeters: g.InitialRadiusMeters,
		MinRadiusMeters:     g.MinRadiusMeters,
		Cap:                 g.Cap,
		Delay:               g.Delay(),
	}
}

// initSinks builds the file sinks for the configured formats plus the
// store sink when a run is being recorded.
func initSinks(c *config.Config, st store.Store, runID string) export.MultiSink {
	var sinks export.MultiSink
	if c.Output.HasFormat(config.FormatGeoJSON) {
		w := export.NewGeoJSONWriter(c.Output.Dir)
		w.Indent = c.Output.Indent
		sinks = append(sinks, w)
	}
	if c.Output.HasFormat(config.FormatShapefile) {
		sinks = append(sinks, export.NewShapefileWriter(c.Output.Dir))
	}
	if st != nil {
		sinks = append(sinks, store.NewSink(st, runID))
	}
	return sinks
}

// initRunner wires resolver, providers and sink into a pipeline runner.
func initRunner(c *config.Config, sink pipeline.Sink) (*pipeline.Runner, error) {
	providers, err := initProviders(c)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(initResolver(c), providers, sink, gridSettings(c.Grid),
		pipeline.WithGridOptions(grid.WithOffsetFactor(c.Grid.OffsetFactor)),
		pipeline.WithNearDuplicateMeters(c.Batch.NearDuplicateMeters),
	)
}
