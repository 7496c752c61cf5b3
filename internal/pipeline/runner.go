package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/boundary"
	"github.com/sells-group/pickup-cli/internal/grid"
	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/provider"
	"github.com/sells-group/pickup-cli/internal/resilience"
)

// Resolver produces the bounds of a region.
type Resolver interface {
	ResolveDetailed(ctx context.Context, region, code string) (*boundary.Resolution, error)
}

// Sink receives one finished dataset per region.
type Sink interface {
	Write(ctx context.Context, ds *Dataset) error
}

// GridSettings controls the adaptive collection for capped providers.
type GridSettings struct {
	SpacingKm           float64
	InitialRadiusMeters int
	MinRadiusMeters     int
	// Cap overrides the provider's own page size when positive and smaller.
	Cap   int
	Delay time.Duration
}

// DefaultGridSettings is a 10 km start radius down to 2 km, 500ms apart.
func DefaultGridSettings() GridSettings {
	return GridSettings{
		SpacingKm:           grid.DefaultSpacingKm(10),
		InitialRadiusMeters: 10_000,
		MinRadiusMeters:     2_000,
		Delay:               500 * time.Millisecond,
	}
}

// Runner processes single regions.
type Runner struct {
	resolver      Resolver
	capped        []provider.CappedSearcher
	boxed         []provider.BBoxSearcher
	sink          Sink
	grid          GridSettings
	gridOpts      []grid.Option
	nearDupMeters float64
	now           func() time.Time
	log           *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithGridOptions passes options to every collector.
func WithGridOptions(opts ...grid.Option) RunnerOption {
	return func(r *Runner) { r.gridOpts = append(r.gridOpts, opts...) }
}

// WithNearDuplicateMeters sets the distance under which same-named points of
// one provider are reported. Zero disables the report.
func WithNearDuplicateMeters(m float64) RunnerOption {
	return func(r *Runner) { r.nearDupMeters = m }
}

// NewRunner creates a runner over providers. Every provider must support
// capped or box search.
func NewRunner(resolver Resolver, providers []provider.Provider, sink Sink, settings GridSettings, opts ...RunnerOption) (*Runner, error) {
	if resolver == nil {
		return nil, eris.New("pipeline: resolver is required")
	}
	if len(providers) == 0 {
		return nil, eris.New("pipeline: no providers")
	}
	capped, boxed, err := provider.Split(providers)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: providers")
	}
	if settings.InitialRadiusMeters <= 0 {
		settings.InitialRadiusMeters = DefaultGridSettings().InitialRadiusMeters
	}
	if settings.SpacingKm <= 0 {
		settings.SpacingKm = grid.DefaultSpacingKm(float64(settings.InitialRadiusMeters) / 1000)
	}

	r := &Runner{
		resolver:      resolver,
		capped:        capped,
		boxed:         boxed,
		sink:          sink,
		grid:          settings,
		nearDupMeters: 10,
		now:           time.Now,
		log:           zap.L().With(zap.String("component", "pipeline.runner")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunRegion processes one region. Failures are reported in the result; the
// error is non-nil only when ctx ends.
func (r *Runner) RunRegion(ctx context.Context, region Region) (RegionResult, error) {
	start := time.Now()
	res := RegionResult{Region: region}
	log := r.log.With(zap.String("region", region.Name))

	resolution, err := r.resolver.ResolveDetailed(ctx, region.Name, region.Code)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(res, ctx.Err()), ctx.Err()
		}
		res.Status = StatusFailed
		res.addReason(ReasonBoundaryUnresolved)
		res.Error = err.Error()
		res.ErrorClass = string(resilience.Classify(err))
		log.Error("region bounds unresolved", zap.String("class", res.ErrorClass), zap.Error(err))
		res.Duration = time.Since(start)
		return res, nil
	}
	bounds := resolution.Bounds
	res.Strategy = resolution.Strategy
	res.BoundsKind = string(bounds.Kind)
	if resolution.Degraded {
		res.addReason(ReasonBoundaryFallback)
		if resolution.Reason == boundary.ReasonGeometryInvalid {
			res.addReason(ReasonGeometryInvalid)
		}
	}

	sets, failed, err := r.collect(ctx, bounds, &res)
	if err != nil {
		return r.cancelled(res, err), err
	}
	if failed == len(r.capped)+len(r.boxed) {
		res.Status = StatusFailed
		res.Error = "every provider failed"
		log.Error("region failed, no provider answered")
		res.Duration = time.Since(start)
		return res, nil
	}

	merged := location.Deduplicate(sets...)
	within := location.FilterWithin(merged, bounds)
	res.Records = len(within)
	res.ProviderCounts = countByProvider(within)

	if len(within) == 0 {
		res.Status = StatusSkipped
		res.addReason(ReasonNoData)
		log.Warn("no pickup points inside region", zap.Int("before_clip", len(merged)))
		res.Duration = time.Since(start)
		return res, nil
	}

	ds := &Dataset{
		Region:         region,
		Resolution:     resolution,
		Records:        within,
		ProviderCounts: res.ProviderCounts,
		Stats:          res.Stats,
		CollectedAt:    r.now().UTC(),
	}
	if r.nearDupMeters > 0 {
		ds.NearDuplicates = location.NearDuplicates(within, r.nearDupMeters)
		res.NearDuplicates = len(ds.NearDuplicates)
	}

	if r.sink != nil {
		if err := r.sink.Write(ctx, ds); err != nil {
			if ctx.Err() != nil {
				return r.cancelled(res, ctx.Err()), ctx.Err()
			}
			res.Status = StatusFailed
			res.addReason(ReasonSinkError)
			res.Error = err.Error()
			log.Error("sink write failed", zap.Error(err))
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	res.Status = StatusOK
	if len(res.Reasons) > 0 {
		res.Status = StatusDegraded
	}
	res.Duration = time.Since(start)
	log.Info("region complete",
		zap.String("status", string(res.Status)),
		zap.String("strategy", res.Strategy),
		zap.Int("records", res.Records),
		zap.Int("api_calls", res.Stats.TotalAPICalls),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

// collect queries every provider over bounds and returns one record set per
// provider that answered, plus the number that failed outright.
func (r *Runner) collect(ctx context.Context, bounds *boundary.RegionBounds, res *RegionResult) ([][]location.Record, int, error) {
	var sets [][]location.Record
	failed := 0
	fail := func(name string, err error) {
		failed++
		res.addReason(ReasonProviderError)
		if res.ProviderErrors == nil {
			res.ProviderErrors = make(map[string]string)
		}
		res.ProviderErrors[name] = err.Error()
		r.log.Warn("provider failed for region",
			zap.String("region", res.Region.Name),
			zap.String("provider", name),
			zap.String("class", string(resilience.Classify(err))),
			zap.Error(err),
		)
	}

	bbox := bounds.SearchBBox()
	for _, p := range r.capped {
		limit := p.Cap()
		if r.grid.Cap > 0 && r.grid.Cap < limit {
			limit = r.grid.Cap
		}
		cells := grid.GenerateCells(bbox, r.grid.SpacingKm, float64(r.grid.InitialRadiusMeters)/1000)
		collector := grid.NewCollector(grid.NewSaturatingFetcher(p), r.gridOpts...)

		unique, stats, err := collector.Collect(ctx, cells, limit, r.grid.MinRadiusMeters, r.grid.Delay)
		res.Stats.Add(stats)
		if err != nil {
			return nil, failed, err
		}
		if stats.FailedCells > 0 {
			if stats.FailedCells == stats.TotalAPICalls {
				fail(p.Name(), eris.Errorf("pipeline: all %d cells failed", stats.FailedCells))
				continue
			}
			res.addReason(ReasonProviderError)
			if res.ProviderErrors == nil {
				res.ProviderErrors = make(map[string]string)
			}
			res.ProviderErrors[p.Name()] = fmt.Sprintf("%d of %d cells failed", stats.FailedCells, stats.TotalAPICalls)
		}
		sets = append(sets, location.FromMap(unique))
	}

	for _, p := range r.boxed {
		recs, err := p.SearchBBox(ctx, bbox)
		if err != nil {
			if ctx.Err() != nil {
				return nil, failed, ctx.Err()
			}
			fail(p.Name(), err)
			continue
		}
		sets = append(sets, recs)
	}
	return sets, failed, nil
}

func (r *Runner) cancelled(res RegionResult, err error) RegionResult {
	res.Status = StatusFailed
	res.addReason(ReasonCancelled)
	res.Error = err.Error()
	return res
}

func countByProvider(records []location.Record) map[string]int {
	out := make(map[string]int)
	for _, rec := range records {
		out[rec.Provider]++
	}
	return out
}
