package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Concurrency is the number of regions processed at once. Default 4.
	Concurrency int
	// OnRegion is called once per region from the worker goroutine, also
	// for regions cut short or never started because ctx ended. Its ctx is
	// not cancelled with the batch so the outcome can still be recorded.
	OnRegion func(ctx context.Context, res RegionResult)
}

// RunBatch processes regions in parallel. One region's failure never stops
// the others. The summary lists every region in input order; regions not
// started because ctx ended are reported as failed with reason cancelled.
// The error is non-nil only when ctx ends.
func (r *Runner) RunBatch(ctx context.Context, regions []Region, opts BatchOptions) (*RunSummary, error) {
	log := r.log.With(zap.String("op", "batch"))
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	summary := &RunSummary{
		StartedAt: r.now().UTC(),
		Regions:   make([]RegionResult, len(regions)),
	}
	log.Info("batch starting",
		zap.Int("regions", len(regions)),
		zap.Int("concurrency", opts.Concurrency),
	)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	report := func(res RegionResult) {
		if opts.OnRegion != nil {
			opts.OnRegion(context.WithoutCancel(gctx), res)
		}
	}

	for i, region := range regions {
		summary.Regions[i] = RegionResult{
			Region:  region,
			Status:  StatusFailed,
			Reasons: []Reason{ReasonCancelled},
			Error:   "not started",
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report(summary.Regions[i])
				return err
			}
			res, err := r.RunRegion(gctx, region)
			summary.Regions[i] = res
			report(res)
			log.Debug("region finished",
				zap.String("region", region.Name),
				zap.Int64("done", done.Add(1)),
				zap.Int("total", len(regions)),
			)
			return err
		})
	}

	err := g.Wait()
	summary.FinishedAt = r.now().UTC()
	summary.tally()

	log.Info("batch complete",
		zap.Int("ok", summary.Counts[StatusOK]),
		zap.Int("degraded", summary.Counts[StatusDegraded]),
		zap.Int("skipped", summary.Counts[StatusSkipped]),
		zap.Int("failed", summary.Counts[StatusFailed]),
		zap.Int("records", summary.Records),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	if err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

// Elapsed is the wall time of the batch.
func (s *RunSummary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
