package grid

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/location"
)

// Sleeper pauses between provider calls. It returns early with the context
// error when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Collector runs the adaptive subdivision over a FIFO work queue.
type Collector struct {
	fetcher      *SaturatingFetcher
	offsetFactor float64
	sleep        Sleeper
	log          *zap.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithOffsetFactor overrides ChildOffsetFactor.
func WithOffsetFactor(f float64) Option {
	return func(c *Collector) {
		if f > 0 {
			c.offsetFactor = f
		}
	}
}

// WithSleeper replaces the timer-based pause between calls.
func WithSleeper(s Sleeper) Option {
	return func(c *Collector) {
		c.sleep = s
	}
}

// NewCollector creates a collector over fetcher.
func NewCollector(fetcher *SaturatingFetcher, opts ...Option) *Collector {
	c := &Collector{
		fetcher:      fetcher,
		offsetFactor: ChildOffsetFactor,
		sleep:        sleepCtx,
		log:          zap.L().With(zap.String("component", "grid.collector")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect drains the queue seeded with initial. A saturated cell above
// minRadius is replaced by its four children and its own records are
// dropped; a saturated cell at the floor is accepted as is. Records from
// accepted cells are merged by IdentityKey, first seen wins. A failed cell
// is logged and its subtree abandoned. The error is non-nil only when ctx
// ends; the partial map and stats are still returned.
func (c *Collector) Collect(ctx context.Context, initial []Cell, limit, minRadius int, delay time.Duration) (map[string]location.Record, Stats, error) {
	unique := make(map[string]location.Record)
	var stats Stats

	queue := append(make([]Cell, 0, len(initial)), initial...)
	for head := 0; head < len(queue); head++ {
		cell := queue[head]
		if cell.Depth > stats.MaxDepth {
			stats.MaxDepth = cell.Depth
		}

		res, err := c.fetcher.Fetch(ctx, cell, limit)
		stats.TotalAPICalls++

		switch {
		case err != nil:
			stats.FailedCells++
			c.log.Warn("cell fetch failed, skipping subtree",
				zap.Stringer("cell", cell),
				zap.Error(err),
			)
		case res.Saturated && cell.RadiusMeters > minRadius:
			stats.CellsSubdivided++
			children := cell.Subdivide(c.offsetFactor)
			queue = append(queue, children[:]...)
			c.log.Debug("cell saturated, subdividing",
				zap.Stringer("cell", cell),
				zap.Int("child_radius", children[0].RadiusMeters),
			)
		default:
			if res.Saturated {
				stats.CellsAtFloor++
				c.log.Info("cell saturated at radius floor, accepting truncated result",
					zap.Stringer("cell", cell),
					zap.Int("records", len(res.Records)),
				)
			}
			for _, r := range res.Records {
				if _, ok := unique[r.IdentityKey]; !ok {
					unique[r.IdentityKey] = r
				}
			}
		}

		if head < len(queue)-1 {
			if err := c.sleep(ctx, delay); err != nil {
				stats.UniqueCount = len(unique)
				return unique, stats, err
			}
		}
	}

	stats.UniqueCount = len(unique)
	c.log.Debug("collection complete",
		zap.Int("api_calls", stats.TotalAPICalls),
		zap.Int("subdivided", stats.CellsSubdivided),
		zap.Int("unique", stats.UniqueCount),
	)
	return unique, stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
