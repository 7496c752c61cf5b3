package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// Sink adapts a Store to pipeline.Sink for one run.
type Sink struct {
	store Store
	runID string
	log   *zap.Logger
}

// NewSink returns a sink writing into runID.
func NewSink(st Store, runID string) *Sink {
	return &Sink{
		store: st,
		runID: runID,
		log:   zap.L().With(zap.String("component", "store.sink"), zap.String("run_id", runID)),
	}
}

// Write implements pipeline.Sink.
func (s *Sink) Write(ctx context.Context, ds *pipeline.Dataset) error {
	return s.store.SaveDataset(ctx, s.runID, ds)
}

// OnRegion records a region outcome. It fits pipeline.BatchOptions.OnRegion;
// failures are logged since the batch cannot act on them.
func (s *Sink) OnRegion(ctx context.Context, res pipeline.RegionResult) {
	if err := s.store.RecordRegion(ctx, s.runID, res); err != nil {
		s.log.Warn("record region failed", zap.String("region", res.Region.Name), zap.Error(err))
	}
}
