// Package store persists run history: one row per batch run, one per
// region outcome, and the collected locations and bounds of every region
// that reached a sink.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// ErrNotFound is returned (wrapped) when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one batch invocation.
type Run struct {
	ID         string                  `json:"id"`
	Status     RunStatus               `json:"status"`
	Regions    int                     `json:"regions"`
	Counts     map[pipeline.Status]int `json:"counts,omitempty"`
	Records    int                     `json:"records"`
	Error      string                  `json:"error,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
}

// RegionRecord is a stored region outcome.
type RegionRecord struct {
	RunID      string                `json:"run_id"`
	Slug       string                `json:"slug"`
	Status     pipeline.Status       `json:"status"`
	Result     pipeline.RegionResult `json:"result"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store is the persistence interface for batch runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, regions int) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary *pipeline.RunSummary, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Regions
	RecordRegion(ctx context.Context, runID string, res pipeline.RegionResult) error
	ListRegions(ctx context.Context, runID string) ([]RegionRecord, error)

	// Datasets
	SaveDataset(ctx context.Context, runID string, ds *pipeline.Dataset) error
	ListLocations(ctx context.Context, runID, slug string) ([]location.Record, error)
	// Bounds returns the stored footprint of a region.
	Bounds(ctx context.Context, runID, slug string) (geom.T, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// completion derives the final run row from a batch summary.
func completion(summary *pipeline.RunSummary, runErr error) (RunStatus, map[pipeline.Status]int, int, string) {
	status := RunStatusComplete
	var msg string
	if runErr != nil {
		status = RunStatusFailed
		msg = runErr.Error()
	}
	if summary == nil {
		return status, nil, 0, msg
	}
	return status, summary.Counts, summary.Records, msg
}
