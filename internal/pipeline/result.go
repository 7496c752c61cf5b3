package pipeline

import (
	"time"

	"github.com/sells-group/pickup-cli/internal/boundary"
	"github.com/sells-group/pickup-cli/internal/grid"
	"github.com/sells-group/pickup-cli/internal/location"
)

// Status is the outcome of one region.
type Status string

// Region statuses.
const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Reason explains a non-ok status.
type Reason string

// Reason codes.
const (
	ReasonBoundaryFallback   Reason = "boundary_fallback"
	ReasonGeometryInvalid    Reason = "geometry_invalid"
	ReasonProviderError      Reason = "provider_error"
	ReasonNoData             Reason = "no_data"
	ReasonSinkError          Reason = "sink_error"
	ReasonBoundaryUnresolved Reason = "boundary_unresolved"
	ReasonCancelled          Reason = "cancelled"
)

// Dataset is what a sink receives for one region.
type Dataset struct {
	Region     Region
	Resolution *boundary.Resolution
	Records    []location.Record
	// ProviderCounts is the number of records per provider after clipping.
	ProviderCounts map[string]int
	NearDuplicates []location.NearDuplicate
	Stats          grid.Stats
	CollectedAt    time.Time
}

// RegionResult is one line of the run summary.
type RegionResult struct {
	Region         Region            `json:"region"`
	Status         Status            `json:"status"`
	Reasons        []Reason          `json:"reasons,omitempty"`
	Strategy       string            `json:"strategy,omitempty"`
	BoundsKind     string            `json:"bounds_kind,omitempty"`
	Records        int               `json:"records"`
	ProviderCounts map[string]int    `json:"provider_counts,omitempty"`
	ProviderErrors map[string]string `json:"provider_errors,omitempty"`
	NearDuplicates int               `json:"near_duplicates,omitempty"`
	Stats          grid.Stats        `json:"stats"`
	Error          string            `json:"error,omitempty"`
	ErrorClass     string            `json:"error_class,omitempty"`
	Duration       time.Duration     `json:"duration"`
}

func (r *RegionResult) addReason(reason Reason) {
	for _, have := range r.Reasons {
		if have == reason {
			return
		}
	}
	r.Reasons = append(r.Reasons, reason)
}

// RunSummary lists every region of a batch in input order.
type RunSummary struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Regions    []RegionResult `json:"regions"`
	Counts     map[Status]int `json:"counts"`
	Records    int            `json:"records"`
}

func (s *RunSummary) tally() {
	s.Counts = make(map[Status]int)
	s.Records = 0
	for _, r := range s.Regions {
		s.Counts[r.Status]++
		s.Records += r.Records
	}
}
