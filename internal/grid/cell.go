// Package grid tiles a bounding box into overlapping search circles and
// adaptively subdivides the circles whose results hit a provider's cap.
package grid

import (
	"fmt"
	"math"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
)

// ChildOffsetFactor scales the diagonal offset of child centers relative to
// the child radius. Tuned empirically; values below 1/sqrt(2) leave the
// children overlapping at the parent center.
const ChildOffsetFactor = 0.7

// Cell is one search circle.
type Cell struct {
	Center       geodesy.LatLon `json:"center"`
	RadiusMeters int            `json:"radius_meters"`
	Depth        int            `json:"depth"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%.5f,%.5f r=%dm d=%d)", c.Center.Lat, c.Center.Lon, c.RadiusMeters, c.Depth)
}

// Subdivide returns the NE, NW, SE and SW children at half the radius.
func (c Cell) Subdivide(offsetFactor float64) [4]Cell {
	r := c.RadiusMeters / 2
	off := offsetFactor * float64(r) / 1000
	dirs := [4][2]float64{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

	var out [4]Cell
	for i, d := range dirs {
		out[i] = Cell{
			Center:       geodesy.Offset(c.Center, d[0]*off, d[1]*off),
			RadiusMeters: r,
			Depth:        c.Depth + 1,
		}
	}
	return out
}

// FetchResult is the outcome of querying one cell.
type FetchResult struct {
	Cell      Cell
	Records   []location.Record
	Saturated bool
}

// FetchError carries the cell whose query failed.
type FetchError struct {
	Cell Cell
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("grid: fetch cell %s: %v", e.Cell, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Stats summarizes one collection.
type Stats struct {
	TotalAPICalls   int `json:"total_api_calls"`
	CellsSubdivided int `json:"cells_subdivided"`
	CellsAtFloor    int `json:"cells_at_floor"`
	FailedCells     int `json:"failed_cells"`
	MaxDepth        int `json:"max_depth"`
	UniqueCount     int `json:"unique_count"`
}

// Add accumulates o into s. MaxDepth keeps the larger value.
func (s *Stats) Add(o Stats) {
	s.TotalAPICalls += o.TotalAPICalls
	s.CellsSubdivided += o.CellsSubdivided
	s.CellsAtFloor += o.CellsAtFloor
	s.FailedCells += o.FailedCells
	s.UniqueCount += o.UniqueCount
	if o.MaxDepth > s.MaxDepth {
		s.MaxDepth = o.MaxDepth
	}
}

// MaxDepth bounds the subdivision depth for an initial radius and a floor.
func MaxDepth(initialRadius, floor int) int {
	if floor <= 0 || initialRadius <= floor {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(initialRadius) / float64(floor))))
}
