package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
)

type respondFunc func(cell Cell, call int) ([]location.Record, error)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   []Cell
	limits  []int
	respond respondFunc
}

func (f *fakeSearcher) Search(_ context.Context, center geodesy.LatLon, radiusMeters, limit int) ([]location.Record, int, error) {
	f.mu.Lock()
	call := len(f.calls)
	cell := Cell{Center: center, RadiusMeters: radiusMeters}
	f.calls = append(f.calls, cell)
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	recs, err := f.respond(cell, call)
	return recs, len(recs), err
}

func records(prefix string, n int, center geodesy.LatLon) []location.Record {
	out := make([]location.Record, n)
	for i := range out {
		out[i] = location.Record{
			Name:     fmt.Sprintf("%s-%d", prefix, i),
			Lat:      center.Lat + float64(i)*1e-4,
			Lon:      center.Lon,
			Provider: "DHL",
		}.Keyed()
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

func keys(m map[string]location.Record) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// GenerateCells
// ---------------------------------------------------------------------------

func TestGenerateCells_CoversBBox(t *testing.T) {
	tests := []struct {
		name      string
		bbox      geodesy.BBox
		spacingKm float64
	}{
		{"region", geodesy.BBox{MinLon: 4.0, MinLat: 51.0, MaxLon: 4.5, MaxLat: 51.5}, 15},
		{"narrow", geodesy.BBox{MinLon: 5.0, MinLat: 52.0, MaxLon: 5.05, MaxLat: 52.6}, 10},
		{"national", geodesy.Netherlands, 30},
		{"high latitude", geodesy.BBox{MinLon: 10, MinLat: 65, MaxLon: 12, MaxLat: 66}, 20},
		{"smaller than spacing", geodesy.BBox{MinLon: 5.0, MinLat: 52.0, MaxLon: 5.01, MaxLat: 52.01}, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radiusKm := tt.spacingKm
			cells := GenerateCells(tt.bbox, tt.spacingKm, radiusKm)
			require.NotEmpty(t, cells)

			const steps = 25
			for i := 0; i <= steps; i++ {
				for j := 0; j <= steps; j++ {
					p := geodesy.LatLon{
						Lat: tt.bbox.MinLat + (tt.bbox.MaxLat-tt.bbox.MinLat)*float64(i)/steps,
						Lon: tt.bbox.MinLon + (tt.bbox.MaxLon-tt.bbox.MinLon)*float64(j)/steps,
					}
					best := math.Inf(1)
					for _, c := range cells {
						best = math.Min(best, geodesy.Distance(p, c.Center))
					}
					assert.LessOrEqual(t, best, radiusKm*1000, "point %+v uncovered", p)
				}
			}
		})
	}
}

func TestGenerateCells_DefaultSpacingCovers(t *testing.T) {
	bbox := geodesy.BBox{MinLon: 4.0, MinLat: 51.0, MaxLon: 4.5, MaxLat: 51.5}
	spacing := DefaultSpacingKm(10)
	require.True(t, CoverageSpacingOK(spacing, 10))
	cells := GenerateCells(bbox, spacing, 10)

	for _, p := range []geodesy.LatLon{bbox.Center(), {Lat: 51.5, Lon: 4.5}, {Lat: 51.0, Lon: 4.5}, {Lat: 51.37, Lon: 4.13}} {
		best := math.Inf(1)
		for _, c := range cells {
			best = math.Min(best, geodesy.Distance(p, c.Center))
		}
		assert.LessOrEqual(t, best, 10_000.0)
	}
}

func TestGenerateCells_Degenerate(t *testing.T) {
	point := geodesy.BBox{MinLon: 5, MinLat: 52, MaxLon: 5, MaxLat: 52}
	cells := GenerateCells(point, 15, 10)
	require.Len(t, cells, 1)
	assert.Equal(t, geodesy.LatLon{Lat: 52, Lon: 5}, cells[0].Center)
	assert.Equal(t, 10_000, cells[0].RadiusMeters)

	inverted := geodesy.BBox{MinLon: 6, MinLat: 52, MaxLon: 5, MaxLat: 53}
	cells = GenerateCells(inverted, 15, 10)
	require.Len(t, cells, 1)
	assert.Equal(t, inverted.Center(), cells[0].Center)

	cells = GenerateCells(geodesy.Netherlands, 0, 10)
	require.Len(t, cells, 1)
	assert.Equal(t, geodesy.Netherlands.Center(), cells[0].Center)
}

func TestGenerateCells_FlatBoxCoversItsLength(t *testing.T) {
	tests := []struct {
		name string
		bbox geodesy.BBox
	}{
		{"east-west", geodesy.BBox{MinLon: 5, MinLat: 52, MaxLon: 6, MaxLat: 52}},
		{"north-south", geodesy.BBox{MinLon: 5, MinLat: 52, MaxLon: 5, MaxLat: 53}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := GenerateCells(tt.bbox, 14, 10)
			require.Greater(t, len(cells), 1)

			for i := 0; i <= 100; i++ {
				f := float64(i) / 100
				p := geodesy.LatLon{
					Lat: tt.bbox.MinLat + f*(tt.bbox.MaxLat-tt.bbox.MinLat),
					Lon: tt.bbox.MinLon + f*(tt.bbox.MaxLon-tt.bbox.MinLon),
				}
				covered := false
				for _, c := range cells {
					if geodesy.Distance(p, c.Center) <= float64(c.RadiusMeters) {
						covered = true
						break
					}
				}
				assert.True(t, covered, "point %v not covered", p)
			}
		})
	}
}

func TestGenerateCells_LongitudeStepPerRow(t *testing.T) {
	equator := GenerateCells(geodesy.BBox{MinLon: 0, MinLat: 0, MaxLon: 2, MaxLat: 0.01}, 11.1, 10)
	north := GenerateCells(geodesy.BBox{MinLon: 0, MinLat: 60, MaxLon: 2, MaxLat: 60.01}, 11.1, 10)

	// One row plus the overshoot row in both cases.
	assert.Greater(t, len(equator), len(north))
	assert.InDelta(t, 0.1, equator[1].Center.Lon-equator[0].Center.Lon, 1e-9)
	assert.InDelta(t, 0.2, north[1].Center.Lon-north[0].Center.Lon, 1e-9)
}

func TestGenerateCells_StartsAtMinCorner(t *testing.T) {
	bbox := geodesy.BBox{MinLon: 4.0, MinLat: 51.0, MaxLon: 4.5, MaxLat: 51.5}
	cells := GenerateCells(bbox, 15, 10)
	require.NotEmpty(t, cells)
	assert.Equal(t, geodesy.LatLon{Lat: 51.0, Lon: 4.0}, cells[0].Center)
	for _, c := range cells {
		assert.Equal(t, 10_000, c.RadiusMeters)
		assert.Zero(t, c.Depth)
	}
}

// ---------------------------------------------------------------------------
// Cell
// ---------------------------------------------------------------------------

func TestCell_Subdivide(t *testing.T) {
	parent := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_001}
	children := parent.Subdivide(ChildOffsetFactor)

	for _, c := range children {
		assert.Equal(t, 5_000, c.RadiusMeters)
		assert.Equal(t, 1, c.Depth)
		d := geodesy.Distance(parent.Center, c.Center)
		assert.InEpsilon(t, math.Sqrt2*0.7*5_000, d, 0.02)
	}
	assert.Greater(t, children[0].Center.Lat, parent.Center.Lat) // NE
	assert.Greater(t, children[0].Center.Lon, parent.Center.Lon)
	assert.Less(t, children[1].Center.Lon, parent.Center.Lon) // NW
	assert.Less(t, children[3].Center.Lat, parent.Center.Lat) // SW
}

func TestMaxDepth(t *testing.T) {
	assert.Equal(t, 3, MaxDepth(10_000, 2_000))
	assert.Equal(t, 2, MaxDepth(8_000, 2_000))
	assert.Equal(t, 0, MaxDepth(2_000, 2_000))
	assert.Equal(t, 0, MaxDepth(1_000, 2_000))
	assert.Equal(t, 0, MaxDepth(1_000, 0))
}

// ---------------------------------------------------------------------------
// SaturatingFetcher
// ---------------------------------------------------------------------------

func TestSaturatingFetcher_ExactCap(t *testing.T) {
	cell := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_000}

	full := &fakeSearcher{respond: func(c Cell, _ int) ([]location.Record, error) {
		return records("x", 50, c.Center), nil
	}}
	res, err := NewSaturatingFetcher(full).Fetch(context.Background(), cell, 50)
	require.NoError(t, err)
	assert.True(t, res.Saturated)
	assert.Equal(t, []int{50}, full.limits)

	under := &fakeSearcher{respond: func(c Cell, _ int) ([]location.Record, error) {
		return records("x", 49, c.Center), nil
	}}
	res, err = NewSaturatingFetcher(under).Fetch(context.Background(), cell, 50)
	require.NoError(t, err)
	assert.False(t, res.Saturated)
	assert.Len(t, res.Records, 49)
}

// pagedSearcher reports a full page of which only some items were usable.
type pagedSearcher struct{ usable, returned int }

func (p pagedSearcher) Search(_ context.Context, center geodesy.LatLon, _, _ int) ([]location.Record, int, error) {
	return records("p", p.usable, center), p.returned, nil
}

func TestSaturatingFetcher_CountsReturnedItems(t *testing.T) {
	cell := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_000}

	res, err := NewSaturatingFetcher(pagedSearcher{usable: 49, returned: 50}).Fetch(context.Background(), cell, 50)
	require.NoError(t, err)
	assert.True(t, res.Saturated)
	assert.Len(t, res.Records, 49)

	res, err = NewSaturatingFetcher(pagedSearcher{usable: 49, returned: 49}).Fetch(context.Background(), cell, 50)
	require.NoError(t, err)
	assert.False(t, res.Saturated)
}

func TestSaturatingFetcher_Error(t *testing.T) {
	cell := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_000}
	boom := errors.New("connection reset by peer")
	s := &fakeSearcher{respond: func(Cell, int) ([]location.Record, error) { return nil, boom }}

	_, err := NewSaturatingFetcher(s).Fetch(context.Background(), cell, 50)
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, cell, fe.Cell)
	assert.ErrorIs(t, err, boom)
}

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

func TestCollect_SubdividesOnlyAtExactCap(t *testing.T) {
	root := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_000}

	s := &fakeSearcher{respond: func(c Cell, call int) ([]location.Record, error) {
		if call == 0 {
			return records("root", 49, c.Center), nil
		}
		return nil, nil
	}}
	out, stats, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
		Collect(context.Background(), []Cell{root}, 50, 2_000, 0)
	require.NoError(t, err)
	assert.Len(t, out, 49)
	assert.Equal(t, 1, stats.TotalAPICalls)
	assert.Zero(t, stats.CellsSubdivided)

	s = &fakeSearcher{respond: func(c Cell, call int) ([]location.Record, error) {
		if call == 0 {
			return records("root", 50, c.Center), nil
		}
		return nil, nil
	}}
	_, stats, err = NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
		Collect(context.Background(), []Cell{root}, 50, 2_000, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalAPICalls)
	assert.Equal(t, 1, stats.CellsSubdivided)
	assert.Equal(t, 1, stats.MaxDepth)
}

func TestCollect_TerminatesAtFloor(t *testing.T) {
	tests := []struct {
		radius, floor int
		calls         int
	}{
		{10_000, 2_000, 1 + 4 + 16 + 64},
		{8_000, 2_000, 1 + 4 + 16},
		{2_000, 2_000, 1},
		{10_001, 5_000, 1 + 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("R%d_F%d", tt.radius, tt.floor), func(t *testing.T) {
			s := &fakeSearcher{respond: func(c Cell, _ int) ([]location.Record, error) {
				return records(c.String(), 50, c.Center), nil
			}}
			root := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: tt.radius}
			_, stats, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
				Collect(context.Background(), []Cell{root}, 50, tt.floor, 0)
			require.NoError(t, err)

			assert.Equal(t, tt.calls, stats.TotalAPICalls)
			assert.LessOrEqual(t, stats.MaxDepth, MaxDepth(tt.radius, tt.floor))
			assert.Equal(t, stats.TotalAPICalls-stats.CellsSubdivided, stats.CellsAtFloor)
			for _, c := range s.calls {
				assert.Greater(t, c.RadiusMeters*2, tt.floor)
			}
		})
	}

	// 10 km down to 2 km reaches the bound exactly.
	s := &fakeSearcher{respond: func(c Cell, _ int) ([]location.Record, error) {
		return records("x", 50, c.Center), nil
	}}
	_, stats, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
		Collect(context.Background(), []Cell{{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_000}}, 50, 2_000, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MaxDepth)
	assert.Equal(t, 21, stats.CellsSubdivided)
	assert.Equal(t, 64, stats.CellsAtFloor)
}

func TestCollect_IdempotentAcrossQueueOrder(t *testing.T) {
	bbox := geodesy.BBox{MinLon: 4.0, MinLat: 51.0, MaxLon: 4.5, MaxLat: 51.5}
	cells := GenerateCells(bbox, 15, 10)

	respond := func(c Cell, _ int) ([]location.Record, error) {
		// Dense area in the south-west corner; shared points near the
		// middle show up from several cells.
		shared := records("shared", 5, geodesy.LatLon{Lat: 51.25, Lon: 4.25})
		if c.RadiusMeters == 10_000 && c.Center.Lat < 51.1 && c.Center.Lon < 4.1 {
			return records("dense", 50, c.Center), nil
		}
		own := records(fmt.Sprintf("%.4f,%.4f", c.Center.Lat, c.Center.Lon), 3, c.Center)
		return append(own, shared...), nil
	}

	run := func(in []Cell) map[string]location.Record {
		s := &fakeSearcher{respond: respond}
		out, _, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
			Collect(context.Background(), in, 50, 2_000, 0)
		require.NoError(t, err)
		return out
	}

	reversed := make([]Cell, len(cells))
	for i, c := range cells {
		reversed[len(cells)-1-i] = c
	}

	first := run(cells)
	second := run(cells)
	third := run(reversed)

	assert.Equal(t, keys(first), keys(second))
	assert.Equal(t, keys(first), keys(third))
	assert.NotEmpty(t, first)
}

func TestCollect_FailedCellIsSkipped(t *testing.T) {
	a := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 10_000}
	b := Cell{Center: geodesy.LatLon{Lat: 52.2, Lon: 5}, RadiusMeters: 10_000}

	s := &fakeSearcher{respond: func(c Cell, _ int) ([]location.Record, error) {
		if c.Center == a.Center {
			return nil, errors.New("503 service unavailable")
		}
		return records("b", 3, c.Center), nil
	}}
	out, stats, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
		Collect(context.Background(), []Cell{a, b}, 50, 2_000, 0)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 1, stats.FailedCells)
	assert.Equal(t, 2, stats.TotalAPICalls)
	assert.Equal(t, 3, stats.UniqueCount)
}

func TestCollect_SleepsBetweenCallsOnly(t *testing.T) {
	var sleeps []time.Duration
	sleeper := func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	s := &fakeSearcher{respond: func(c Cell, call int) ([]location.Record, error) {
		if call == 0 {
			return records("root", 50, c.Center), nil
		}
		return nil, nil
	}}
	root := Cell{Center: geodesy.LatLon{Lat: 52, Lon: 5}, RadiusMeters: 4_000}
	_, stats, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(sleeper)).
		Collect(context.Background(), []Cell{root}, 50, 2_000, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalAPICalls)
	assert.Len(t, sleeps, 4)
	for _, d := range sleeps {
		assert.Equal(t, 500*time.Millisecond, d)
	}
}

func TestCollect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSearcher{respond: func(c Cell, _ int) ([]location.Record, error) {
		cancel()
		return records("x", 2, c.Center), nil
	}}
	cells := GenerateCells(geodesy.BBox{MinLon: 4.0, MinLat: 51.0, MaxLon: 4.5, MaxLat: 51.5}, 15, 10)
	out, stats, err := NewCollector(NewSaturatingFetcher(s)).
		Collect(ctx, cells, 50, 2_000, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.TotalAPICalls)
	assert.Len(t, out, 2)
}

func TestCollect_SaturatedParentReplacedByChildren(t *testing.T) {
	bbox := geodesy.BBox{MinLon: 4.0, MinLat: 51.0, MaxLon: 4.5, MaxLat: 51.5}
	cells := GenerateCells(bbox, 15, 10)

	want := make(map[string]struct{})
	s := &fakeSearcher{}
	s.respond = func(c Cell, call int) ([]location.Record, error) {
		switch {
		case call == 0:
			return records("parent", 50, c.Center), nil
		case c.RadiusMeters == 5_000:
			// Children overlap: each returns its own points plus one
			// shared point.
			rs := append(records(fmt.Sprintf("child-%d", call), 10, c.Center),
				records("overlap", 1, geodesy.LatLon{Lat: 51.0, Lon: 4.0})...)
			for _, r := range rs {
				want[r.IdentityKey] = struct{}{}
			}
			return rs, nil
		default:
			return nil, nil
		}
	}

	out, stats, err := NewCollector(NewSaturatingFetcher(s), WithSleeper(noSleep)).
		Collect(context.Background(), cells, 50, 2_000, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.CellsSubdivided)
	assert.Equal(t, len(cells)+4, stats.TotalAPICalls)
	assert.Len(t, out, 41)
	assert.Len(t, want, 41)
	for k := range out {
		_, ok := want[k]
		assert.True(t, ok, "unexpected record %s", k)
	}
}
