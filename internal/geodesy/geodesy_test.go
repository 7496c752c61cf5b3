package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Distance / conversions
// ---------------------------------------------------------------------------

func TestDistance_OneDegreeLatitude(t *testing.T) {
	d := Distance(LatLon{Lat: 52, Lon: 5}, LatLon{Lat: 53, Lon: 5})
	assert.InEpsilon(t, 111_300.0, d, 0.01)
}

func TestDistance_Symmetric(t *testing.T) {
	a := LatLon{Lat: 52.3676, Lon: 4.9041}
	b := LatLon{Lat: 52.0907, Lon: 5.1214}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
	assert.InDelta(t, 34_000.0, Distance(a, b), 1_500)
}

func TestKmToLonDegrees_CompressesWithLatitude(t *testing.T) {
	assert.InDelta(t, 1.0, KmToLonDegrees(111, 0), 1e-9)
	assert.InDelta(t, 2.0, KmToLonDegrees(111, 60), 1e-9)
	assert.False(t, math.IsInf(KmToLonDegrees(10, 90), 0))
}

func TestOffset(t *testing.T) {
	p := Offset(LatLon{Lat: 52, Lon: 5}, 11.1, 0)
	assert.InDelta(t, 52.1, p.Lat, 1e-9)
	assert.InDelta(t, 5.0, p.Lon, 1e-9)

	q := Offset(LatLon{Lat: 60, Lon: 5}, 0, -11.1)
	assert.InDelta(t, 4.8, q.Lon, 1e-9)
}

// ---------------------------------------------------------------------------
// BBox
// ---------------------------------------------------------------------------

func TestBBox_ContainsIsInclusive(t *testing.T) {
	b := BBox{MinLon: 4, MinLat: 51, MaxLon: 4.5, MaxLat: 51.5}
	assert.True(t, b.Contains(LatLon{Lat: 51, Lon: 4}))
	assert.True(t, b.Contains(LatLon{Lat: 51.5, Lon: 4.5}))
	assert.True(t, b.Contains(b.Center()))
	assert.False(t, b.Contains(LatLon{Lat: 51.6, Lon: 4.2}))
}

func TestBBox_IsDegenerate(t *testing.T) {
	assert.True(t, BBox{MinLon: 4, MinLat: 51, MaxLon: 4, MaxLat: 51}.IsDegenerate())
	assert.True(t, BBox{MinLon: 4, MinLat: 51, MaxLon: 5, MaxLat: 51}.IsDegenerate())
	assert.False(t, Netherlands.IsDegenerate())
}

func TestNewBBox_Normalizes(t *testing.T) {
	b := NewBBox(5, 52, 4, 51)
	assert.Equal(t, BBox{MinLon: 4, MinLat: 51, MaxLon: 5, MaxLat: 52}, b)
}

func TestAroundPoint_Radius(t *testing.T) {
	c := LatLon{Lat: 52, Lon: 5}
	b := AroundPoint(c, 20_000)
	assert.True(t, b.Contains(c))
	assert.InEpsilon(t, 20_000.0, Distance(c, LatLon{Lat: b.MaxLat, Lon: c.Lon}), 0.02)
	assert.InEpsilon(t, 20_000.0, Distance(c, LatLon{Lat: c.Lat, Lon: b.MaxLon}), 0.02)
}

func TestBBox_Pad(t *testing.T) {
	b := BBox{MinLon: 4, MinLat: 51, MaxLon: 4.5, MaxLat: 51.5}
	p := b.Pad(1_000)
	assert.Less(t, p.MinLon, b.MinLon)
	assert.Less(t, p.MinLat, b.MinLat)
	assert.Greater(t, p.MaxLon, b.MaxLon)
	assert.Greater(t, p.MaxLat, b.MaxLat)
}

func TestBBox_EnclosingRadius(t *testing.T) {
	b := BBox{MinLon: 4, MinLat: 51, MaxLon: 4.5, MaxLat: 51.5}
	r := b.EnclosingRadius()
	for _, corner := range b.Corners() {
		assert.LessOrEqual(t, Distance(b.Center(), corner), r+1e-6)
	}
	assert.Zero(t, BBox{MinLon: 4, MinLat: 51, MaxLon: 4, MaxLat: 51}.EnclosingRadius())
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("4.0, 51.0,4.5,51.5")
	require.NoError(t, err)
	assert.Equal(t, BBox{MinLon: 4, MinLat: 51, MaxLon: 4.5, MaxLat: 51.5}, b)

	_, err = ParseBBox("4,51,4.5")
	assert.Error(t, err)

	_, err = ParseBBox("4,51,x,51.5")
	assert.Error(t, err)

	_, err = ParseBBox("5,51,4,51.5")
	assert.Error(t, err)
}
