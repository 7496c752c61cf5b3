package geodesy

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
)

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Netherlands is the national search box used when no region is given.
var Netherlands = BBox{MinLon: 3.31, MinLat: 50.75, MaxLon: 7.23, MaxLat: 53.55}

// NewBBox returns a bbox with min/max normalized.
func NewBBox(lon1, lat1, lon2, lat2 float64) BBox {
	return BBox{
		MinLon: math.Min(lon1, lon2),
		MinLat: math.Min(lat1, lat2),
		MaxLon: math.Max(lon1, lon2),
		MaxLat: math.Max(lat1, lat2),
	}
}

// FromBound converts an orb bound to a BBox.
func FromBound(b orb.Bound) BBox {
	return BBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// AroundPoint returns the bbox extending meters from center in every direction.
func AroundPoint(center LatLon, meters float64) BBox {
	return FromBound(geo.NewBoundAroundPoint(center.Point(), meters))
}

// Bound returns the bbox as an orb bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// Center returns the midpoint of the bbox.
func (b BBox) Center() LatLon {
	return LatLon{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Contains reports whether p lies inside or on the edge of the bbox.
func (b BBox) Contains(p LatLon) bool {
	return b.Bound().Contains(p.Point())
}

// IsDegenerate reports whether the bbox has zero area.
func (b BBox) IsDegenerate() bool {
	return b.MaxLon <= b.MinLon || b.MaxLat <= b.MinLat
}

// Pad grows the bbox by meters on every side.
func (b BBox) Pad(meters float64) BBox {
	sw := AroundPoint(LatLon{Lat: b.MinLat, Lon: b.MinLon}, meters)
	ne := AroundPoint(LatLon{Lat: b.MaxLat, Lon: b.MaxLon}, meters)
	return BBox{MinLon: sw.MinLon, MinLat: sw.MinLat, MaxLon: ne.MaxLon, MaxLat: ne.MaxLat}
}

// Corners returns SW, SE, NE, NW.
func (b BBox) Corners() [4]LatLon {
	return [4]LatLon{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
	}
}

// EnclosingRadius returns the distance in meters from the center to the
// farthest corner.
func (b BBox) EnclosingRadius() float64 {
	c := b.Center()
	var r float64
	for _, corner := range b.Corners() {
		r = math.Max(r, Distance(c, corner))
	}
	return r
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("geodesy: parse bbox %q: want 4 comma-separated values", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "geodesy: parse bbox %q", s)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return BBox{}, eris.Errorf("geodesy: parse bbox %q: min exceeds max", s)
	}
	return BBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}, nil
}
