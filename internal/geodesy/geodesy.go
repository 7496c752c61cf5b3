// Package geodesy provides great-circle distance and kilometer/degree
// conversions for the grid collector and boundary fallbacks.
package geodesy

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// KmPerDegree is the length of one degree of latitude used for grid steps.
const KmPerDegree = 111.0

// minCos keeps longitude conversion finite at the poles.
const minCos = 1e-9

// LatLon is a WGS84 coordinate in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns the coordinate as an orb point (lon, lat).
func (p LatLon) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromPoint converts an orb point (lon, lat) to a LatLon.
func FromPoint(p orb.Point) LatLon {
	return LatLon{Lat: p.Lat(), Lon: p.Lon()}
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b LatLon) float64 {
	return geo.DistanceHaversine(a.Point(), b.Point())
}

// KmToLatDegrees converts a north-south distance to degrees of latitude.
func KmToLatDegrees(km float64) float64 {
	return km / KmPerDegree
}

// KmToLonDegrees converts an east-west distance at the given latitude to
// degrees of longitude.
func KmToLonDegrees(km, lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < minCos {
		c = minCos
	}
	return km / (KmPerDegree * c)
}

// Offset moves p by the given distances. Negative values move south or west.
// The longitude conversion uses p's latitude.
func Offset(p LatLon, northKm, eastKm float64) LatLon {
	return LatLon{
		Lat: p.Lat + KmToLatDegrees(northKm),
		Lon: p.Lon + KmToLonDegrees(eastKm, p.Lat),
	}
}
