package boundary

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

// BoundsKind says how a RegionBounds answers membership.
type BoundsKind string

// Bounds kinds.
const (
	KindPolygon BoundsKind = "polygon"
	KindBBox    BoundsKind = "bbox"
	KindCircle  BoundsKind = "circle"
)

// Bound sources.
const (
	SourceRelation = "relation"
	SourceGeocode  = "geocode"
)

// RegionBounds is the resolved search area of one region. It is not
// modified after construction.
type RegionBounds struct {
	Region       string         `json:"region"`
	Kind         BoundsKind     `json:"kind"`
	Geometry     geom.T         `json:"-"`
	BBox         geodesy.BBox   `json:"bbox"`
	Center       geodesy.LatLon `json:"center"`
	RadiusMeters int            `json:"radius_meters,omitempty"`
	Source       string         `json:"source"`
}

// NewPolygonBounds wraps an assembled polygon or multipolygon.
func NewPolygonBounds(region string, g geom.T) *RegionBounds {
	b := g.Bounds()
	bbox := geodesy.BBox{MinLon: b.Min(0), MinLat: b.Min(1), MaxLon: b.Max(0), MaxLat: b.Max(1)}
	return &RegionBounds{
		Region:   region,
		Kind:     KindPolygon,
		Geometry: g,
		BBox:     bbox,
		Center:   bbox.Center(),
		Source:   SourceRelation,
	}
}

// NewCircleBounds builds an approximate area around a geocoded point.
func NewCircleBounds(region string, center geodesy.LatLon, radiusMeters int) *RegionBounds {
	return &RegionBounds{
		Region:       region,
		Kind:         KindCircle,
		BBox:         geodesy.AroundPoint(center, float64(radiusMeters)),
		Center:       center,
		RadiusMeters: radiusMeters,
		Source:       SourceGeocode,
	}
}

// NewBBoxBounds builds bounds from a plain box.
func NewBBoxBounds(region string, bbox geodesy.BBox) *RegionBounds {
	return &RegionBounds{
		Region: region,
		Kind:   KindBBox,
		BBox:   bbox,
		Center: bbox.Center(),
		Source: SourceGeocode,
	}
}

// Contains reports whether p is inside the region, boundary included.
// Polygon holes are ignored.
func (r *RegionBounds) Contains(p geodesy.LatLon) bool {
	if !r.BBox.Contains(p) {
		return false
	}
	switch r.Kind {
	case KindCircle:
		return geodesy.Distance(r.Center, p) <= float64(r.RadiusMeters)
	case KindPolygon:
		return polygonContains(r.Geometry, p)
	default:
		return true
	}
}

// SearchBBox is the box provider queries should cover.
func (r *RegionBounds) SearchBBox() geodesy.BBox {
	return r.BBox
}

// SearchCircle returns a center and a radius in meters reaching the
// farthest corner of the search box.
func (r *RegionBounds) SearchCircle() (geodesy.LatLon, int) {
	if r.Kind == KindCircle {
		return r.Center, r.RadiusMeters
	}
	return r.BBox.Center(), int(math.Ceil(r.BBox.EnclosingRadius()))
}

// Footprint returns a geometry for display and storage: the assembled
// polygon, or the search box for circle and box bounds.
func (r *RegionBounds) Footprint() geom.T {
	if r.Geometry != nil {
		return r.Geometry
	}
	return geom.NewBounds(geom.XY).Set(r.BBox.MinLon, r.BBox.MinLat, r.BBox.MaxLon, r.BBox.MaxLat).Polygon()
}

// Degraded reports whether the bounds come from a fallback.
func (r *RegionBounds) Degraded() bool {
	return r.Kind != KindPolygon
}

func polygonContains(g geom.T, p geodesy.LatLon) bool {
	c := geom.Coord{p.Lon, p.Lat}
	switch g := g.(type) {
	case *geom.Polygon:
		return exteriorContains(g, c)
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			if exteriorContains(g.Polygon(i), c) {
				return true
			}
		}
	}
	return false
}

func exteriorContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	lr := p.LinearRing(0)
	return xy.IsPointInRing(lr.Layout(), c, lr.FlatCoords())
}
