package boundary

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

// pt is a planar vertex, x = lon and y = lat. Comparable so it can key maps.
type pt struct{ x, y float64 }

// ring is a closed vertex sequence with ring[0] == ring[len-1].
type ring []pt

func toPts(points []geodesy.LatLon) []pt {
	out := make([]pt, 0, len(points))
	for _, p := range points {
		q := pt{x: p.Lon, y: p.Lat}
		if len(out) > 0 && out[len(out)-1] == q {
			continue
		}
		out = append(out, q)
	}
	return out
}

func isClosed(l []pt) bool {
	return len(l) > 1 && l[0] == l[len(l)-1]
}

// signedArea is positive for counter-clockwise rings.
func (r ring) signedArea() float64 {
	var a float64
	for i := 0; i+1 < len(r); i++ {
		a += r[i].x*r[i+1].y - r[i+1].x*r[i].y
	}
	return a / 2
}

func (r ring) flat() []float64 {
	out := make([]float64, 0, 2*len(r))
	for _, p := range r {
		out = append(out, p.x, p.y)
	}
	return out
}

func (r ring) bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range r {
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}
	return
}

// ccw returns r oriented counter-clockwise.
func (r ring) ccw() ring {
	if r.signedArea() >= 0 {
		return r
	}
	out := make(ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// contains reports whether p is inside r or on its edge.
func (r ring) contains(p pt, flat []float64) bool {
	return xy.IsPointInRing(geom.XY, geom.Coord{p.x, p.y}, flat)
}

// within reports whether r lies inside other, checking the bounds and a
// sample of vertices.
func (r ring) within(other ring) bool {
	aMinX, aMinY, aMaxX, aMaxY := r.bounds()
	bMinX, bMinY, bMaxX, bMaxY := other.bounds()
	if aMinX < bMinX || aMinY < bMinY || aMaxX > bMaxX || aMaxY > bMaxY {
		return false
	}
	flat := other.flat()
	step := 1
	if len(r) > 16 {
		step = len(r) / 16
	}
	for i := 0; i < len(r)-1; i += step {
		if !other.contains(r[i], flat) {
			return false
		}
	}
	return true
}

func ringFromFlat(flat []float64, stride int) ring {
	out := make(ring, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, pt{x: flat[i], y: flat[i+1]})
	}
	return out
}

// buildGeometry turns rings into a polygon, or a multipolygon when there is
// more than one.
func buildGeometry(rings []ring) geom.T {
	if len(rings) == 1 {
		flat := rings[0].ccw().flat()
		return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	}
	var flat []float64
	endss := make([][]int, 0, len(rings))
	for _, r := range rings {
		flat = append(flat, r.ccw().flat()...)
		endss = append(endss, []int{len(flat)})
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}

// linearRings returns every ring of every polygon in g.
func linearRings(g geom.T) ([]ring, bool) {
	var polys []*geom.Polygon
	switch g := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{g}
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			polys = append(polys, g.Polygon(i))
		}
	default:
		return nil, false
	}

	var out []ring
	for _, p := range polys {
		if p.NumLinearRings() == 0 {
			return nil, false
		}
		for i := 0; i < p.NumLinearRings(); i++ {
			lr := p.LinearRing(i)
			out = append(out, ringFromFlat(lr.FlatCoords(), lr.Stride()))
		}
	}
	return out, len(out) > 0
}
