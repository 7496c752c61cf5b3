package boundary

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
)

// IsValid reports whether every ring of g is closed, has at least four
// coordinates, encloses a non-zero area and does not touch or cross itself.
// Overlap between separate polygons of a multipolygon is not checked.
func IsValid(g geom.T) bool {
	rings, ok := linearRings(g)
	return ok && ringsValid(rings)
}

func ringsValid(rings []ring) bool {
	for _, r := range rings {
		if len(r) < 4 || !isClosed(r) || r.signedArea() == 0 {
			return false
		}
		simple := true
		scanIntersections(r, func(_, _ int, _ []pt) bool {
			simple = false
			return false
		})
		if !simple {
			return false
		}
	}
	return true
}

type segment struct {
	a, b                   pt
	minX, minY, maxX, maxY float64
}

// scanIntersections calls visit for every pair of segments of r (i < j)
// that meet anywhere other than the vertex adjacent segments share.
// Returning false from visit stops the scan.
func scanIntersections(r ring, visit func(i, j int, at []pt) bool) {
	m := len(r) - 1
	if m < 2 {
		return
	}
	segs := make([]segment, m)
	order := make([]int, m)
	for i := 0; i < m; i++ {
		a, b := r[i], r[i+1]
		segs[i] = segment{
			a: a, b: b,
			minX: math.Min(a.x, b.x), maxX: math.Max(a.x, b.x),
			minY: math.Min(a.y, b.y), maxY: math.Max(a.y, b.y),
		}
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool { return segs[order[x]].minX < segs[order[y]].minX })

	var active []int
	for _, i := range order {
		s := segs[i]
		kept := active[:0]
		for _, j := range active {
			if segs[j].maxX >= s.minX {
				kept = append(kept, j)
			}
		}
		active = kept

		for _, j := range active {
			o := segs[j]
			if o.maxY < s.minY || o.minY > s.maxY {
				continue
			}
			lo, hi := i, j
			if lo > hi {
				lo, hi = hi, lo
			}
			at := segmentIntersection(segs[lo].a, segs[lo].b, segs[hi].a, segs[hi].b)
			if hi == lo+1 || (lo == 0 && hi == m-1) {
				at = dropShared(at, segs[lo], segs[hi], hi == lo+1)
			}
			if len(at) > 0 && !visit(lo, hi, at) {
				return
			}
		}
		active = append(active, i)
	}
}

// dropShared removes the vertex that adjacent segments legitimately share.
func dropShared(at []pt, lo, hi segment, consecutive bool) []pt {
	shared := lo.a // first and last segment share the ring start
	if consecutive {
		shared = lo.b
	}
	out := at[:0]
	for _, p := range at {
		if p != shared {
			out = append(out, p)
		}
	}
	return out
}

func cross(o, a, b pt) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

func onSegment(a, b, p pt) bool {
	return math.Min(a.x, b.x) <= p.x && p.x <= math.Max(a.x, b.x) &&
		math.Min(a.y, b.y) <= p.y && p.y <= math.Max(a.y, b.y)
}

// segmentIntersection returns the points where p1p2 and q1q2 meet: one point
// for a crossing or touch, the overlap endpoints for collinear overlap.
func segmentIntersection(p1, p2, q1, q2 pt) []pt {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		t := d1 / (d1 - d2)
		return []pt{{x: p1.x + t*(p2.x-p1.x), y: p1.y + t*(p2.y-p1.y)}}
	}

	var out []pt
	add := func(p pt) {
		for _, q := range out {
			if q == p {
				return
			}
		}
		out = append(out, p)
	}
	if d1 == 0 && onSegment(q1, q2, p1) {
		add(p1)
	}
	if d2 == 0 && onSegment(q1, q2, p2) {
		add(p2)
	}
	if d3 == 0 && onSegment(p1, p2, q1) {
		add(q1)
	}
	if d4 == 0 && onSegment(p1, p2, q2) {
		add(q2)
	}
	return out
}
