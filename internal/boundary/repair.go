package boundary

import (
	"sort"
)

// repairRings splits each ring at its self-intersections into simple loops,
// drops loops without area, and drops loops nested inside another. It is the
// single repair pass Assemble allows.
func repairRings(rings []ring) []ring {
	var loops []ring
	for _, r := range rings {
		for _, l := range splitLoops(nodeRing(r)) {
			l = dedupe(l)
			if len(l) >= 4 && l.signedArea() != 0 {
				loops = append(loops, l)
			}
		}
	}
	return polygonize(loops)
}

type insertion struct {
	t float64
	p pt
}

// nodeRing inserts every self-intersection point into the segments it lies
// on and returns the resulting closed vertex sequence.
func nodeRing(r ring) ring {
	m := len(r) - 1
	extra := make(map[int][]insertion)
	addTo := func(i int, p pt) {
		a, b := r[i], r[i+1]
		if p == a || p == b {
			return
		}
		dx, dy := b.x-a.x, b.y-a.y
		t := ((p.x-a.x)*dx + (p.y-a.y)*dy) / (dx*dx + dy*dy)
		extra[i] = append(extra[i], insertion{t: t, p: p})
	}
	scanIntersections(r, func(i, j int, at []pt) bool {
		for _, p := range at {
			addTo(i, p)
			addTo(j, p)
		}
		return true
	})

	out := make(ring, 0, len(r)+2*len(extra))
	for i := 0; i < m; i++ {
		out = append(out, r[i])
		ins := extra[i]
		sort.Slice(ins, func(a, b int) bool { return ins[a].t < ins[b].t })
		for k, in := range ins {
			if k > 0 && ins[k-1].p == in.p {
				continue
			}
			out = append(out, in.p)
		}
	}
	return append(out, r[m])
}

// splitLoops walks a closed sequence and cuts out a loop every time a
// vertex repeats.
func splitLoops(seq ring) []ring {
	var loops []ring
	var stack []pt
	pos := make(map[pt]int)
	for _, p := range seq {
		if k, ok := pos[p]; ok {
			loop := make(ring, 0, len(stack)-k+1)
			loop = append(loop, stack[k:]...)
			loops = append(loops, append(loop, p))
			for _, q := range stack[k+1:] {
				delete(pos, q)
			}
			stack = stack[:k+1]
			continue
		}
		pos[p] = len(stack)
		stack = append(stack, p)
	}
	return loops
}

// dedupe drops consecutive repeated vertices.
func dedupe(r ring) ring {
	out := r[:0:0]
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}
