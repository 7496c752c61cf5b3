package boundary

import (
	"math"
	"sort"
)

// Assemble stitches the outer fragments of rel into closed rings and builds
// a polygon or multipolygon. Fragments are merged end to end in either
// direction; lines left open are closed by repeating their first point.
// Rings inside another ring are dropped. An invalid result, which includes
// rings without area, gets one repair pass before Assemble gives up with a
// *GeometryError.
func Assemble(rel Relation) (*Assembly, error) {
	asm := &Assembly{}
	var outer [][]pt
	for _, m := range rel.Members {
		if len(m.Points) < 2 {
			continue
		}
		switch m.Role {
		case RoleOuter:
			if pts := toPts(m.Points); len(pts) >= 2 {
				outer = append(outer, pts)
			}
		case RoleInner:
			asm.Inner = append(asm.Inner, m)
		}
	}
	if len(outer) == 0 {
		return nil, &GeometryError{Region: rel.Name, Reason: "no outer fragments"}
	}

	var rings []ring
	for _, l := range mergeLines(outer) {
		if !isClosed(l) {
			l = append(l, l[0])
			asm.ForcedClosures++
		}
		if len(l) < 4 {
			continue
		}
		rings = append(rings, ring(l))
	}
	rings = polygonize(rings)
	if len(rings) == 0 {
		return nil, &GeometryError{Region: rel.Name, Reason: "no ring could be closed"}
	}

	if !ringsValid(rings) {
		rings = repairRings(rings)
		asm.Repaired = true
		if len(rings) == 0 || !ringsValid(rings) {
			return nil, &GeometryError{Region: rel.Name, Reason: "invalid after repair"}
		}
	}

	asm.Geometry = buildGeometry(rings)
	return asm, nil
}

// mergeLines joins lines that meet end to end, reversing them as needed.
// A node where two line ends meet is passed straight through. Where more
// meet, as at a vertex shared by touching exclaves, a line is only taken if
// its chain leads back to the start of the line being built, so the rings
// touching there are closed separately instead of forced shut.
func mergeLines(lines [][]pt) [][]pt {
	ends := make(map[pt][]int)
	for i, l := range lines {
		ends[l[0]] = append(ends[l[0]], i)
		ends[l[len(l)-1]] = append(ends[l[len(l)-1]], i)
	}
	used := make([]bool, len(lines))

	far := func(j int, from pt) pt {
		l := lines[j]
		if l[0] == from {
			return l[len(l)-1]
		}
		return l[0]
	}
	// chainEnd follows line j, entered at from, through two-ended nodes and
	// returns the node where the chain stops.
	chainEnd := func(j int, from pt) pt {
		seen := map[int]bool{j: true}
		for {
			at := far(j, from)
			cand := ends[at]
			if len(cand) != 2 {
				return at
			}
			k := cand[0]
			if k == j {
				k = cand[1]
			}
			if used[k] || seen[k] {
				return at
			}
			seen[k] = true
			j, from = k, at
		}
	}
	next := func(p, goal pt) (int, bool) {
		cand := ends[p]
		if len(cand) == 2 {
			for _, j := range cand {
				if !used[j] {
					return j, true
				}
			}
			return 0, false
		}
		for _, j := range cand {
			if !used[j] && chainEnd(j, p) == goal {
				return j, true
			}
		}
		return 0, false
	}

	var out [][]pt
	for i := range lines {
		if used[i] {
			continue
		}
		used[i] = true
		cur := append([]pt(nil), lines[i]...)

		for !isClosed(cur) {
			tail := cur[len(cur)-1]
			j, ok := next(tail, cur[0])
			if !ok {
				break
			}
			used[j] = true
			seg := lines[j]
			if seg[0] != tail {
				seg = reversed(seg)
			}
			cur = append(cur, seg[1:]...)
		}

		for !isClosed(cur) {
			head := cur[0]
			j, ok := next(head, cur[len(cur)-1])
			if !ok {
				break
			}
			used[j] = true
			seg := lines[j]
			if seg[len(seg)-1] != head {
				seg = reversed(seg)
			}
			cur = append(append([]pt(nil), seg[:len(seg)-1]...), cur...)
		}

		out = append(out, cur)
	}
	return out
}

func reversed(l []pt) []pt {
	out := make([]pt, len(l))
	for i, p := range l {
		out[len(l)-1-i] = p
	}
	return out
}

// polygonize keeps the largest rings and drops any ring lying inside a kept
// one.
func polygonize(rings []ring) []ring {
	sort.SliceStable(rings, func(i, j int) bool {
		return math.Abs(rings[i].signedArea()) > math.Abs(rings[j].signedArea())
	})

	var kept []ring
	for _, r := range rings {
		inside := false
		for _, k := range kept {
			if r.within(k) {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, r)
		}
	}
	return kept
}
