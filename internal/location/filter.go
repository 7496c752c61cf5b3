package location

import "github.com/sells-group/pickup-cli/internal/geodesy"

// Area is any region that can answer point membership.
type Area interface {
	Contains(p geodesy.LatLon) bool
}

// FilterWithin keeps the records whose position lies inside area. Points on
// the boundary are kept.
func FilterWithin(records []Record, area Area) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if area.Contains(r.Position()) {
			out = append(out, r)
		}
	}
	return out
}
