package grid

import (
	"math"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

// GenerateCells lays a lattice of circle centers over bbox. Rows start at the
// minimum corner and step north by spacingKm; each row steps east by the
// longitude equivalent of spacingKm at that row's latitude. The last row and
// column are the first ones at or beyond the far edge, so the lattice spans
// the whole box. A box that is flat in one axis gets a single row or column
// along the other; a point or inverted box yields one cell at its center.
func GenerateCells(bbox geodesy.BBox, spacingKm, initialRadiusKm float64) []Cell {
	radius := int(math.Round(initialRadiusKm * 1000))
	inverted := bbox.MaxLon < bbox.MinLon || bbox.MaxLat < bbox.MinLat
	point := bbox.MaxLon == bbox.MinLon && bbox.MaxLat == bbox.MinLat
	if spacingKm <= 0 || inverted || point {
		return []Cell{{Center: bbox.Center(), RadiusMeters: radius}}
	}

	dLat := geodesy.KmToLatDegrees(spacingKm)
	var cells []Cell
	for lat := bbox.MinLat; ; lat += dLat {
		dLon := geodesy.KmToLonDegrees(spacingKm, lat)
		for lon := bbox.MinLon; ; lon += dLon {
			cells = append(cells, Cell{Center: geodesy.LatLon{Lat: lat, Lon: lon}, RadiusMeters: radius})
			if lon >= bbox.MaxLon {
				break
			}
		}
		if lat >= bbox.MaxLat {
			break
		}
	}
	return cells
}

// DefaultSpacingKm returns a lattice spacing for radiusKm that keeps adjacent
// circles overlapping and leaves no gap at lattice-square centers.
func DefaultSpacingKm(radiusKm float64) float64 {
	return 1.4 * radiusKm
}

// CoverageSpacingOK reports whether spacingKm lets circles of radiusKm cover
// every point between four neighboring centers.
func CoverageSpacingOK(spacingKm, radiusKm float64) bool {
	// Grid degrees use 111 km; the haversine sphere is slightly larger.
	const stretch = 111.32 / geodesy.KmPerDegree
	return spacingKm*stretch/math.Sqrt2 <= radiusKm
}
