package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/pickup-cli/internal/boundary"
)

// wgs84 is the SRID written into stored geometries.
const wgs84 = 4326

// boundsEWKB encodes the footprint of b as little-endian EWKB with SRID.
func boundsEWKB(b *boundary.RegionBounds) ([]byte, error) {
	g := b.Footprint()
	switch t := g.(type) {
	case *geom.Polygon:
		g = geom.NewPolygonFlat(t.Layout(), t.FlatCoords(), t.Ends()).SetSRID(wgs84)
	case *geom.MultiPolygon:
		g = geom.NewMultiPolygonFlat(t.Layout(), t.FlatCoords(), t.Endss()).SetSRID(wgs84)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "store: encode bounds of %s", b.Region)
	}
	return data, nil
}

// decodeBounds parses a stored footprint.
func decodeBounds(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode bounds")
	}
	return g, nil
}
