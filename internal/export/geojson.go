// Package export writes region datasets to files.
package export

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/pickup-cli/internal/boundary"
	"github.com/sells-group/pickup-cli/internal/grid"
	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// Feature types written in the "type" property.
const (
	FeaturePickupPoint = "pickup_point"
	FeatureBoundary    = "boundary"
)

// Metadata is the foreign member written next to the features.
type Metadata struct {
	Region         string         `json:"region"`
	Slug           string         `json:"slug"`
	Strategy       string         `json:"strategy"`
	BoundsKind     string         `json:"bounds_kind"`
	Degraded       bool           `json:"degraded"`
	Reason         string         `json:"reason,omitempty"`
	TotalPoints    int            `json:"total_points"`
	ProviderCounts map[string]int `json:"provider_counts"`
	NearDuplicates int            `json:"near_duplicates"`
	Stats          grid.Stats     `json:"stats"`
	CollectedAt    time.Time      `json:"collected_at"`
}

type document struct {
	Type     string             `json:"type"`
	Metadata Metadata           `json:"metadata"`
	Features []*geojson.Feature `json:"features"`
}

// GeoJSONWriter writes one FeatureCollection per region to Dir/<slug>.geojson.
type GeoJSONWriter struct {
	Dir    string
	Indent bool
}

// NewGeoJSONWriter creates a writer into dir.
func NewGeoJSONWriter(dir string) *GeoJSONWriter {
	return &GeoJSONWriter{Dir: dir}
}

// Write implements pipeline.Sink.
func (w *GeoJSONWriter) Write(_ context.Context, ds *pipeline.Dataset) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir %s", w.Dir)
	}
	path := filepath.Join(w.Dir, ds.Region.Slug+".geojson")
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := EncodeGeoJSON(f, ds, w.Indent); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// EncodeGeoJSON writes ds as a FeatureCollection: the pickup points first,
// then the region boundary, with run metadata as a top-level member.
func EncodeGeoJSON(out io.Writer, ds *pipeline.Dataset, indent bool) error {
	doc := document{
		Type:     "FeatureCollection",
		Metadata: metadataFor(ds),
		Features: make([]*geojson.Feature, 0, len(ds.Records)+1),
	}
	for _, r := range ds.Records {
		doc.Features = append(doc.Features, PointFeature(r))
	}
	if ds.Resolution != nil && ds.Resolution.Bounds != nil {
		doc.Features = append(doc.Features, BoundaryFeature(ds.Resolution.Bounds))
	}

	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}
	return eris.Wrap(enc.Encode(doc), "export: encode geojson")
}

func metadataFor(ds *pipeline.Dataset) Metadata {
	md := Metadata{
		Region:         ds.Region.Name,
		Slug:           ds.Region.Slug,
		TotalPoints:    len(ds.Records),
		ProviderCounts: ds.ProviderCounts,
		NearDuplicates: len(ds.NearDuplicates),
		Stats:          ds.Stats,
		CollectedAt:    ds.CollectedAt,
	}
	if res := ds.Resolution; res != nil {
		md.Strategy = res.Strategy
		md.Degraded = res.Degraded
		md.Reason = string(res.Reason)
		if res.Bounds != nil {
			md.BoundsKind = string(res.Bounds.Kind)
		}
	}
	return md
}

// PointFeature renders one pickup point.
func PointFeature(r location.Record) *geojson.Feature {
	return &geojson.Feature{
		ID:       r.IdentityKey,
		Geometry: geom.NewPointFlat(geom.XY, []float64{r.Lon, r.Lat}),
		Properties: map[string]any{
			"type":         FeaturePickupPoint,
			"name":         r.Name,
			"street":       r.Street,
			"house_number": r.HouseNumber,
			"provider":     r.Provider,
			"provider_id":  r.ProviderID,
			"point_type":   r.PointType,
			"lat":          r.Lat,
			"lon":          r.Lon,
		},
	}
}

// BoundaryFeature renders region bounds. Polygons are written as assembled;
// circle and box bounds as their search box.
func BoundaryFeature(b *boundary.RegionBounds) *geojson.Feature {
	props := map[string]any{
		"type":   FeatureBoundary,
		"region": b.Region,
		"kind":   string(b.Kind),
		"source": b.Source,
	}
	if b.Kind == boundary.KindCircle {
		props["center_lat"] = b.Center.Lat
		props["center_lon"] = b.Center.Lon
		props["radius_meters"] = b.RadiusMeters
	}
	return &geojson.Feature{Geometry: b.Footprint(), Properties: props}
}
