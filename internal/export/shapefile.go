package export

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// pointFields is the DBF layout of the pickup-point shapefile. Names are
// limited to ten characters.
var pointFields = []shp.Field{
	shp.StringField("NAME", 80),
	shp.StringField("STREET", 80),
	shp.StringField("HOUSENR", 16),
	shp.StringField("PROVIDER", 16),
	shp.StringField("PTYPE", 32),
	shp.StringField("PROVID", 48),
	shp.FloatField("LAT", 12, 6),
	shp.FloatField("LON", 12, 6),
}

// ShapefileWriter writes a POINT shapefile per region to Dir/<slug>.shp
// (with .shx and .dbf alongside).
type ShapefileWriter struct {
	Dir string
}

// NewShapefileWriter creates a writer into dir.
func NewShapefileWriter(dir string) *ShapefileWriter {
	return &ShapefileWriter{Dir: dir}
}

// Write implements pipeline.Sink.
func (w *ShapefileWriter) Write(_ context.Context, ds *pipeline.Dataset) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir %s", w.Dir)
	}
	path := filepath.Join(w.Dir, ds.Region.Slug+".shp")
	return WriteShapefile(path, ds.Records)
}

// WriteShapefile writes records as points with their attributes. Text values
// longer than a field are cut at a rune boundary.
func WriteShapefile(path string, records []location.Record) error {
	out, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	closed := false
	defer func() {
		if !closed {
			out.Close()
		}
	}()

	if err := out.SetFields(pointFields); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	var truncated int
	for _, r := range records {
		row := int(out.Write(&shp.Point{X: r.Lon, Y: r.Lat}))
		values := []any{r.Name, r.Street, r.HouseNumber, r.Provider, r.PointType, r.ProviderID, r.Lat, r.Lon}
		for i, v := range values {
			if s, ok := v.(string); ok {
				cut := fit(s, int(pointFields[i].Size))
				if len(cut) < len(s) {
					truncated++
				}
				v = cut
			}
			if err := out.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "export: write attribute %s row %d", pointFields[i], row)
			}
		}
	}

	if truncated > 0 {
		zap.L().Debug("export: truncated shapefile attributes",
			zap.String("path", path),
			zap.Int("values", truncated),
		)
	}

	out.Close()
	closed = true
	return renameDBF(path)
}

// renameDBF moves the attribute table go-shp writes as "<base>dbf" to
// "<base>.dbf", where readers look for it.
func renameDBF(path string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	stray, want := base+"dbf", base+".dbf"
	if _, err := os.Stat(stray); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return eris.Wrapf(err, "export: stat %s", stray)
	}
	if err := os.Rename(stray, want); err != nil {
		return eris.Wrapf(err, "export: rename %s to %s", stray, want)
	}
	return nil
}

// fit cuts s to at most n bytes without splitting a rune.
func fit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
