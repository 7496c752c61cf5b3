// Package boundary reconstructs administrative boundary polygons from
// relation fragments and resolves per-region search areas with fallbacks.
package boundary

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

// Role is the ring role of a relation member.
type Role string

// Member roles. Other roles are ignored.
const (
	RoleOuter Role = "outer"
	RoleInner Role = "inner"
)

// WayFragment is one way of a boundary relation.
type WayFragment struct {
	Role   Role             `json:"role"`
	Points []geodesy.LatLon `json:"points"`
}

// Relation is a boundary relation as a bag of fragments.
type Relation struct {
	ID      int64             `json:"id,omitempty"`
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Members []WayFragment     `json:"members"`
}

// Assembly is the result of stitching a relation.
type Assembly struct {
	// Geometry is a *geom.Polygon or *geom.MultiPolygon.
	Geometry geom.T
	// Inner holds the inner fragments. They are not subtracted.
	Inner []WayFragment
	// ForcedClosures counts lines closed by appending their first point.
	ForcedClosures int
	// Repaired is set when the repair pass ran.
	Repaired bool
}

// GeometryError reports that no valid polygon could be built.
type GeometryError struct {
	Region string
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("boundary: geometry for %q: %s", e.Region, e.Reason)
}
