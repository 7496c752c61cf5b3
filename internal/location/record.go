// Package location holds the normalized pickup-point record and the
// operations that merge and clip record sets.
package location

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

// keyPrecision rounds coordinates to five decimals, roughly one meter.
const keyPrecision = 1e5

// Record is one pickup point as returned by a provider adapter. Records are
// treated as immutable once keyed.
type Record struct {
	IdentityKey string         `json:"identity_key"`
	Name        string         `json:"name"`
	Street      string         `json:"street,omitempty"`
	HouseNumber string         `json:"house_number,omitempty"`
	Lat         float64        `json:"lat"`
	Lon         float64        `json:"lon"`
	PointType   string         `json:"point_type,omitempty"`
	Provider    string         `json:"provider"`
	ProviderID  string         `json:"provider_id,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Position returns the record's coordinate.
func (r Record) Position() geodesy.LatLon {
	return geodesy.LatLon{Lat: r.Lat, Lon: r.Lon}
}

// Keyed returns a copy of r with IdentityKey derived from its fields.
func (r Record) Keyed() Record {
	r.IdentityKey = NewIdentityKey(r.Lat, r.Lon, r.Name, r.Provider, r.ProviderID)
	return r
}

// NewIdentityKey builds the dedup key: rounded coordinate, trimmed name,
// provider and the provider's own id when it has one.
func NewIdentityKey(lat, lon float64, name, provider, providerID string) string {
	key := fmt.Sprintf("%.5f|%.5f|%s|%s", round(lat), round(lon), strings.TrimSpace(name), provider)
	if id := strings.TrimSpace(providerID); id != "" {
		key += "|" + id
	}
	return key
}

func round(v float64) float64 {
	r := math.Round(v*keyPrecision) / keyPrecision
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
