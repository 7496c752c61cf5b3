package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

func rec(lat, lon float64, name, provider string) Record {
	return Record{Lat: lat, Lon: lon, Name: name, Provider: provider}.Keyed()
}

// ---------------------------------------------------------------------------
// Identity key
// ---------------------------------------------------------------------------

func TestNewIdentityKey_RoundsToMeter(t *testing.T) {
	a := NewIdentityKey(52.1000001, 5.1000004, "ShopA", "DHL", "")
	b := NewIdentityKey(52.1, 5.1, " ShopA ", "DHL", "")
	assert.Equal(t, a, b)
	assert.Equal(t, "52.10000|5.10000|ShopA|DHL", a)

	c := NewIdentityKey(52.10002, 5.1, "ShopA", "DHL", "")
	assert.NotEqual(t, a, c)
}

func TestNewIdentityKey_ProviderID(t *testing.T) {
	assert.Equal(t, "52.10000|5.10000|ShopA|DHL|8004-NL", NewIdentityKey(52.1, 5.1, "ShopA", "DHL", "8004-NL"))
	assert.NotEqual(t,
		NewIdentityKey(52.1, 5.1, "ShopA", "DHL", ""),
		NewIdentityKey(52.1, 5.1, "ShopA", "PostNL", ""))
}

func TestNewIdentityKey_NoNegativeZero(t *testing.T) {
	assert.Equal(t, NewIdentityKey(0, 0, "x", "p", ""), NewIdentityKey(-0.000001, -0.000001, "x", "p", ""))
}

// ---------------------------------------------------------------------------
// Deduplicate
// ---------------------------------------------------------------------------

func TestDeduplicate_FirstSetWins(t *testing.T) {
	first := rec(52.1, 5.1, "ShopA", "DHL")
	first.Street = "Dorpsstraat"
	second := rec(52.1, 5.1, "ShopA", "DHL")
	second.Street = "Other"

	out := Deduplicate([]Record{first}, []Record{second})
	require.Len(t, out, 1)
	assert.Equal(t, "Dorpsstraat", out[0].Street)
}

func TestDeduplicate_PreservesOrder(t *testing.T) {
	a := rec(52.1, 5.1, "A", "DHL")
	b := rec(52.2, 5.2, "B", "DHL")
	c := rec(52.3, 5.3, "C", "DHL")

	out := Deduplicate([]Record{a, b}, []Record{b, c, a})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{out[0].Name, out[1].Name, out[2].Name})
}

func TestDeduplicate_Empty(t *testing.T) {
	assert.Empty(t, Deduplicate())
	assert.Empty(t, Deduplicate(nil, []Record{}))
}

func TestFromMap_SortedByKey(t *testing.T) {
	a := rec(52.1, 5.1, "A", "DHL")
	b := rec(51.9, 5.1, "B", "DHL")
	out := FromMap(map[string]Record{a.IdentityKey: a, b.IdentityKey: b})
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Name)
}

func TestNearDuplicates(t *testing.T) {
	a := rec(52.10000, 5.10000, "Primera", "DHL")
	b := rec(52.10003, 5.10000, "primera ", "DHL")
	c := rec(52.10003, 5.10000, "Primera", "PostNL")
	d := rec(52.20000, 5.10000, "Primera", "DHL")

	pairs := NearDuplicates([]Record{a, b, c, d}, 10)
	require.Len(t, pairs, 1)
	assert.Equal(t, a.IdentityKey, pairs[0].A.IdentityKey)
	assert.Equal(t, b.IdentityKey, pairs[0].B.IdentityKey)
	assert.Less(t, pairs[0].DistanceMeters, 10.0)
}

// ---------------------------------------------------------------------------
// FilterWithin
// ---------------------------------------------------------------------------

func TestFilterWithin_ClosedBoundary(t *testing.T) {
	box := geodesy.BBox{MinLon: 5, MinLat: 52, MaxLon: 5.2, MaxLat: 52.2}
	in := rec(52.1, 5.1, "in", "DHL")
	edge := rec(52.0, 5.1, "edge", "DHL")
	out := rec(52.3, 5.1, "out", "DHL")

	got := FilterWithin([]Record{in, edge, out}, box)
	require.Len(t, got, 2)
	assert.Equal(t, "in", got[0].Name)
	assert.Equal(t, "edge", got[1].Name)
}

// ---------------------------------------------------------------------------
// FieldMapping
// ---------------------------------------------------------------------------

func TestFieldMapping_NestedResponse(t *testing.T) {
	raw := map[string]any{
		"id":       "8004-NL-123",
		"name":     "Primera Centrum",
		"shopType": "parcelShop",
		"geoLocation": map[string]any{
			"latitude":  52.0907,
			"longitude": 5.1214,
		},
		"address": map[string]any{
			"street":   "Oudegracht",
			"number":   "12",
			"city":     "Utrecht",
			"cityName": "Utrecht",
		},
	}

	r, err := DefaultMapping.Normalize("DHL", raw)
	require.NoError(t, err)
	assert.Equal(t, "Primera Centrum", r.Name)
	assert.Equal(t, "Oudegracht", r.Street)
	assert.Equal(t, "12", r.HouseNumber)
	assert.Equal(t, "parcelShop", r.PointType)
	assert.Equal(t, "8004-NL-123", r.ProviderID)
	assert.InDelta(t, 52.0907, r.Lat, 1e-9)
	assert.InDelta(t, 5.1214, r.Lon, 1e-9)
	assert.Equal(t, NewIdentityKey(52.0907, 5.1214, "Primera Centrum", "DHL", "8004-NL-123"), r.IdentityKey)
}

func TestFieldMapping_StringCoordinates(t *testing.T) {
	raw := map[string]any{"Naam": "Jumbo", "Latitude": "51.5", "Longitude": "4.4", "Straat": "Markt"}
	r, err := DefaultMapping.Normalize("PostNL", raw)
	require.NoError(t, err)
	assert.Equal(t, "Jumbo", r.Name)
	assert.Equal(t, "Markt", r.Street)
	assert.InDelta(t, 51.5, r.Lat, 1e-9)
}

func TestFieldMapping_MissingCoordinates(t *testing.T) {
	_, err := DefaultMapping.Normalize("DHL", map[string]any{"name": "x"})
	assert.Error(t, err)
}
