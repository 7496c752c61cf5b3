package location

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Canonical field names a FieldMapping can fill.
const (
	FieldLat         = "lat"
	FieldLon         = "lon"
	FieldName        = "name"
	FieldStreet      = "street"
	FieldHouseNumber = "house_number"
	FieldPointType   = "point_type"
	FieldID          = "id"
)

// MatchMode selects how a candidate pattern is compared to a flattened key.
type MatchMode string

// Match modes. Comparisons are case-insensitive.
const (
	MatchExact    MatchMode = "exact"
	MatchSuffix   MatchMode = "suffix"
	MatchContains MatchMode = "contains"
)

// Candidate is one pattern tried against the flattened response keys.
type Candidate struct {
	Pattern string    `yaml:"pattern" mapstructure:"pattern"`
	Mode    MatchMode `yaml:"mode" mapstructure:"mode"`
}

// FieldRule maps response keys onto one canonical field. Candidates are tried
// in order; the first key that matches and is not excluded wins.
type FieldRule struct {
	Field      string      `yaml:"field" mapstructure:"field"`
	Candidates []Candidate `yaml:"candidates" mapstructure:"candidates"`
	Exclude    []string    `yaml:"exclude" mapstructure:"exclude"`
}

// FieldMapping is an ordered rule table that turns a raw provider item into a
// Record.
type FieldMapping []FieldRule

// DefaultMapping covers the common shapes seen in pickup-point APIs.
var DefaultMapping = FieldMapping{
	{Field: FieldLat, Candidates: []Candidate{{"latitude", MatchSuffix}, {"lat", MatchSuffix}}},
	{Field: FieldLon, Candidates: []Candidate{{"longitude", MatchSuffix}, {"lng", MatchSuffix}, {"lon", MatchSuffix}}},
	{Field: FieldName, Candidates: []Candidate{
		{"name", MatchExact}, {"naam", MatchContains}, {"shopname", MatchContains},
		{"label", MatchContains}, {"bedrijf", MatchContains}, {"name", MatchContains},
	}, Exclude: []string{"city", "street", "country"}},
	{Field: FieldStreet, Candidates: []Candidate{{"street", MatchContains}, {"straat", MatchContains}}},
	{Field: FieldHouseNumber, Candidates: []Candidate{
		{"housenumber", MatchContains}, {"housenr", MatchContains}, {"huisnummer", MatchContains},
		{"number", MatchSuffix}, {"nr", MatchSuffix},
	}, Exclude: []string{"phone", "parcel"}},
	{Field: FieldPointType, Candidates: []Candidate{
		{"point_type", MatchContains}, {"shoptype", MatchContains}, {"locationtype", MatchContains}, {"type", MatchSuffix},
	}},
	{Field: FieldID, Candidates: []Candidate{{"id", MatchExact}, {"locationcode", MatchContains}}},
}

// Normalize maps one raw item to a Record for provider. Nested objects are
// flattened with dotted keys. The result is keyed.
func (m FieldMapping) Normalize(provider string, raw map[string]any) (Record, error) {
	flat := make(map[string]any)
	flatten("", raw, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]any, len(m))
	for _, rule := range m {
		if k, ok := rule.match(keys); ok {
			values[rule.Field] = flat[k]
		}
	}

	lat, okLat := toFloat(values[FieldLat])
	lon, okLon := toFloat(values[FieldLon])
	if !okLat || !okLon {
		return Record{}, eris.Errorf("location: normalize %s item: no usable coordinates", provider)
	}

	r := Record{
		Name:        toString(values[FieldName]),
		Street:      toString(values[FieldStreet]),
		HouseNumber: toString(values[FieldHouseNumber]),
		Lat:         lat,
		Lon:         lon,
		PointType:   toString(values[FieldPointType]),
		Provider:    provider,
		ProviderID:  toString(values[FieldID]),
		Raw:         raw,
	}
	return r.Keyed(), nil
}

func (rule FieldRule) match(keys []string) (string, bool) {
	for _, c := range rule.Candidates {
		p := strings.ToLower(c.Pattern)
		for _, k := range keys {
			lk := strings.ToLower(k)
			if rule.excluded(lk) {
				continue
			}
			if c.matches(lk, p) {
				return k, true
			}
		}
	}
	return "", false
}

func (rule FieldRule) excluded(key string) bool {
	for _, e := range rule.Exclude {
		if strings.Contains(key, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

func (c Candidate) matches(key, pattern string) bool {
	switch c.Mode {
	case MatchExact:
		return key == pattern
	case MatchSuffix:
		return strings.HasSuffix(key, pattern)
	default:
		return strings.Contains(key, pattern)
	}
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
