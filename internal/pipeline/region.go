// Package pipeline runs the per-region collection: resolve the region's
// bounds, collect every provider over them, merge, clip and hand the dataset
// to a sink.
package pipeline

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pickup-cli/internal/textnorm"
)

// Region is one municipality to process.
type Region struct {
	Name string `yaml:"name" json:"name"`
	Slug string `yaml:"slug,omitempty" json:"slug"`
	// Code is the official municipality code, used to tell apart regions
	// that share a name.
	Code string `yaml:"code,omitempty" json:"code,omitempty"`
}

// NewRegion returns a region with its slug derived from name.
func NewRegion(name string) Region {
	name = strings.TrimSpace(name)
	return Region{Name: name, Slug: textnorm.Slug(name)}
}

// LoadRegions reads a YAML list of regions. Missing slugs are derived from
// the name. Empty names and repeated slugs are errors.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read regions file %s", path)
	}
	return ParseRegions(data)
}

// ParseRegions is LoadRegions over an in-memory document.
func ParseRegions(data []byte) ([]Region, error) {
	var regions []Region
	if err := yaml.Unmarshal(data, &regions); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse regions")
	}

	seen := make(map[string]int, len(regions))
	for i := range regions {
		r := &regions[i]
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, eris.Errorf("pipeline: region %d has no name", i+1)
		}
		if r.Slug == "" {
			r.Slug = textnorm.Slug(r.Name)
		}
		if j, dup := seen[r.Slug]; dup {
			return nil, eris.Errorf("pipeline: regions %d and %d share slug %q", j+1, i+1, r.Slug)
		}
		seen[r.Slug] = i
	}
	return regions, nil
}

// RegionsFromNames builds regions from command-line names.
func RegionsFromNames(names []string) []Region {
	out := make([]Region, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		out = append(out, NewRegion(n))
	}
	return out
}
