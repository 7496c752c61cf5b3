package location

import (
	"sort"
	"strings"

	"github.com/sells-group/pickup-cli/internal/geodesy"
)

// Deduplicate merges record sets by IdentityKey. The first occurrence wins
// and input order is preserved.
func Deduplicate(sets ...[]Record) []Record {
	seen := make(map[string]struct{})
	var out []Record
	for _, set := range sets {
		for _, r := range set {
			if _, ok := seen[r.IdentityKey]; ok {
				continue
			}
			seen[r.IdentityKey] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// FromMap flattens a keyed record map in key order.
func FromMap(m map[string]Record) []Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// NearDuplicate is a pair of distinct records that look like the same
// physical point.
type NearDuplicate struct {
	A, B           Record
	DistanceMeters float64
}

// NearDuplicates reports pairs with different identity keys but the same
// provider and name (case-insensitive) lying within meters of each other.
// Nothing is removed; the result feeds quality reports.
func NearDuplicates(records []Record, meters float64) []NearDuplicate {
	groups := make(map[string][]Record)
	var order []string
	for _, r := range records {
		g := r.Provider + "|" + strings.ToLower(strings.TrimSpace(r.Name))
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], r)
	}

	var out []NearDuplicate
	for _, g := range order {
		rs := groups[g]
		for i := 0; i < len(rs); i++ {
			for j := i + 1; j < len(rs); j++ {
				if rs[i].IdentityKey == rs[j].IdentityKey {
					continue
				}
				d := geodesy.Distance(rs[i].Position(), rs[j].Position())
				if d <= meters {
					out = append(out, NearDuplicate{A: rs[i], B: rs[j], DistanceMeters: d})
				}
			}
		}
	}
	return out
}
