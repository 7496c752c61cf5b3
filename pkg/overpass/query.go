package overpass

import (
	"fmt"
	"strings"
)

// RelationQuery builds the QL for an administrative boundary relation by
// name inside a country, optionally narrowed by ref:gemeentecode.
func RelationQuery(countryISO, name, code string, adminLevel, timeoutSecs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", timeoutSecs)
	fmt.Fprintf(&b, "area[\"ISO3166-1\"=%s][\"admin_level\"=\"2\"]->.country;\n", quote(countryISO))
	fmt.Fprintf(&b, "relation[\"boundary\"=\"administrative\"][\"admin_level\"=\"%d\"][\"name\"=%s]", adminLevel, quote(name))
	if code != "" {
		fmt.Fprintf(&b, "[\"ref:gemeentecode\"=%s]", quote(code))
	}
	b.WriteString("(area.country);\nout geom;")
	return b.String()
}

// quote returns s as an Overpass QL string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
