// Package stations turns raw OSM railway nodes into the named station set
// for a region.
package stations

import (
	"context"
	"sort"
	"strings"

	"github.com/paulmach/osm"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/isoreach/internal/model"
)

// Source returns railway station and halt nodes inside a bounding box.
type Source interface {
	Stations(ctx context.Context, box model.BBox) (osm.Nodes, error)
}

var folder = cases.Fold()

// Normalize canonicalises a station name for comparison: NFC, case folded,
// with runs of whitespace collapsed.
func Normalize(name string) string {
	s := norm.NFC.String(name)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Exclusions is a set of normalised station names.
type Exclusions map[string]struct{}

// NewExclusions builds a set from raw names, ignoring blanks.
func NewExclusions(names ...[]string) Exclusions {
	ex := make(Exclusions)
	for _, list := range names {
		for _, n := range list {
			if k := Normalize(n); k != "" {
				ex[k] = struct{}{}
			}
		}
	}
	return ex
}

// Contains reports whether name is excluded.
func (e Exclusions) Contains(name string) bool {
	_, ok := e[Normalize(name)]
	return ok
}

// Result is the outcome of filtering, with counts of what was dropped.
type Result struct {
	Stations []model.Station
	Unnamed  int
	Excluded []string
}

// Filter keeps nodes with a non-blank name that is not excluded. Output is
// sorted by name, then OSM id.
func Filter(region string, nodes osm.Nodes, exclusions Exclusions) Result {
	var res Result
	for _, n := range nodes {
		if n == nil {
			continue
		}
		name := strings.TrimSpace(n.Tags.Find("name"))
		if name == "" {
			res.Unnamed++
			continue
		}
		if exclusions.Contains(name) {
			res.Excluded = append(res.Excluded, name)
			continue
		}
		res.Stations = append(res.Stations, model.Station{
			ID:       int64(n.ID),
			Name:     name,
			Location: n.Point(),
			Region:   region,
		})
	}

	sort.Slice(res.Stations, func(i, j int) bool {
		a, b := res.Stations[i], res.Stations[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	sort.Strings(res.Excluded)
	return res
}

// IsStationNode reports whether n carries railway=station or railway=halt.
func IsStationNode(n *osm.Node) bool {
	switch n.Tags.Find("railway") {
	case "station", "halt":
		return true
	}
	return false
}
