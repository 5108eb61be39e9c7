package stations

import (
	"context"
	"os"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
)

// PBFSource reads stations from a local .osm.pbf extract instead of Overpass.
type PBFSource struct {
	Path  string
	Procs int
}

// NewPBFSource creates a PBFSource decoding with one goroutine per CPU.
func NewPBFSource(path string) *PBFSource {
	return &PBFSource{Path: path, Procs: runtime.GOMAXPROCS(0)}
}

// Stations scans the extract for station and halt nodes inside box.
func (s *PBFSource) Stations(ctx context.Context, box model.BBox) (osm.Nodes, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, eris.Wrap(err, "stations: open pbf")
	}
	defer f.Close() //nolint:errcheck

	procs := s.Procs
	if procs < 1 {
		procs = 1
	}
	scanner := osmpbf.New(ctx, f, procs)
	defer scanner.Close() //nolint:errcheck
	scanner.SkipWays = true
	scanner.SkipRelations = true

	var nodes osm.Nodes
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok || !IsStationNode(n) {
			continue
		}
		if box.Contains(n.Point()) {
			nodes = append(nodes, n)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "stations: scan pbf")
	}
	return nodes, nil
}
