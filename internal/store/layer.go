package store

import (
	"github.com/rotisserie/eris"
)

// Layer names a map layer of a region's results.
type Layer string

const (
	LayerBuildings  Layer = "buildings"
	LayerIsochrones Layer = "isochrones"
	LayerStations   Layer = "stations"
)

// Layers lists every layer in drawing order.
var Layers = []Layer{LayerBuildings, LayerIsochrones, LayerStations}

// ParseLayer validates a layer name.
func ParseLayer(s string) (Layer, error) {
	for _, l := range Layers {
		if string(l) == s {
			return l, nil
		}
	}
	return "", eris.Errorf("store: unknown layer %q", s)
}
