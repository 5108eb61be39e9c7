package model

import "github.com/paulmach/orb"

// Building is one footprint from a region's cadastre, in WGS84. Index is
// the record's row position in the source file.
type Building struct {
	Index    int              `json:"index"`
	Region   string           `json:"region"`
	Geometry orb.MultiPolygon `json:"-"`
	Inside   bool             `json:"inside"`
	// Label is the 1-based position within the inside or outside group.
	// It changes whenever the partition changes.
	Label int `json:"label"`
}

// DistanceRecord is the nearest-station distance for one building.
type DistanceRecord struct {
	BuildingIndex  int     `json:"building_index" csv:"building_index"`
	Region         string  `json:"region" csv:"region"`
	NearestStation string  `json:"nearest_station" csv:"nearest_station"`
	DistanceKm     float64 `json:"distance_km" csv:"distance_km"`
}
