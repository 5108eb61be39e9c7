// Package model defines the domain types shared across the pipeline.
package model

import "github.com/paulmach/orb"

// EPSGWGS84 is the geographic reference system every cross-dataset
// operation runs in.
const EPSGWGS84 = 4326

// BBox is a WGS84 bounding box.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Valid reports whether the box has positive extent and sane coordinates.
func (b BBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// Contains reports whether the point lies inside the box (edges included).
func (b BBox) Contains(p orb.Point) bool {
	return p.Lon() >= b.MinLon && p.Lon() <= b.MaxLon &&
		p.Lat() >= b.MinLat && p.Lat() <= b.MaxLat
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Region is a named study area with its building dataset.
type Region struct {
	Name             string   `json:"name"`
	Query            string   `json:"query"`
	BBox             *BBox    `json:"bbox,omitempty"`
	Buildings        string   `json:"buildings"`
	SourceEPSG       int      `json:"source_epsg,omitempty"`
	ExcludedStations []string `json:"excluded_stations,omitempty"`
}
