package model

import "github.com/paulmach/orb"

// Station is a named railway station or halt.
type Station struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Location orb.Point `json:"location"`
	Region   string    `json:"region"`
}

// TravelMode is the routing profile used for isochrones.
type TravelMode string

// ModeDriving is the only supported profile.
const ModeDriving TravelMode = "driving"

// Isochrone is the area reachable from one station within Minutes.
type Isochrone struct {
	StationID   int64            `json:"station_id"`
	StationName string           `json:"station_name"`
	Minutes     int              `json:"minutes"`
	Mode        TravelMode       `json:"mode"`
	Geometry    orb.MultiPolygon `json:"-"`
}

// FailureKind classifies a per-station isochrone failure.
type FailureKind string

const (
	FailureTransient   FailureKind = "transient"
	FailurePermanent   FailureKind = "permanent"
	FailureCircuitOpen FailureKind = "circuit_open"
)

// IsochroneFailure records a station whose isochrone request failed. The
// station still counts as a distance target.
type IsochroneFailure struct {
	StationID   int64       `json:"station_id"`
	StationName string      `json:"station_name"`
	Kind        FailureKind `json:"kind"`
	Error       string      `json:"error"`
}
