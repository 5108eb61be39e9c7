package model

import (
	"fmt"
	"time"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted pipeline run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Regions    []string   `json:"regions"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SummaryRow is one line of the inside/outside summary table.
type SummaryRow struct {
	Region           string  `json:"region" csv:"region"`
	Inside           int     `json:"inside" csv:"inside"`
	Outside          int     `json:"outside" csv:"outside"`
	Total            int     `json:"total" csv:"total"`
	ProportionInside float64 `json:"proportion_inside" csv:"proportion_inside"`
}

// ProportionLabel renders the inside share the way the table prints it.
func (s SummaryRow) ProportionLabel() string {
	return fmt.Sprintf("%.1f%%", s.ProportionInside)
}

// ErrorKind labels a failure that makes one region's results unusable.
type ErrorKind string

const (
	ErrRegionUnresolved     ErrorKind = "region_unresolved"
	ErrStationsUnavailable  ErrorKind = "stations_unavailable"
	ErrNoStations           ErrorKind = "no_stations"
	ErrBuildingsUnavailable ErrorKind = "buildings_unavailable"
	ErrNoIsochrones         ErrorKind = "no_isochrones"
	// ErrSkipped marks a region that never ran because the run stopped early.
	ErrSkipped ErrorKind = "skipped"
)

// RegionError is a region-fatal failure. It is carried as data on the
// region's result so other regions keep running.
type RegionError struct {
	Region string    `json:"region"`
	Kind   ErrorKind `json:"kind"`
	Err    error     `json:"-"`
}

func (e *RegionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("region %s: %s", e.Region, e.Kind)
	}
	return fmt.Sprintf("region %s: %s: %v", e.Region, e.Kind, e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

// RegionResult is everything one region's pipeline produced.
type RegionResult struct {
	Region     Region             `json:"region"`
	BBox       BBox               `json:"bbox"`
	Stations   []Station          `json:"stations"`
	Isochrones []Isochrone        `json:"isochrones"`
	Failures   []IsochroneFailure `json:"failures,omitempty"`
	Buildings  []Building         `json:"-"`
	Distances  []DistanceRecord   `json:"-"`
	Summary    *SummaryRow        `json:"summary,omitempty"`
	Err        *RegionError       `json:"error,omitempty"`
}

// OK reports whether the region completed.
func (r *RegionResult) OK() bool {
	return r != nil && r.Err == nil && r.Summary != nil
}

// RunResult collects the per-region results of one run.
type RunResult struct {
	ID         string                   `json:"id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Order      []string                 `json:"order"`
	Regions    map[string]*RegionResult `json:"regions"`
}

// Summary concatenates the summary rows of completed regions in run order.
func (r *RunResult) Summary() []SummaryRow {
	rows := make([]SummaryRow, 0, len(r.Order))
	for _, name := range r.Order {
		if res := r.Regions[name]; res.OK() {
			rows = append(rows, *res.Summary)
		}
	}
	return rows
}

// Distances concatenates distance records of completed regions in run order.
func (r *RunResult) Distances() []DistanceRecord {
	var out []DistanceRecord
	for _, name := range r.Order {
		if res := r.Regions[name]; res.OK() {
			out = append(out, res.Distances...)
		}
	}
	return out
}

// Failed returns the region errors in run order.
func (r *RunResult) Failed() []*RegionError {
	var out []*RegionError
	for _, name := range r.Order {
		if res := r.Regions[name]; res != nil && res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

// Status derives the overall run status from the region outcomes.
func (r *RunResult) Status() RunStatus {
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return RunStatusComplete
	case failed == len(r.Order):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}
