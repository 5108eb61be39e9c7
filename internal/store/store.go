// Package store persists runs, per-region results, result layers and the
// isochrone response cache.
package store

import (
	"context"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
)

// ErrNotFound is returned when a run, region or cache entry does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RegionRecord is the stored outcome of one region within a run.
type RegionRecord struct {
	Region     string            `json:"region"`
	Position   int               `json:"position"`
	Summary    *model.SummaryRow `json:"summary,omitempty"`
	ErrorKind  model.ErrorKind   `json:"error_kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	Stations   int               `json:"stations"`
	Isochrones int               `json:"isochrones"`
	Failures   int               `json:"failures"`
}

// RunSummary is a run with its region outcomes in configured order.
type RunSummary struct {
	Run     model.Run      `json:"run"`
	Regions []RegionRecord `json:"regions"`
}

// Rows returns the summary rows of the completed regions.
func (s *RunSummary) Rows() []model.SummaryRow {
	var rows []model.SummaryRow
	for _, r := range s.Regions {
		if r.Summary != nil {
			rows = append(rows, *r.Summary)
		}
	}
	return rows
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, regions []string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Region results
	SaveRegion(ctx context.Context, runID string, position int, res *model.RegionResult) error
	GetRunSummary(ctx context.Context, runID string) (*RunSummary, error)
	GetRegionLayer(ctx context.Context, runID, region string, layer Layer) (*geojson.FeatureCollection, error)

	// Isochrone cache
	GetCachedIsochrone(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedIsochrone(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredIsochrones(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
