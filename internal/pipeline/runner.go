// Package pipeline runs the per-region station, isochrone, cadastre,
// classification and distance steps and collects the region results of a
// run.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/stations"
	"github.com/sells-group/isoreach/internal/store"
)

// Resolver turns a free-text region query into a bounding box.
type Resolver interface {
	ResolveBBox(ctx context.Context, query string) (model.BBox, error)
}

// IsochroneGenerator requests isochrones for a station set.
type IsochroneGenerator interface {
	Generate(ctx context.Context, stations []model.Station) ([]model.Isochrone, []model.IsochroneFailure, error)
}

// BuildingLoader loads a region's building footprints in WGS84.
type BuildingLoader interface {
	Load(ctx context.Context, region model.Region) ([]model.Building, error)
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Resolver   Resolver
	Stations   stations.Source
	Exclusions stations.ExclusionFile
	Isochrones IsochroneGenerator
	Buildings  BuildingLoader
}

// Runner executes the region pipelines of a run.
type Runner struct {
	deps        Deps
	store       store.Store
	concurrency int
	failFast    bool
	workers     int
	now         func() time.Time
	log         *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists the run and every region result as it completes.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithConcurrency sets how many regions run at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClassifyWorkers sets how many goroutines classify one region's
// buildings. Values below 1 mean 1.
func WithClassifyWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithFailFast stops scheduling regions after the first region failure.
func WithFailFast(v bool) Option {
	return func(r *Runner) { r.failFast = v }
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, opts ...Option) *Runner {
	r := &Runner{
		deps:        deps,
		concurrency: 1,
		workers:     1,
		now:         time.Now,
		log:         zap.L().With(zap.String("component", "pipeline")),
	}
	for _, o := range opts {
		o(r)
	}
	if r.deps.Exclusions == nil {
		r.deps.Exclusions = stations.ExclusionFile{}
	}
	return r
}

// errRegionFailed aborts the remaining regions in fail-fast mode.
var errRegionFailed = eris.New("pipeline: region failed")

// Run executes every region and returns their results in the given order.
// Region failures are carried on the results. The error is non-nil only
// when ctx ends or the store cannot record the run.
func (r *Runner) Run(ctx context.Context, regions []model.Region) (*model.RunResult, error) {
	names := make([]string, len(regions))
	for i, reg := range regions {
		names[i] = reg.Name
	}

	result := &model.RunResult{
		ID:        uuid.NewString(),
		StartedAt: r.now().UTC(),
		Order:     names,
		Regions:   make(map[string]*model.RegionResult, len(regions)),
	}
	if r.store != nil {
		run, err := r.store.CreateRun(ctx, names)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		result.ID = run.ID
		result.StartedAt = run.StartedAt
	}

	log := r.log.With(zap.String("run_id", result.ID))
	log.Info("run started", zap.Strings("regions", names), zap.Int("concurrency", r.concurrency))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, reg := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.RunRegion(gctx, reg)
			if err != nil {
				return err
			}

			mu.Lock()
			result.Regions[reg.Name] = res
			mu.Unlock()

			if r.store != nil {
				if err := r.store.SaveRegion(gctx, result.ID, i, res); err != nil {
					log.Error("save region failed", zap.String("region", reg.Name), zap.Error(err))
				}
			}
			if res.Err != nil && r.failFast {
				return eris.Wrap(errRegionFailed, res.Err.Error())
			}
			return nil
		})
	}

	err := g.Wait()
	result.FinishedAt = r.now().UTC()

	// Regions never reached in fail-fast mode are reported as skipped.
	for _, reg := range regions {
		if _, ok := result.Regions[reg.Name]; !ok {
			result.Regions[reg.Name] = &model.RegionResult{
				Region: reg,
				Err:    &model.RegionError{Region: reg.Name, Kind: model.ErrSkipped, Err: err},
			}
		}
	}

	if err != nil && !eris.Is(err, errRegionFailed) {
		r.finish(log, result.ID, model.RunStatusFailed)
		return result, eris.Wrap(err, "pipeline: run")
	}

	status := result.Status()
	r.finish(log, result.ID, status)
	log.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("failed_regions", len(result.Failed())),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (r *Runner) finish(log *zap.Logger, runID string, status model.RunStatus) {
	if r.store == nil {
		return
	}
	// The run context may already be cancelled; record the outcome anyway.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.FinishRun(ctx, runID, status); err != nil {
		log.Warn("finish run failed", zap.Error(err))
	}
}

// Stations resolves the region and returns its filtered station set.
func (r *Runner) Stations(ctx context.Context, region model.Region) (model.BBox, stations.Result, error) {
	box, err := r.bbox(ctx, region)
	if err != nil {
		return model.BBox{}, stations.Result{}, &model.RegionError{Region: region.Name, Kind: model.ErrRegionUnresolved, Err: err}
	}

	nodes, err := r.deps.Stations.Stations(ctx, box)
	if err != nil {
		return box, stations.Result{}, &model.RegionError{Region: region.Name, Kind: model.ErrStationsUnavailable, Err: err}
	}

	res := stations.Filter(region.Name, nodes, r.deps.Exclusions.For(region.Name, region.ExcludedStations))
	if len(res.Stations) == 0 {
		return box, res, &model.RegionError{
			Region: region.Name,
			Kind:   model.ErrNoStations,
			Err:    eris.Errorf("pipeline: %d railway nodes, none usable", len(nodes)),
		}
	}
	return box, res, nil
}

func (r *Runner) bbox(ctx context.Context, region model.Region) (model.BBox, error) {
	if region.BBox != nil {
		if !region.BBox.Valid() {
			return model.BBox{}, eris.Errorf("pipeline: invalid configured bbox for %s", region.Name)
		}
		return *region.BBox, nil
	}
	if r.deps.Resolver == nil {
		return model.BBox{}, eris.New("pipeline: no geocoder configured")
	}
	query := region.Query
	if query == "" {
		query = region.Name
	}
	return r.deps.Resolver.ResolveBBox(ctx, query)
}
