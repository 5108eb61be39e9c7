package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/classify"
	"github.com/sells-group/isoreach/internal/distance"
	"github.com/sells-group/isoreach/internal/metrics"
	"github.com/sells-group/isoreach/internal/model"
)

// RunRegion runs the full pipeline for one region. Region-fatal problems are
// returned on the result's Err field. The error return is non-nil only when
// ctx ends.
func (r *Runner) RunRegion(ctx context.Context, region model.Region) (*model.RegionResult, error) {
	start := time.Now()
	log := r.log.With(zap.String("region", region.Name))
	res := &model.RegionResult{Region: region}

	err := r.runRegion(ctx, log, res)
	metrics.RegionDurationSeconds.WithLabelValues(region.Name).Observe(time.Since(start).Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, eris.Wrapf(ctxErr, "pipeline: region %s", region.Name)
	}

	if err != nil {
		var rerr *model.RegionError
		if !errors.As(err, &rerr) {
			return nil, eris.Wrapf(err, "pipeline: region %s", region.Name)
		}
		res.Err = rerr
		metrics.RegionOutcomes.WithLabelValues(region.Name, string(rerr.Kind)).Inc()
		log.Error("region failed",
			zap.String("kind", string(rerr.Kind)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(rerr.Err),
		)
		return res, nil
	}

	metrics.RegionOutcomes.WithLabelValues(region.Name, "ok").Inc()
	log.Info("region complete",
		zap.Int("inside", res.Summary.Inside),
		zap.Int("outside", res.Summary.Outside),
		zap.String("proportion_inside", res.Summary.ProportionLabel()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (r *Runner) runRegion(ctx context.Context, log *zap.Logger, res *model.RegionResult) error {
	name := res.Region.Name
	fatal := func(kind model.ErrorKind, err error) error {
		return &model.RegionError{Region: name, Kind: kind, Err: err}
	}

	// step logs the duration of one stage.
	step := func(stage string, fn func() error) error {
		t := time.Now()
		err := fn()
		log.Debug("stage done",
			zap.String("stage", stage),
			zap.Int64("duration_ms", time.Since(t).Milliseconds()),
			zap.Bool("ok", err == nil),
		)
		return err
	}

	if err := step("stations", func() error {
		box, st, err := r.Stations(ctx, res.Region)
		res.BBox = box
		res.Stations = st.Stations
		if len(st.Excluded) > 0 || st.Unnamed > 0 {
			log.Info("stations filtered",
				zap.Int("unnamed", st.Unnamed),
				zap.Strings("excluded", st.Excluded),
			)
		}
		return err
	}); err != nil {
		return err
	}

	if err := step("isochrones", func() error {
		isos, failures, err := r.deps.Isochrones.Generate(ctx, res.Stations)
		res.Isochrones = isos
		res.Failures = failures
		if err != nil {
			return err
		}
		if len(isos) == 0 {
			return fatal(model.ErrNoIsochrones, eris.Errorf("pipeline: all %d isochrone requests failed", len(failures)))
		}
		return nil
	}); err != nil {
		return err
	}

	if err := step("buildings", func() error {
		buildings, err := r.deps.Buildings.Load(ctx, res.Region)
		if err != nil {
			return fatal(model.ErrBuildingsUnavailable, err)
		}
		for i := range buildings {
			buildings[i].Region = name
		}
		res.Buildings = buildings
		return nil
	}); err != nil {
		return err
	}

	var counts classify.Counts
	if err := step("classify", func() error {
		area, err := classify.NewArea(res.Isochrones)
		if err != nil {
			return fatal(model.ErrNoIsochrones, err)
		}
		counts, err = classify.Partition(ctx, res.Buildings, area, classify.WithWorkers(r.workers))
		return err
	}); err != nil {
		return err
	}

	if err := step("distances", func() error {
		idx, err := distance.NewIndex(res.Stations)
		if err != nil {
			return fatal(model.ErrNoStations, err)
		}
		res.Distances, err = distance.Measure(ctx, name, res.Buildings, idx)
		return err
	}); err != nil {
		return err
	}

	summary := classify.Summarize(name, counts)
	res.Summary = &summary
	return nil
}
