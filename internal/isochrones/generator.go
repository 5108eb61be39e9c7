// Package isochrones fetches one drive-time polygon per station, one request
// at a time, and records which stations failed.
package isochrones

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/isoreach/internal/metrics"
	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/resilience"
	"github.com/sells-group/isoreach/pkg/isochrone"
)

// Pacer spaces out provider requests. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Cache stores provider answers between runs.
type Cache interface {
	GetIsochrone(ctx context.Context, key string) (orb.MultiPolygon, bool, error)
	SetIsochrone(ctx context.Context, key string, mp orb.MultiPolygon) error
}

// NewPacer returns a limiter that lets one request through immediately and
// then one per delay. A non-positive delay disables pacing.
func NewPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Generator requests isochrones sequentially.
type Generator struct {
	provider isochrone.Provider
	pacer    Pacer
	minutes  int
	mode     model.TravelMode
	policy   resilience.Policy
	breaker  *resilience.Breaker
	cache    Cache
	log      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithPacer replaces the default 1.5 s pacer.
func WithPacer(p Pacer) Option {
	return func(g *Generator) { g.pacer = p }
}

// WithMinutes sets the travel-time threshold.
func WithMinutes(m int) Option {
	return func(g *Generator) { g.minutes = m }
}

// WithMode sets the travel mode.
func WithMode(m model.TravelMode) Option {
	return func(g *Generator) { g.mode = m }
}

// WithRetry enables retrying transient failures. Every attempt is paced.
func WithRetry(p resilience.Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithBreaker stops calling the provider once it has failed repeatedly.
func WithBreaker(b *resilience.Breaker) Option {
	return func(g *Generator) { g.breaker = b }
}

// WithCache enables the response cache.
func WithCache(c Cache) Option {
	return func(g *Generator) { g.cache = c }
}

// NewGenerator creates a Generator for provider. Defaults: 15 minutes,
// driving, one attempt per station, 1.5 s between requests.
func NewGenerator(provider isochrone.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		pacer:    NewPacer(1500 * time.Millisecond),
		minutes:  15,
		mode:     model.ModeDriving,
		policy:   resilience.NoRetry(),
		log:      zap.L().With(zap.String("component", "isochrones")),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CacheKey identifies a request for caching. Coordinates are rounded to
// about a metre.
func CacheKey(provider string, mode model.TravelMode, minutes int, p orb.Point) string {
	return fmt.Sprintf("%s:%s:%d:%.5f,%.5f", provider, mode, minutes, p.Lon(), p.Lat())
}

// Generate requests an isochrone for every station in order. Failed stations
// are returned as failures; they do not stop the loop. The error is non-nil
// only when ctx ends, in which case the partial results are still returned.
func (g *Generator) Generate(ctx context.Context, stations []model.Station) ([]model.Isochrone, []model.IsochroneFailure, error) {
	var (
		isos     []model.Isochrone
		failures []model.IsochroneFailure
	)

	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return isos, failures, eris.Wrap(err, "isochrones: generate")
		}

		mp, kind, err := g.one(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return isos, failures, eris.Wrap(ctx.Err(), "isochrones: generate")
			}
			g.log.Warn("isochrone failed, station kept for distances",
				zap.String("station", st.Name),
				zap.Int64("station_id", st.ID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			failures = append(failures, model.IsochroneFailure{
				StationID:   st.ID,
				StationName: st.Name,
				Kind:        kind,
				Error:       err.Error(),
			})
			continue
		}

		isos = append(isos, model.Isochrone{
			StationID:   st.ID,
			StationName: st.Name,
			Minutes:     g.minutes,
			Mode:        g.mode,
			Geometry:    mp,
		})
	}

	g.log.Info("isochrones generated",
		zap.Int("stations", len(stations)),
		zap.Int("succeeded", len(isos)),
		zap.Int("failed", len(failures)),
	)
	return isos, failures, nil
}

func (g *Generator) one(ctx context.Context, st model.Station) (orb.MultiPolygon, model.FailureKind, error) {
	name := g.provider.Name()
	key := CacheKey(name, g.mode, g.minutes, st.Location)

	if g.cache != nil {
		mp, ok, err := g.cache.GetIsochrone(ctx, key)
		switch {
		case err != nil:
			g.log.Warn("isochrone cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			metrics.IsochroneRequests.WithLabelValues(name, "cached").Inc()
			return mp, "", nil
		}
	}

	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			metrics.IsochroneRequests.WithLabelValues(name, string(model.FailureCircuitOpen)).Inc()
			return nil, model.FailureCircuitOpen, err
		}
	}

	req := isochrone.Request{Location: st.Location, Minutes: g.minutes, Mode: g.mode}
	policy := g.policy
	policy.OnRetry = resilience.LogRetry(g.log.With(zap.String("station", st.Name)), "isochrone")

	mp, _, err := resilience.Retry(ctx, policy, func(ctx context.Context) (orb.MultiPolygon, error) {
		if err := g.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		start := time.Now()
		defer func() {
			metrics.IsochroneDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}()
		return g.provider.Isochrone(ctx, req)
	})
	if g.breaker != nil {
		g.breaker.Record(err)
	}
	if err != nil {
		kind := model.FailurePermanent
		if resilience.IsTransient(err) {
			kind = model.FailureTransient
		}
		metrics.IsochroneRequests.WithLabelValues(name, string(kind)).Inc()
		return nil, kind, err
	}

	metrics.IsochroneRequests.WithLabelValues(name, "ok").Inc()
	if g.cache != nil {
		if err := g.cache.SetIsochrone(ctx, key, mp); err != nil {
			g.log.Warn("isochrone cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return mp, "", nil
}
