package main

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/isoreach/internal/cache"
	"github.com/sells-group/isoreach/internal/cadastre"
	"github.com/sells-group/isoreach/internal/fetcher"
	"github.com/sells-group/isoreach/internal/isochrones"
	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/pipeline"
	"github.com/sells-group/isoreach/internal/resilience"
	"github.com/sells-group/isoreach/internal/stations"
	"github.com/sells-group/isoreach/internal/store"
	"github.com/sells-group/isoreach/pkg/geocode"
	"github.com/sells-group/isoreach/pkg/isochrone"
	"github.com/sells-group/isoreach/pkg/overpass"
)

// initStore opens the configured store. The "none" driver returns nil.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "isoreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns:          cfg.Store.MaxConns,
			MinConns:          cfg.Store.MinConns,
			PrepareStatements: cfg.Store.PrepareStatements,
		})
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// requireStore opens and migrates the store for commands that read runs.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store driver is none; set store.driver to sqlite or postgres")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCache builds the isochrone response cache. It returns nil when caching
// is off or the store backend has no store to use.
func initCache(ctx context.Context, st store.Store) (isochrones.Cache, func(), error) {
	ttl := time.Duration(cfg.Isochrone.CacheTTLHours) * time.Hour
	noop := func() {}

	switch cfg.Cache.Backend {
	case "store":
		if st == nil {
			zap.L().Warn("isochrone cache disabled: store driver is none")
			return nil, noop, nil
		}
		if n, err := st.DeleteExpiredIsochrones(ctx); err != nil {
			zap.L().Warn("purge expired isochrones failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("purged expired isochrones", zap.Int("count", n))
		}
		return cache.NewStoreCache(st, ttl), noop, nil
	case "redis":
		client := cache.OpenRedis(cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if client == nil {
			return nil, noop, eris.New("cache.redis_addr is required for the redis backend")
		}
		rc := cache.NewRedis(client, ttl)
		if err := rc.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return rc, func() { _ = client.Close() }, nil
	default:
		return nil, noop, nil
	}
}

func newGeocoder() *geocode.Client {
	return geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithRateLimit(cfg.Geocode.RateLimitPerSec),
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Geocode.TimeoutSecs) * time.Second}),
		geocode.WithCountryCodes(cfg.Geocode.CountryCodes...),
	)
}

func newStationSource() stations.Source {
	if cfg.Stations.Source == "pbf" {
		return stations.NewPBFSource(cfg.Stations.PBFPath)
	}
	return overpass.NewClient(
		overpass.WithEndpoint(cfg.Overpass.BaseURL),
		overpass.WithTimeout(cfg.Overpass.TimeoutSecs),
		overpass.WithRateLimit(cfg.Overpass.RateLimitPerSec),
		overpass.WithUserAgent(cfg.Geocode.UserAgent),
	)
}

func newProvider() (isochrone.Provider, error) {
	opts := []isochrone.Option{
		isochrone.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Isochrone.TimeoutSecs) * time.Second}),
	}
	if cfg.Isochrone.BaseURL != "" {
		opts = append(opts, isochrone.WithBaseURL(cfg.Isochrone.BaseURL))
	}
	return isochrone.New(cfg.Isochrone.Provider, cfg.Isochrone.APIKey, opts...)
}

// newGenerator builds the paced isochrone generator. c may be nil.
func newGenerator(provider isochrone.Provider, c isochrones.Cache) *isochrones.Generator {
	opts := []isochrones.Option{
		isochrones.WithPacer(isochrones.NewPacer(time.Duration(cfg.Isochrone.DelayMs) * time.Millisecond)),
		isochrones.WithMinutes(cfg.Isochrone.Minutes),
		isochrones.WithMode(model.TravelMode(cfg.Isochrone.Mode)),
	}
	if cfg.Isochrone.MaxAttempts > 1 {
		opts = append(opts, isochrones.WithRetry(resilience.NewPolicy(cfg.Isochrone.MaxAttempts, 2*time.Second)))
	}
	if cfg.Isochrone.BreakerThreshold > 0 {
		br := resilience.NewBreaker(cfg.Isochrone.BreakerThreshold,
			time.Duration(cfg.Isochrone.BreakerResetSecs)*time.Second,
			resilience.OnStateChange(func(from, to resilience.State) {
				zap.L().Warn("isochrone circuit breaker",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}),
		)
		opts = append(opts, isochrones.WithBreaker(br))
	}
	if c != nil {
		opts = append(opts, isochrones.WithCache(c))
	}
	return isochrones.NewGenerator(provider, opts...)
}

func newLoader() *cadastre.Loader {
	timeout := time.Duration(cfg.Cadastre.DownloadTimeoutSecs) * time.Second
	mux := &fetcher.Mux{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Geocode.UserAgent,
			Timeout:   timeout,
			Limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}
	return cadastre.NewLoader(
		cadastre.WithFetcher(mux),
		cadastre.WithTempDir(cfg.Cadastre.TempDir),
		cadastre.WithTolerance(cfg.Cadastre.SimplifyToleranceM),
		cadastre.WithReuseDownloads(true),
	)
}

// runEnv holds everything the run command needs.
type runEnv struct {
	Store  store.Store // nil when persistence is off
	Runner *pipeline.Runner
	close  []func()
}

// Close releases the cache and store.
func (e *runEnv) Close() {
	for i := len(e.close) - 1; i >= 0; i-- {
		e.close[i]()
	}
}

// initRunEnv wires the pipeline runner. Callers should defer env.Close().
func initRunEnv(ctx context.Context, persist bool, failFast bool) (*runEnv, error) {
	env := &runEnv{}

	if persist {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		if st != nil {
			if err := st.Migrate(ctx); err != nil {
				_ = st.Close()
				return nil, eris.Wrap(err, "migrate store")
			}
			env.Store = st
			env.close = append(env.close, func() { _ = st.Close() })
		}
	}

	c, closeCache, err := initCache(ctx, env.Store)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.close = append(env.close, closeCache)

	provider, err := newProvider()
	if err != nil {
		env.Close()
		return nil, err
	}

	exclusions, err := stations.LoadExclusionFile(cfg.Stations.ExclusionsFile)
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithConcurrency(cfg.Pipeline.RegionConcurrency),
		pipeline.WithFailFast(failFast || cfg.Pipeline.FailFast),
		pipeline.WithClassifyWorkers(cfg.Pipeline.ClassifyWorkers),
	}
	if env.Store != nil {
		opts = append(opts, pipeline.WithStore(env.Store))
	}

	env.Runner = pipeline.NewRunner(pipeline.Deps{
		Resolver:   newGeocoder(),
		Stations:   newStationSource(),
		Exclusions: exclusions,
		Isochrones: newGenerator(provider, c),
		Buildings:  newLoader(),
	}, opts...)
	return env, nil
}

// selectRegions filters the configured regions by name, keeping config
// order. An empty filter selects all.
func selectRegions(all []model.Region, names []string) ([]model.Region, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []model.Region
	for _, r := range all {
		if want[r.Name] {
			out = append(out, r)
			delete(want, r.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, eris.Errorf("unknown region(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// findRegion returns the configured region named name.
func findRegion(name string) (model.Region, error) {
	regions, err := selectRegions(cfg.RegionModels(), []string{name})
	if err != nil {
		return model.Region{}, err
	}
	return regions[0], nil
}
