// Package cadastre loads building footprints for a region, simplifies them and
// reprojects them to WGS84.
package cadastre

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/crs"
	"github.com/sells-group/isoreach/internal/fetcher"
	"github.com/sells-group/isoreach/internal/model"
)

// ErrUnavailable means the building dataset could not be found or read.
var ErrUnavailable = eris.New("cadastre: buildings unavailable")

// Loader reads a region's building dataset.
type Loader struct {
	fetch     fetcher.Fetcher
	tempDir   string
	tolerance float64
	reuse     bool
	log       *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFetcher sets the fetcher used for http(s) and ftp sources.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(l *Loader) { l.fetch = f }
}

// WithTempDir sets where remote sources are downloaded and extracted.
func WithTempDir(dir string) Option {
	return func(l *Loader) { l.tempDir = dir }
}

// WithTolerance sets the simplification tolerance in metres. Zero disables
// simplification.
func WithTolerance(metres float64) Option {
	return func(l *Loader) { l.tolerance = metres }
}

// WithReuseDownloads skips downloading a remote source already present in
// the temp dir.
func WithReuseDownloads(reuse bool) Option {
	return func(l *Loader) { l.reuse = reuse }
}

// NewLoader creates a Loader. The default tolerance is one metre.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		tempDir:   "/tmp/isoreach",
		tolerance: 1.0,
		log:       zap.L().With(zap.String("component", "cadastre")),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load returns the region's buildings in WGS84, in file order. Any failure to
// locate or read the dataset wraps ErrUnavailable.
func (l *Loader) Load(ctx context.Context, region model.Region) ([]model.Building, error) {
	log := l.log.With(zap.String("region", region.Name))

	shpPath, err := l.resolve(ctx, region.Name, region.Buildings)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "%s: %v", region.Name, err)
	}

	tr, err := l.transformer(region, shpPath)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "%s: %v", region.Name, err)
	}

	records, skipped, err := ReadShapefile(shpPath)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "%s: %v", region.Name, err)
	}
	if skipped > 0 {
		log.Debug("skipped non-polygon records", zap.Int("skipped", skipped))
	}

	tol := l.tolerance
	if tr.Geographic() {
		tol /= metresPerDegree
	}

	buildings := make([]model.Building, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "cadastre: load")
		}
		simplified := Simplify(rec.Geometry, tol)
		geom := make(orb.MultiPolygon, len(simplified))
		for i, poly := range simplified {
			geom[i] = crs.Polygon(tr, poly)
		}
		buildings = append(buildings, model.Building{
			Index:    rec.Row,
			Region:   region.Name,
			Geometry: geom,
		})
	}

	log.Info("loaded buildings",
		zap.String("source", shpPath),
		zap.Int("epsg", tr.EPSG()),
		zap.Int("buildings", len(buildings)),
	)
	return buildings, nil
}

// transformer picks the source CRS: the configured EPSG, else the .prj
// sidecar, else WGS84.
func (l *Loader) transformer(region model.Region, shpPath string) (crs.Transformer, error) {
	if region.SourceEPSG > 0 {
		return crs.New(region.SourceEPSG)
	}
	if prj, ok := sidecarPRJ(shpPath); ok {
		code, err := crs.DetectPRJ(prj)
		if err != nil {
			return nil, err
		}
		return crs.New(code)
	}
	l.log.Warn("no source CRS configured and no .prj found, assuming WGS84", zap.String("path", shpPath))
	return crs.New(crs.WGS84)
}
