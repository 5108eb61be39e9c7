// Package cache keeps isochrone responses between runs, in Redis or in the
// run store.
package cache

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/metrics"
)

// Encode serialises a polygon set as a GeoJSON geometry.
func Encode(mp orb.MultiPolygon) ([]byte, error) {
	data, err := geojson.NewGeometry(mp).MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "cache: encode")
	}
	return data, nil
}

// Decode parses what Encode produced. A single Polygon is accepted too.
func Decode(data []byte) (orb.MultiPolygon, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, eris.Wrap(err, "cache: decode")
	}
	switch v := g.Geometry().(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	}
	return nil, eris.Errorf("cache: unexpected geometry %s", g.Type)
}

// Blobs is a byte store with expiry; the run store implements it.
type Blobs interface {
	GetCachedIsochrone(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedIsochrone(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// StoreCache adapts a Blobs store to the isochrone cache.
type StoreCache struct {
	blobs Blobs
	ttl   time.Duration
}

// NewStoreCache wraps blobs. Entries expire after ttl; zero keeps them.
func NewStoreCache(blobs Blobs, ttl time.Duration) *StoreCache {
	return &StoreCache{blobs: blobs, ttl: ttl}
}

// GetIsochrone returns the cached polygons for key.
func (c *StoreCache) GetIsochrone(ctx context.Context, key string) (orb.MultiPolygon, bool, error) {
	data, ok, err := c.blobs.GetCachedIsochrone(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("store", "error").Inc()
		return nil, false, err
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("store", "miss").Inc()
		return nil, false, nil
	}
	mp, err := Decode(data)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("store", "error").Inc()
		return nil, false, err
	}
	metrics.CacheLookups.WithLabelValues("store", "hit").Inc()
	return mp, true, nil
}

// SetIsochrone stores mp under key.
func (c *StoreCache) SetIsochrone(ctx context.Context, key string, mp orb.MultiPolygon) error {
	data, err := Encode(mp)
	if err != nil {
		return err
	}
	return c.blobs.SetCachedIsochrone(ctx, key, data, c.ttl)
}
