package cache

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/metrics"
)

const keyPrefix = "isoreach:isochrone:"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis connects to Redis. An empty address returns nil.
func OpenRedis(opts RedisOptions) *redis.Client {
	if opts.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
}

// Redis is an isochrone cache in Redis.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedis wraps client. Entries expire after ttl; zero keeps them.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return eris.Wrap(r.client.Ping(ctx).Err(), "cache: redis ping")
}

// GetIsochrone returns the cached polygons for key.
func (r *Redis) GetIsochrone(ctx context.Context, key string) (orb.MultiPolygon, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return nil, false, eris.Wrap(err, "cache: redis get")
	}
	mp, err := Decode(data)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return nil, false, err
	}
	metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
	return mp, true, nil
}

// SetIsochrone stores mp under key.
func (r *Redis) SetIsochrone(ctx context.Context, key string, mp orb.MultiPolygon) error {
	data, err := Encode(mp)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+key, data, r.ttl).Err(); err != nil {
		return eris.Wrap(err, "cache: redis set")
	}
	return nil
}
