package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/db"
	"github.com/sells-group/isoreach/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
	// PrepareStatements prepares the hot queries on every new connection.
	// The schema must already exist.
	PrepareStatements bool `yaml:"prepare_statements" mapstructure:"prepare_statements"`
}

var upsertRegionSQL = db.MustUpsertSQL(db.UpsertConfig{
	Table: "region_results",
	Columns: []string{
		"run_id", "region", "position", "ok", "inside", "outside", "total", "proportion_inside",
		"error_kind", "error_message", "stations", "isochrones", "failures", "bbox",
	},
	ConflictKeys: []string{"run_id", "region"},
})

var upsertCacheSQL = db.MustUpsertSQL(db.UpsertConfig{
	Table:        "isochrone_cache",
	Columns:      []string{"cache_key", "data", "cached_at", "expires_at"},
	ConflictKeys: []string{"cache_key"},
})

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":           `INSERT INTO runs (id, status, regions, started_at) VALUES ($1, $2, $3, $4)`,
	"finish_run":           `UPDATE runs SET status = $1, finished_at = $2 WHERE id = $3`,
	"get_run":              `SELECT id, status, regions, started_at, finished_at FROM runs WHERE id = $1`,
	"upsert_region":        upsertRegionSQL,
	"get_cached_isochrone": `SELECT data FROM isochrone_cache WHERE cache_key = $1 AND (expires_at IS NULL OR expires_at > now())`,
	"set_cached_isochrone": upsertCacheSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	if poolCfg != nil && poolCfg.PrepareStatements {
		pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			for name, sql := range preparedStatements {
				if _, err := conn.Prepare(ctx, name, sql); err != nil {
					return eris.Wrapf(err, "postgres: prepare %s", name)
				}
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	regions     JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS region_results (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	region            TEXT NOT NULL,
	position          INTEGER NOT NULL,
	ok                BOOLEAN NOT NULL,
	inside            INTEGER NOT NULL DEFAULT 0,
	outside           INTEGER NOT NULL DEFAULT 0,
	total             INTEGER NOT NULL DEFAULT 0,
	proportion_inside DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_kind        TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	stations          INTEGER NOT NULL DEFAULT 0,
	isochrones        INTEGER NOT NULL DEFAULT 0,
	failures          INTEGER NOT NULL DEFAULT 0,
	bbox              JSONB,
	PRIMARY KEY (run_id, region)
);

CREATE TABLE IF NOT EXISTS stations (
	run_id     TEXT NOT NULL,
	region     TEXT NOT NULL,
	station_id BIGINT NOT NULL,
	name       TEXT NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	lat        DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS isochrones (
	run_id       TEXT NOT NULL,
	region       TEXT NOT NULL,
	station_id   BIGINT NOT NULL,
	station_name TEXT NOT NULL,
	minutes      INTEGER NOT NULL,
	mode         TEXT NOT NULL,
	geom         BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS isochrone_failures (
	run_id       TEXT NOT NULL,
	region       TEXT NOT NULL,
	station_id   BIGINT NOT NULL,
	station_name TEXT NOT NULL,
	kind         TEXT NOT NULL,
	error        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS buildings (
	run_id          TEXT NOT NULL,
	region          TEXT NOT NULL,
	idx             INTEGER NOT NULL,
	inside          BOOLEAN NOT NULL,
	label           INTEGER NOT NULL,
	nearest_station TEXT NOT NULL DEFAULT '',
	distance_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
	geom            BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS isochrone_cache (
	cache_key  TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_stations_run_region ON stations(run_id, region);
CREATE INDEX IF NOT EXISTS idx_isochrones_run_region ON isochrones(run_id, region);
CREATE INDEX IF NOT EXISTS idx_isochrone_failures_run_region ON isochrone_failures(run_id, region);
CREATE INDEX IF NOT EXISTS idx_buildings_run_region ON buildings(run_id, region);
CREATE INDEX IF NOT EXISTS idx_isochrone_cache_expires_at ON isochrone_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, regions []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	regionsJSON, err := json.Marshal(regions)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal regions")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, regions, started_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusRunning), regionsJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Regions:   regions,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT id, status, regions, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, regions, started_at, finished_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveRegion(ctx context.Context, runID string, position int, res *model.RegionResult) error {
	region := res.Region.Name
	rr, err := newRegionRow(res)
	if err != nil {
		return err
	}
	isoRows, err := isochroneRows(runID, res)
	if err != nil {
		return err
	}
	bldRows, err := buildingRows(runID, res)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save region: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, upsertRegionSQL,
		runID, region, position, rr.ok, rr.inside, rr.outside, rr.total, rr.proportion,
		rr.errorKind, rr.errorMsg, rr.stations, rr.isochrones, rr.failures, rr.bbox,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save region %s", region)
	}

	for _, table := range childTables {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE run_id = $1 AND region = $2`, runID, region); err != nil {
			return eris.Wrapf(err, "postgres: clear %s for %s", table, region)
		}
	}

	for _, batch := range []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"stations", stationColumns, stationRows(runID, res)},
		{"isochrones", isochroneColumns, isoRows},
		{"isochrone_failures", failureColumns, failureRows(runID, res)},
		{"buildings", buildingColumns, bldRows},
	} {
		if _, err := db.CopyFrom(ctx, tx, batch.table, batch.columns, batch.rows); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: save region: commit")
}

func (s *PostgresStore) GetRunSummary(ctx context.Context, runID string) (*RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT region, position, ok, inside, outside, total, proportion_inside,
			error_kind, error_message, stations, isochrones, failures
		 FROM region_results WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run summary %s", runID)
	}
	defer rows.Close()

	sum := &RunSummary{Run: *run}
	for rows.Next() {
		var (
			region   string
			position int
			rr       regionRow
		)
		if err := rows.Scan(&region, &position, &rr.ok, &rr.inside, &rr.outside, &rr.total, &rr.proportion,
			&rr.errorKind, &rr.errorMsg, &rr.stations, &rr.isochrones, &rr.failures); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region result")
		}
		sum.Regions = append(sum.Regions, rr.record(region, position))
	}
	return sum, eris.Wrap(rows.Err(), "postgres: get run summary iterate")
}

var postgresLayerQueries = map[Layer]string{
	LayerStations:   `SELECT station_id, name, lon, lat FROM stations WHERE run_id = $1 AND region = $2 ORDER BY name, station_id`,
	LayerIsochrones: `SELECT station_id, station_name, minutes, mode, geom FROM isochrones WHERE run_id = $1 AND region = $2 ORDER BY station_name`,
	LayerBuildings:  `SELECT idx, inside, label, nearest_station, distance_km, geom FROM buildings WHERE run_id = $1 AND region = $2 ORDER BY idx`,
}

func (s *PostgresStore) GetRegionLayer(ctx context.Context, runID, region string, layer Layer) (*geojson.FeatureCollection, error) {
	query, ok := postgresLayerQueries[layer]
	if !ok {
		return nil, eris.Errorf("postgres: unknown layer %q", layer)
	}

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM region_results WHERE run_id = $1 AND region = $2`, runID, region,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "region %s in run %s", region, runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup region")
	}

	rows, err := s.pool.Query(ctx, query, runID, region)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s layer", layer)
	}
	defer rows.Close()

	scan := layerScanner(layer)
	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, err
		}
		fc.Append(f)
	}
	return fc, eris.Wrapf(rows.Err(), "postgres: get %s layer iterate", layer)
}

func (s *PostgresStore) GetCachedIsochrone(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM isochrone_cache WHERE cache_key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get cached isochrone")
	}
	return data, true, nil
}

func (s *PostgresStore) SetCachedIsochrone(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, upsertCacheSQL, key, data, now, expiry(now, ttl))
	return eris.Wrap(err, "postgres: set cached isochrone")
}

func (s *PostgresStore) DeleteExpiredIsochrones(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM isochrone_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired isochrones")
	}
	return int(tag.RowsAffected()), nil
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var regionsJSON []byte

	if err := row.Scan(&r.ID, &r.Status, &regionsJSON, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(regionsJSON, &r.Regions); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal regions")
	}
	return &r, nil
}
