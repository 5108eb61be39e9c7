package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/isoreach/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	regions     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS region_results (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	region            TEXT NOT NULL,
	position          INTEGER NOT NULL,
	ok                INTEGER NOT NULL,
	inside            INTEGER NOT NULL DEFAULT 0,
	outside           INTEGER NOT NULL DEFAULT 0,
	total             INTEGER NOT NULL DEFAULT 0,
	proportion_inside REAL NOT NULL DEFAULT 0,
	error_kind        TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	stations          INTEGER NOT NULL DEFAULT 0,
	isochrones        INTEGER NOT NULL DEFAULT 0,
	failures          INTEGER NOT NULL DEFAULT 0,
	bbox              TEXT,
	PRIMARY KEY (run_id, region)
);

CREATE TABLE IF NOT EXISTS stations (
	run_id     TEXT NOT NULL,
	region     TEXT NOT NULL,
	station_id INTEGER NOT NULL,
	name       TEXT NOT NULL,
	lon        REAL NOT NULL,
	lat        REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS isochrones (
	run_id       TEXT NOT NULL,
	region       TEXT NOT NULL,
	station_id   INTEGER NOT NULL,
	station_name TEXT NOT NULL,
	minutes      INTEGER NOT NULL,
	mode         TEXT NOT NULL,
	geom         BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS isochrone_failures (
	run_id       TEXT NOT NULL,
	region       TEXT NOT NULL,
	station_id   INTEGER NOT NULL,
	station_name TEXT NOT NULL,
	kind         TEXT NOT NULL,
	error        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS buildings (
	run_id          TEXT NOT NULL,
	region          TEXT NOT NULL,
	idx             INTEGER NOT NULL,
	inside          INTEGER NOT NULL,
	label           INTEGER NOT NULL,
	nearest_station TEXT NOT NULL DEFAULT '',
	distance_km     REAL NOT NULL DEFAULT 0,
	geom            BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS isochrone_cache (
	cache_key  TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_stations_run_region ON stations(run_id, region);
CREATE INDEX IF NOT EXISTS idx_isochrones_run_region ON isochrones(run_id, region);
CREATE INDEX IF NOT EXISTS idx_isochrone_failures_run_region ON isochrone_failures(run_id, region);
CREATE INDEX IF NOT EXISTS idx_buildings_run_region ON buildings(run_id, region);
CREATE INDEX IF NOT EXISTS idx_isochrone_cache_expires_at ON isochrone_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, regions []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	regionsJSON, err := json.Marshal(regions)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal regions")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, regions, started_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), string(regionsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Regions:   regions,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, regions, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, regions, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveRegion(ctx context.Context, runID string, position int, res *model.RegionResult) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save region: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO region_results (run_id, region, position, ok, inside, outside, total, proportion_inside,
			error_kind, error_message, stations, isochrones, failures, bbox)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, region) DO UPDATE SET
			position = excluded.position, ok = excluded.ok, inside = excluded.inside,
			outside = excluded.outside, total = excluded.total, proportion_inside = excluded.proportion_inside,
			error_kind = excluded.error_kind, error_message = excluded.error_message,
			stations = excluded.stations, isochrones = excluded.isochrones,
			failures = excluded.failures, bbox = excluded.bbox`,
		runID, region, position, rr.ok, rr.inside, rr.outside, rr.total, rr.proportion,
		rr.errorKind, rr.errorMsg, rr.stations, rr.isochrones, rr.failures, string(rr.bbox),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save region %s", region)
	}

	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ? AND region = ?`, runID, region); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s for %s", table, region)
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
		if err := insertRows(ctx, tx, batch.table, batch.columns, batch.rows); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: save region: commit")
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(columns, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return nil
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) (*RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT region, position, ok, inside, outside, total, proportion_inside,
			error_kind, error_message, stations, isochrones, failures
		 FROM region_results WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run summary %s", runID)
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
			return nil, eris.Wrap(err, "sqlite: scan region result")
		}
		sum.Regions = append(sum.Regions, rr.record(region, position))
	}
	return sum, eris.Wrap(rows.Err(), "sqlite: get run summary iterate")
}

var sqliteLayerQueries = map[Layer]string{
	LayerStations:   `SELECT station_id, name, lon, lat FROM stations WHERE run_id = ? AND region = ? ORDER BY name, station_id`,
	LayerIsochrones: `SELECT station_id, station_name, minutes, mode, geom FROM isochrones WHERE run_id = ? AND region = ? ORDER BY station_name`,
	LayerBuildings:  `SELECT idx, inside, label, nearest_station, distance_km, geom FROM buildings WHERE run_id = ? AND region = ? ORDER BY idx`,
}

func (s *SQLiteStore) GetRegionLayer(ctx context.Context, runID, region string, layer Layer) (*geojson.FeatureCollection, error) {
	query, ok := sqliteLayerQueries[layer]
	if !ok {
		return nil, eris.Errorf("sqlite: unknown layer %q", layer)
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM region_results WHERE run_id = ? AND region = ?`, runID, region,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "region %s in run %s", region, runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup region")
	}

	rows, err := s.db.QueryContext(ctx, query, runID, region)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s layer", layer)
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
	return fc, eris.Wrapf(rows.Err(), "sqlite: get %s layer iterate", layer)
}

func (s *SQLiteStore) GetCachedIsochrone(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM isochrone_cache WHERE cache_key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached isochrone")
	}
	return data, true, nil
}

func (s *SQLiteStore) SetCachedIsochrone(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now()
	var expiresAt *int64
	if exp := expiry(now, ttl); exp != nil {
		unix := exp.Unix()
		expiresAt = &unix
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO isochrone_cache (cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, now.Unix(), expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached isochrone")
}

func (s *SQLiteStore) DeleteExpiredIsochrones(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM isochrone_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired isochrones")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var regionsJSON string
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &regionsJSON, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(regionsJSON), &r.Regions); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal regions")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
