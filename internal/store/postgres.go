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
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pickup-cli/internal/db"
	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// PostgresStore implements Store using pgxpool. Besides the per-run tables
// it maintains a points table with the first and latest sighting of every
// identity key.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const upsertRegionSQL = `INSERT INTO run_regions (run_id, slug, status, result, recorded_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id, slug) DO UPDATE SET status = EXCLUDED.status, result = EXCLUDED.result, recorded_at = EXCLUDED.recorded_at`

var (
	locationColumns = []string{"run_id", "slug", "seq", "identity_key", "name", "street", "house_number", "lat", "lon", "point_type", "provider", "provider_id"}
	pointColumns    = []string{"identity_key", "name", "street", "house_number", "lat", "lon", "point_type", "provider", "provider_id", "first_run_id", "first_seen_at", "last_run_id", "last_seen_at"}

	// A point keeps its first sighting, and a slow writer from an older run
	// cannot overwrite a newer one.
	pointsMerge = db.Merge{
		Table:   "points",
		Columns: pointColumns,
		Keys:    []string{"identity_key"},
		Keep:    []string{"first_run_id", "first_seen_at"},
		Newer:   "last_seen_at",
	}
)

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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	regions     INTEGER NOT NULL DEFAULT 0,
	counts      JSONB,
	records     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_regions (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	slug        TEXT NOT NULL,
	status      TEXT NOT NULL,
	result      JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, slug)
);

CREATE TABLE IF NOT EXISTS region_bounds (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	slug         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	degraded     BOOLEAN NOT NULL DEFAULT false,
	reason       TEXT NOT NULL DEFAULT '',
	geom         BYTEA NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, slug)
);

CREATE TABLE IF NOT EXISTS run_locations (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	slug         TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	identity_key TEXT NOT NULL,
	name         TEXT NOT NULL,
	street       TEXT NOT NULL DEFAULT '',
	house_number TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	point_type   TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL,
	provider_id  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, slug, identity_key)
);

CREATE TABLE IF NOT EXISTS points (
	identity_key TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	street       TEXT NOT NULL DEFAULT '',
	house_number TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	point_type   TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL,
	provider_id  TEXT NOT NULL DEFAULT '',
	first_run_id  TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_run_id   TEXT NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_points_provider ON points(provider);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, regions int) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Regions:   regions,
		StartedAt: s.now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, regions, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.Regions, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *pipeline.RunSummary, runErr error) error {
	status, counts, records, msg := completion(summary, runErr)
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counts = $2, records = $3, error = $4, finished_at = $5 WHERE id = $6`,
		string(status), countsJSON, records, msg, s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, regions, counts, records, error, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, regions, counts, records, error, started_at, finished_at FROM runs WHERE true`
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
		limit = defaultListLimit
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

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordRegion(ctx context.Context, runID string, res pipeline.RegionResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal region result")
	}
	_, err = s.pool.Exec(ctx, upsertRegionSQL,
		runID, res.Region.Slug, string(res.Status), resultJSON, s.now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record region %s", res.Region.Slug)
}

func (s *PostgresStore) ListRegions(ctx context.Context, runID string) ([]RegionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, slug, status, result, recorded_at FROM run_regions WHERE run_id = $1 ORDER BY slug`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list regions of %s", runID)
	}
	defer rows.Close()

	var out []RegionRecord
	for rows.Next() {
		var rec RegionRecord
		var resultJSON []byte
		if err := rows.Scan(&rec.RunID, &rec.Slug, &rec.Status, &resultJSON, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal region result")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list regions iterate")
}

// SaveDataset stores the region's bounds, replaces its run locations with a
// COPY, and merges the records into the points table.
func (s *PostgresStore) SaveDataset(ctx context.Context, runID string, ds *pipeline.Dataset) error {
	slug := ds.Region.Slug
	if res := ds.Resolution; res != nil && res.Bounds != nil {
		blob, err := boundsEWKB(res.Bounds)
		if err != nil {
			return err
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO region_bounds (run_id, slug, kind, strategy, degraded, reason, geom, collected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id, slug) DO UPDATE SET kind = EXCLUDED.kind, strategy = EXCLUDED.strategy,
degraded = EXCLUDED.degraded, reason = EXCLUDED.reason, geom = EXCLUDED.geom, collected_at = EXCLUDED.collected_at`,
			runID, slug, string(res.Bounds.Kind), res.Strategy, res.Degraded, string(res.Reason), blob, ds.CollectedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save bounds of %s", slug)
		}
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM run_locations WHERE run_id = $1 AND slug = $2`, runID, slug); err != nil {
		return eris.Wrapf(err, "postgres: clear locations of %s", slug)
	}
	if len(ds.Records) == 0 {
		return nil
	}

	seen := ds.CollectedAt.UTC()
	_, err := db.Copy(ctx, s.pool, "run_locations", locationColumns, ds.Records, func(i int, r location.Record) []any {
		return []any{runID, slug, i, r.IdentityKey, r.Name, r.Street, r.HouseNumber, r.Lat, r.Lon, r.PointType, r.Provider, r.ProviderID}
	})
	if err != nil {
		return eris.Wrapf(err, "postgres: copy locations of %s", slug)
	}
	points := make([][]any, len(ds.Records))
	for i, r := range ds.Records {
		points[i] = []any{r.IdentityKey, r.Name, r.Street, r.HouseNumber, r.Lat, r.Lon, r.PointType,
			r.Provider, r.ProviderID, runID, seen, runID, seen}
	}
	if _, err := db.Upsert(ctx, s.pool, pointsMerge, points); err != nil {
		return eris.Wrapf(err, "postgres: merge points of %s", slug)
	}
	return nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, runID, slug string) ([]location.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity_key, name, street, house_number, lat, lon, point_type, provider, provider_id
FROM run_locations WHERE run_id = $1 AND slug = $2 ORDER BY seq`,
		runID, slug,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list locations of %s", slug)
	}
	defer rows.Close()

	var out []location.Record
	for rows.Next() {
		r, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list locations iterate")
}

func (s *PostgresStore) Bounds(ctx context.Context, runID, slug string) (geom.T, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT geom FROM region_bounds WHERE run_id = $1 AND slug = $2`, runID, slug,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: bounds of %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: bounds of %s", slug)
	}
	return decodeBounds(blob)
}

func scanPgRun(row scannable) (*Run, error) {
	var r Run
	var counts []byte
	var finished *time.Time

	if err := row.Scan(&r.ID, &r.Status, &r.Regions, &counts, &r.Records, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if len(counts) > 0 && string(counts) != "null" {
		if err := json.Unmarshal(counts, &r.Counts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal counts")
		}
	}
	r.FinishedAt = finished
	return &r, nil
}
