package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	regions     INTEGER NOT NULL DEFAULT 0,
	counts      TEXT,
	records     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_regions (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	slug        TEXT NOT NULL,
	status      TEXT NOT NULL,
	result      TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, slug)
);

CREATE TABLE IF NOT EXISTS region_bounds (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	slug         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	degraded     INTEGER NOT NULL DEFAULT 0,
	reason       TEXT NOT NULL DEFAULT '',
	geom         BLOB NOT NULL,
	collected_at DATETIME NOT NULL,
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
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	point_type   TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL,
	provider_id  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, slug, identity_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_locations_provider ON run_locations(provider);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, regions int) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Regions:   regions,
		StartedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, regions, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Regions, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *pipeline.RunSummary, runErr error) error {
	status, counts, records, msg := completion(summary, runErr)
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counts = ?, records = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), string(countsJSON), records, msg, s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, regions, counts, records, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, regions, counts, records, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
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
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordRegion(ctx context.Context, runID string, res pipeline.RegionResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal region result")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_regions (run_id, slug, status, result, recorded_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, slug) DO UPDATE SET status = excluded.status, result = excluded.result, recorded_at = excluded.recorded_at`,
		runID, res.Region.Slug, string(res.Status), string(resultJSON), s.now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record region %s", res.Region.Slug)
}

func (s *SQLiteStore) ListRegions(ctx context.Context, runID string) ([]RegionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, slug, status, result, recorded_at FROM run_regions WHERE run_id = ? ORDER BY slug`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list regions of %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []RegionRecord
	for rows.Next() {
		var rec RegionRecord
		var resultJSON string
		if err := rows.Scan(&rec.RunID, &rec.Slug, &rec.Status, &resultJSON, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal region result")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list regions iterate")
}

// SaveDataset replaces the stored bounds and locations of one region.
func (s *SQLiteStore) SaveDataset(ctx context.Context, runID string, ds *pipeline.Dataset) error {
	slug := ds.Region.Slug
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin dataset tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if res := ds.Resolution; res != nil && res.Bounds != nil {
		blob, err := boundsEWKB(res.Bounds)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO region_bounds (run_id, slug, kind, strategy, degraded, reason, geom, collected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, slug) DO UPDATE SET kind = excluded.kind, strategy = excluded.strategy,
			 degraded = excluded.degraded, reason = excluded.reason, geom = excluded.geom, collected_at = excluded.collected_at`,
			runID, slug, string(res.Bounds.Kind), res.Strategy, res.Degraded, string(res.Reason), blob, ds.CollectedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save bounds of %s", slug)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_locations WHERE run_id = ? AND slug = ?`, runID, slug); err != nil {
		return eris.Wrapf(err, "sqlite: clear locations of %s", slug)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_locations (run_id, slug, seq, identity_key, name, street, house_number, lat, lon, point_type, provider, provider_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare location insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range ds.Records {
		if _, err := stmt.ExecContext(ctx, runID, slug, i, r.IdentityKey, r.Name, r.Street, r.HouseNumber,
			r.Lat, r.Lon, r.PointType, r.Provider, r.ProviderID); err != nil {
			return eris.Wrapf(err, "sqlite: insert location %s", r.IdentityKey)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit dataset")
}

func (s *SQLiteStore) ListLocations(ctx context.Context, runID, slug string) ([]location.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_key, name, street, house_number, lat, lon, point_type, provider, provider_id
		 FROM run_locations WHERE run_id = ? AND slug = ? ORDER BY seq`,
		runID, slug,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list locations of %s", slug)
	}
	defer rows.Close() //nolint:errcheck

	var out []location.Record
	for rows.Next() {
		r, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

func (s *SQLiteStore) Bounds(ctx context.Context, runID, slug string) (geom.T, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT geom FROM region_bounds WHERE run_id = ? AND slug = ?`, runID, slug,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: bounds of %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: bounds of %s", slug)
	}
	return decodeBounds(blob)
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var counts sql.NullString
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &r.Regions, &counts, &r.Records, &r.Error, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if counts.Valid && counts.String != "" && counts.String != "null" {
		if err := json.Unmarshal([]byte(counts.String), &r.Counts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal counts")
		}
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func scanLocation(row scannable) (location.Record, error) {
	var r location.Record
	err := row.Scan(&r.IdentityKey, &r.Name, &r.Street, &r.HouseNumber, &r.Lat, &r.Lon, &r.PointType, &r.Provider, &r.ProviderID)
	return r, eris.Wrap(err, "scan location")
}
