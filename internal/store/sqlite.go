package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/stockleads/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, ttl time.Duration) (*SQLiteStore, error) {
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, ttl: normalizeTTL(ttl), now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS page_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME NOT NULL,
	leads          INTEGER NOT NULL DEFAULT 0,
	sources        INTEGER NOT NULL DEFAULT 0,
	sources_failed INTEGER NOT NULL DEFAULT 0,
	result         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_page_cache_expires_at ON page_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPage(ctx context.Context, url string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM page_cache WHERE url = ? AND expires_at > ?`,
		url, s.now().UTC(),
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: get page")
	}
	return content, true, nil
}

func (s *SQLiteStore) SetPage(ctx context.Context, url, content string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_cache (id, url, content, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET content = excluded.content,
		   fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		uuid.New().String(), url, content, now, now.Add(s.ttl),
	)
	return eris.Wrap(err, "sqlite: set page")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM page_cache WHERE expires_at <= ?`, s.now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired pages")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	if result == nil || result.RunID == "" {
		return eris.New("sqlite: run id is required")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	rec := recordOf(result)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, leads, sources, sources_failed, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET finished_at = excluded.finished_at, leads = excluded.leads,
		   sources = excluded.sources, sources_failed = excluded.sources_failed, result = excluded.result`,
		rec.ID, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.Leads, rec.Sources, rec.SourcesFailed, string(data),
	)
	return eris.Wrapf(err, "sqlite: save run %s", result.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	var r model.RunResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, leads, sources, sources_failed FROM runs
		 ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		listLimit(filter), max(filter.Offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (RunRecord, error) {
	var r RunRecord
	if err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Leads, &r.Sources, &r.SourcesFailed); err != nil {
		return RunRecord{}, eris.Wrap(err, "store: scan run record")
	}
	return r, nil
}
