// Package store persists fetched pages and finished runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultTTL is used when the configured page TTL is not positive.
const DefaultTTL = 30 * time.Minute

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RunRecord is the listing view of a stored run.
type RunRecord struct {
	ID            string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Leads         int       `json:"leads"`
	Sources       int       `json:"sources"`
	SourcesFailed int       `json:"sources_failed"`
}

func recordOf(r *model.RunResult) RunRecord {
	return RunRecord{
		ID:            r.RunID,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Leads:         r.Summary.Totals.Leads,
		Sources:       r.Summary.Totals.Sources,
		SourcesFailed: r.Summary.Totals.SourcesFailed,
	}
}

// Store is the persistence interface. Its page methods satisfy
// fetcher.PageCache.
type Store interface {
	// Page cache
	GetPage(ctx context.Context, url string) (string, bool, error)
	SetPage(ctx context.Context, url, content string) error
	DeleteExpired(ctx context.Context) (int, error)

	// Runs
	SaveRun(ctx context.Context, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.RunResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver and migrates it. An empty
// driver returns a nil Store and no error.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute

	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "stockleads.db"
		}
		st, err = NewSQLite(dsn, ttl)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DSN, ttl, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}
