package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stockleads/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRun(id string, started time.Time, leads int) *model.RunResult {
	r := &model.RunResult{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Leads:      []model.StockLead{},
	}
	r.Summary.Totals = model.RunTotals{Sources: 3, SourcesFailed: 1, Leads: leads}
	for i := 0; i < leads; i++ {
		r.Leads = append(r.Leads, model.StockLead{Symbol: "INFY", Source: "axis_direct", Confidence: 0.5})
	}
	return r
}

func TestSQLite_Page_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetPage(ctx, "https://example.com/ideas", "<html>ideas</html>"))

	got, ok, err := st.GetPage(ctx, "https://example.com/ideas")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<html>ideas</html>", got)
}

func TestSQLite_Page_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, ok, err := st.GetPage(context.Background(), "https://example.com/none")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestSQLite_Page_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetPage(ctx, "https://example.com/a", "original"))
	require.NoError(t, st.SetPage(ctx, "https://example.com/a", "updated"))

	got, ok, err := st.GetPage(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "updated", got)
}

func TestSQLite_Page_ExpiryAndPrune(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	require.NoError(t, st.SetPage(ctx, "https://example.com/old", "old"))
	st.now = func() time.Time { return base.Add(30 * time.Minute) }
	require.NoError(t, st.SetPage(ctx, "https://example.com/fresh", "fresh"))

	// One hour TTL: the first page expires, the second does not.
	st.now = func() time.Time { return base.Add(61 * time.Minute) }

	_, ok, err := st.GetPage(ctx, "https://example.com/old")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = st.GetPage(ctx, "https://example.com/fresh")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_Runs_SaveGetList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveRun(ctx, sampleRun("run-1", t0, 2)))
	require.NoError(t, st.SaveRun(ctx, sampleRun("run-2", t0.Add(time.Hour), 0)))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Leads, 2)
	assert.Equal(t, "INFY", got.Leads[0].Symbol)
	assert.True(t, got.StartedAt.Equal(t0))

	list, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].ID)
	assert.Equal(t, "run-1", list[1].ID)
	assert.Equal(t, 2, list[1].Leads)
	assert.Equal(t, 1, list[1].SourcesFailed)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-1", limited[0].ID)
}

func TestSQLite_Runs_SaveIsUpsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveRun(ctx, sampleRun("run-1", t0, 1)))
	require.NoError(t, st.SaveRun(ctx, sampleRun("run-1", t0, 3)))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got.Leads, 3)
}

func TestSQLite_Runs_Errors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, st.SaveRun(ctx, &model.RunResult{}))
	assert.Error(t, st.SaveRun(ctx, nil))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, configFor("", ""))
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(ctx, configFor("mysql", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")

	st, err = Open(ctx, configFor("sqlite", filepath.Join(t.TempDir(), "cache.db")))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.SetPage(ctx, "https://example.com/", "x"))
	_, ok, err := st.GetPage(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, ok)
}
