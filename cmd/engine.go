package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/fetcher"
	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/monitoring"
	"github.com/sells-group/stockleads/internal/normalize"
	"github.com/sells-group/stockleads/internal/pipeline"
	"github.com/sells-group/stockleads/internal/registry"
	"github.com/sells-group/stockleads/internal/scorer"
	"github.com/sells-group/stockleads/internal/store"
)

// engine holds everything a run needs. It is built once per command and
// is safe to use for concurrent runs.
type engine struct {
	Catalog     *registry.Catalog
	Store       store.Store // nil when caching is disabled
	Scorer      *scorer.Scorer
	Coordinator *pipeline.Coordinator

	deps      pipeline.Deps
	scoreHash string
	renderer  *fetcher.ChromeRenderer
	alerter   *monitoring.Alerter
}

// initEngine loads the catalog, opens the optional store and wires the
// fetch client, scorer and coordinator. Callers should defer Close.
func initEngine(ctx context.Context, c *config.Config) (*engine, error) {
	catalog, err := registry.LoadCatalog(c.Sources.Catalog)
	if err != nil {
		return nil, err
	}

	sc, err := scorer.New(c.Score)
	if err != nil {
		return nil, err
	}

	coord, err := pipeline.NewCoordinator(c.Run.Workers, time.Duration(c.Run.SourceTimeoutSecs)*time.Second)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Cache)
	if err != nil {
		return nil, err
	}

	opts := fetcher.OptionsFromConfig(c)
	opts.Identities = fetcher.NewIdentityPool(c.Fetch.UserAgents, uint64(time.Now().UnixNano()))
	opts.Throttle = fetcher.NewHostThrottle(time.Duration(c.Fetch.HostIntervalMS) * time.Millisecond)
	if st != nil {
		opts.Cache = st
	}

	e := &engine{
		Catalog:     catalog,
		Store:       st,
		Scorer:      sc,
		Coordinator: coord,
		scoreHash:   scorer.ConfigHash(c.Score),
		alerter:     monitoring.NewAlerter(c.Monitoring),
	}
	if c.Render.Enabled {
		e.renderer = fetcher.NewChromeRenderer(c.Render)
		opts.Renderer = e.renderer
	}

	keywords := normalize.DefaultKeywordTable()
	if len(c.Recommendation.Keywords) > 0 {
		keywords = normalize.NewKeywordTable(c.Recommendation.Keywords)
	}
	e.deps = pipeline.Deps{
		Fetcher:  fetcher.NewClient(opts),
		Keywords: keywords,
		Scorer:   sc,
	}

	zap.L().Info("engine: initialized",
		zap.Int("sources", len(catalog.Sources)),
		zap.Bool("render", c.Render.Enabled),
		zap.String("cache", c.Cache.Driver),
		zap.String("score_config", e.scoreHash),
	)
	return e, nil
}

// Run resolves names against the catalog and runs the selected sources.
// Unknown names are logged and skipped; a selection that resolves to no
// source fails with pipeline.ErrNoSources.
func (e *engine) Run(ctx context.Context, names []string) (*model.RunResult, error) {
	profiles, unknown := e.Catalog.Select(names)
	for _, n := range unknown {
		zap.L().Warn("engine: unknown source, skipping", zap.String("source", n))
	}
	if len(profiles) == 0 {
		return nil, pipeline.ErrNoSources
	}

	runners, err := pipeline.NewRunners(profiles, e.deps)
	if err != nil {
		return nil, err
	}

	result, err := e.Coordinator.Run(ctx, runners)
	if err != nil {
		return nil, err
	}
	result.ScoreConfigHash = e.scoreHash

	// A cancelled run still has a partial result worth keeping.
	bg := context.WithoutCancel(ctx)
	if e.Store != nil {
		if err := e.Store.SaveRun(bg, result); err != nil {
			zap.L().Warn("engine: save run failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	e.alerter.Notify(bg, result)
	return result, nil
}

// Close releases the browser and the store.
func (e *engine) Close() {
	if e.renderer != nil {
		e.renderer.Close()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("engine: close store", zap.Error(err))
		}
	}
}
