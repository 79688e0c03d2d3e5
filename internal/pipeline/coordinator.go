package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/stockleads/internal/model"
)

// ErrNoSources is returned when a run is requested with no resolvable sources.
var ErrNoSources = eris.New("pipeline: no sources to run")

// Coordinator fans runners out over a bounded worker pool and merges their
// output. No per-source failure crosses this boundary.
type Coordinator struct {
	workers       int
	sourceTimeout time.Duration

	newID func() string
	now   func() time.Time
}

// NewCoordinator creates a Coordinator. workers must be at least 1; a
// non-positive sourceTimeout disables the per-source deadline.
func NewCoordinator(workers int, sourceTimeout time.Duration) (*Coordinator, error) {
	if workers < 1 {
		return nil, eris.Errorf("pipeline: workers must be >= 1, got %d", workers)
	}
	return &Coordinator{
		workers:       workers,
		sourceTimeout: sourceTimeout,
		newID:         uuid.NewString,
		now:           time.Now,
	}, nil
}

// Run executes every runner and returns the aggregated result. It fails only
// when runners is empty. Cancelling ctx aborts in-flight fetches; sources
// that had not finished are reported as TIMEOUT with failure "cancelled",
// and a source that overran its own deadline as TIMEOUT with "fetch_timeout".
func (c *Coordinator) Run(ctx context.Context, runners []Runner) (*model.RunResult, error) {
	if len(runners) == 0 {
		return nil, ErrNoSources
	}

	result := &model.RunResult{
		RunID:     c.newID(),
		StartedAt: c.now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: run starting",
		zap.Int("sources", len(runners)),
		zap.Int("workers", c.workers),
	)

	outputs := make([]SourceOutput, len(runners))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, r := range runners {
		g.Go(func() error {
			outputs[i] = c.runOne(ctx, r)
			return nil // source failures never abort siblings
		})
	}
	_ = g.Wait()

	result.Leads, result.Summary = Aggregate(outputs)
	result.FinishedAt = c.now().UTC()

	log.Info("pipeline: run complete",
		zap.Int("leads", result.Summary.Totals.Leads),
		zap.Int("sources_failed", result.Summary.Totals.SourcesFailed),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (c *Coordinator) runOne(ctx context.Context, r Runner) (out SourceOutput) {
	name := r.Name()
	if ctx.Err() != nil {
		return SourceOutput{Stats: cancelledStats(name)}
	}

	sctx := ctx
	if c.sourceTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.sourceTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("pipeline: source panicked",
				zap.String("source", name),
				zap.String("panic", fmt.Sprint(rec)),
			)
			out = SourceOutput{Stats: model.SourceStats{
				Source:  name,
				Status:  model.StatusHTTPError,
				Failure: model.FailurePanic,
			}}
		}
	}()

	leads, stats := r.Run(sctx)
	stats.Source = name

	// A source cut short keeps whatever leads it already produced.
	switch {
	case ctx.Err() != nil:
		stats.Status = model.StatusTimeout
		stats.Failure = model.FailureCancelled
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		stats.Status = model.StatusTimeout
		stats.Failure = model.FailureTimeout
	}
	return SourceOutput{Leads: leads, Stats: stats}
}

func cancelledStats(name string) model.SourceStats {
	return model.SourceStats{
		Source:  name,
		Status:  model.StatusTimeout,
		Failure: model.FailureCancelled,
	}
}
