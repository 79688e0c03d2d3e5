// Package pipeline runs sources end to end: fetch, extract, normalize and
// score, then merges every source into one ordered result.
package pipeline

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/extract"
	"github.com/sells-group/stockleads/internal/fetcher"
	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/normalize"
	"github.com/sells-group/stockleads/internal/scorer"
)

// Fetcher is the fetch capability a SourceRunner depends on.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) *model.FetchResult
}

// Runner is one source's pipeline. Run never fails; problems are reported
// in the returned stats.
type Runner interface {
	Name() string
	Run(ctx context.Context) ([]model.StockLead, model.SourceStats)
}

// SourceRunner binds a fetcher, an extraction chain, a normalizer and a
// scorer to one SourceProfile. It owns its chain and normalizer.
type SourceRunner struct {
	profile    model.SourceProfile
	fetcher    Fetcher
	chain      *extract.Chain
	normalizer *normalize.Normalizer
	scorer     *scorer.Scorer
}

// NewSourceRunner creates a SourceRunner.
func NewSourceRunner(profile model.SourceProfile, f Fetcher, chain *extract.Chain, n *normalize.Normalizer, s *scorer.Scorer) *SourceRunner {
	return &SourceRunner{
		profile:    profile,
		fetcher:    f,
		chain:      chain,
		normalizer: n,
		scorer:     s,
	}
}

// Name returns the source identifier.
func (r *SourceRunner) Name() string {
	return r.profile.Name
}

// Run fetches every URL of the source and returns its leads sorted by
// descending confidence, plus the source's stats.
func (r *SourceRunner) Run(ctx context.Context) ([]model.StockLead, model.SourceStats) {
	start := time.Now()
	log := zap.L().With(zap.String("source", r.profile.Name))
	stats := model.SourceStats{Source: r.profile.Name}

	if r.profile.WarmupURL != "" {
		res := r.fetcher.Fetch(ctx, r.request(r.profile.WarmupURL))
		stats.Attempts += res.Attempts
		if !res.OK() {
			log.Debug("pipeline: warmup fetch failed, continuing",
				zap.String("url", r.profile.WarmupURL),
				zap.String("status", string(res.Status)),
			)
		}
	}

	var (
		normalized []model.StockLead
		strategies []string
		lastStatus model.FetchStatus
	)
	for _, u := range r.profile.URLs {
		if ctx.Err() != nil {
			lastStatus = model.StatusTimeout
			break
		}
		res := r.fetcher.Fetch(ctx, r.request(u))
		stats.Attempts += res.Attempts
		if !res.OK() {
			lastStatus = res.Status
			log.Warn("pipeline: fetch failed",
				zap.String("url", u),
				zap.String("status", string(res.Status)),
				zap.Int("attempts", res.Attempts),
				zap.String("reason", res.BlockReason),
				zap.String("error", res.Err),
			)
			continue
		}
		stats.Successes++

		cr := r.chain.Run(res.Content, u)
		stats.CandidatesFound += len(cr.Candidates)
		if cr.Strategy != "" && !slices.Contains(strategies, cr.Strategy) {
			strategies = append(strategies, cr.Strategy)
		}
		normalized = append(normalized, r.normalizer.NormalizeAll(cr.Candidates, r.profile.Name)...)
	}

	stats.CandidatesNormalized = len(normalized)
	stats.Strategy = strings.Join(strategies, ",")

	leads := normalize.Dedupe(normalized)
	r.scorer.ScoreAll(leads)
	SortByConfidence(leads)
	stats.Leads = len(leads)

	switch {
	case stats.Successes == 0:
		if lastStatus == "" {
			lastStatus = model.StatusHTTPError
		}
		stats.Status = lastStatus
		stats.Failure = model.FailureForStatus(lastStatus)
	case stats.CandidatesFound == 0:
		stats.Status = model.StatusOK
		stats.Failure = model.FailureNoCandidates
	case stats.CandidatesNormalized == 0:
		stats.Status = model.StatusOK
		stats.Failure = model.FailureNoValidLeads
	default:
		stats.Status = model.StatusOK
	}
	stats.ElapsedMS = time.Since(start).Milliseconds()

	log.Info("pipeline: source finished",
		zap.String("status", string(stats.Status)),
		zap.String("failure", string(stats.Failure)),
		zap.String("strategy", stats.Strategy),
		zap.Int("candidates", stats.CandidatesFound),
		zap.Int("leads", stats.Leads),
		zap.Int64("elapsed_ms", stats.ElapsedMS),
	)
	return leads, stats
}

func (r *SourceRunner) request(u string) fetcher.Request {
	p := r.profile
	return fetcher.Request{
		URL:        u,
		Mode:       p.Mode,
		Headers:    p.Headers,
		Wait:       p.Wait,
		MinDelay:   time.Duration(p.MinDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(p.MaxDelayMS) * time.Millisecond,
		MaxRetries: p.MaxRetries,
		CacheBust:  p.CacheBust,
	}
}

// SortByConfidence orders leads by descending confidence, keeping the
// original order among equals.
func SortByConfidence(leads []model.StockLead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].Confidence > leads[j].Confidence
	})
}
