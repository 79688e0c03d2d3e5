package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/model"
)

// StrategyReport records what one strategy did during a chain run.
type StrategyReport struct {
	Strategy   string `json:"strategy"`
	Candidates int    `json:"candidates"`
	Panicked   bool   `json:"panicked,omitempty"`
}

// ChainResult is the output of one chain run over one page.
type ChainResult struct {
	Candidates []model.RawCandidate
	// Strategy names the strategies that contributed candidates, joined
	// by "+", or is empty when nothing was found.
	Strategy string
	Reports  []StrategyReport
}

// Chain runs strategies in order and stops at the first one producing a
// candidate. With alwaysFallback set, generic fallback strategies still run
// after an earlier success and their candidates are appended.
type Chain struct {
	strategies     []Strategy
	alwaysFallback bool
}

// NewChain builds a chain for kinds. Empty kinds yields DefaultKinds.
func NewChain(kinds []Kind, alwaysFallback bool, opts Options) (*Chain, error) {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	strategies := make([]Strategy, 0, len(kinds))
	for _, k := range kinds {
		s, err := New(k, opts)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return NewChainOf(alwaysFallback, strategies...), nil
}

// NewChainOf builds a chain from explicit strategies.
func NewChainOf(alwaysFallback bool, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, alwaysFallback: alwaysFallback}
}

// Names returns the strategy names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run extracts candidates from content. It never fails: a strategy that
// finds nothing or panics contributes zero candidates.
func (c *Chain) Run(content, pageURL string) ChainResult {
	var (
		res  ChainResult
		used []string
	)
	for _, s := range c.strategies {
		if len(res.Candidates) > 0 && !(c.alwaysFallback && s.Name() == string(KindGenericFallback)) {
			continue
		}
		cands, panicked := safeExtract(s, content, pageURL)
		res.Reports = append(res.Reports, StrategyReport{
			Strategy:   s.Name(),
			Candidates: len(cands),
			Panicked:   panicked,
		})
		zap.L().Debug("extract: strategy finished",
			zap.String("strategy", s.Name()),
			zap.String("url", pageURL),
			zap.Int("candidates", len(cands)),
		)
		if len(cands) > 0 {
			res.Candidates = append(res.Candidates, cands...)
			used = append(used, s.Name())
		}
	}
	res.Strategy = strings.Join(used, "+")
	return res
}
