package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/stockleads/internal/extract"
	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/normalize"
	"github.com/sells-group/stockleads/internal/scorer"
)

// Deps are shared by every runner built by NewRunners.
type Deps struct {
	Fetcher  Fetcher
	Keywords *normalize.KeywordTable
	Scorer   *scorer.Scorer
}

// NewRunners builds one SourceRunner per profile, each with its own
// extraction chain and normalizer.
func NewRunners(profiles []model.SourceProfile, deps Deps) ([]Runner, error) {
	if deps.Fetcher == nil {
		return nil, eris.New("pipeline: fetcher is required")
	}
	if deps.Scorer == nil {
		return nil, eris.New("pipeline: scorer is required")
	}
	if deps.Keywords == nil {
		deps.Keywords = normalize.DefaultKeywordTable()
	}

	runners := make([]Runner, 0, len(profiles))
	for _, p := range profiles {
		kinds, err := extract.ParseKinds(p.Chain)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: source %s", p.Name)
		}
		chain, err := extract.NewChain(kinds, p.AlwaysFallback, extract.Options{Keywords: deps.Keywords})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: source %s", p.Name)
		}
		runners = append(runners, NewSourceRunner(p, deps.Fetcher, chain, normalize.New(deps.Keywords), deps.Scorer))
	}
	return runners, nil
}
