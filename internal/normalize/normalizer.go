// Package normalize turns raw text candidates into typed stock leads.
package normalize

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/model"
)

// ErrRejected marks a candidate whose symbol fails the shape check.
var ErrRejected = eris.New("normalize: candidate rejected")

// Normalizer converts RawCandidates to StockLeads. It is permissive: only
// an unusable symbol rejects a candidate, missing prices lower confidence
// later instead.
type Normalizer struct {
	table *KeywordTable
	now   func() time.Time
}

// New creates a Normalizer. A nil table uses DefaultKeywordTable.
func New(table *KeywordTable) *Normalizer {
	if table == nil {
		table = DefaultKeywordTable()
	}
	return &Normalizer{table: table, now: time.Now}
}

// Normalize converts one candidate. It returns ErrRejected when no valid
// symbol can be derived.
func (n *Normalizer) Normalize(c model.RawCandidate, source string) (*model.StockLead, error) {
	sym, ok := ExtractSymbol(c.SymbolText, c.CompanyText)
	if !ok {
		return nil, eris.Wrapf(ErrRejected, "symbol %q", c.SymbolText)
	}

	lead := &model.StockLead{
		Symbol:             sym,
		CompanyName:        CleanText(c.CompanyText),
		RecommendationType: n.table.Classify(c.RecText),
		Source:             source,
		URL:                c.ContextURL,
		DateExtracted:      n.now().UTC(),
	}

	unlabeled := make([]*decimal.Decimal, 0, len(c.PriceTexts))
	for _, p := range c.PriceTexts {
		if d := ParsePrice(p); d != nil {
			unlabeled = append(unlabeled, d)
		}
	}
	next := func() *decimal.Decimal {
		if len(unlabeled) == 0 {
			return nil
		}
		d := unlabeled[0]
		unlabeled = unlabeled[1:]
		return d
	}
	pick := func(labeled string) *decimal.Decimal {
		if d := ParsePrice(labeled); d != nil {
			return d
		}
		return next()
	}

	lead.EntryPrice = pick(c.EntryText)
	lead.TargetPrice = pick(c.TargetText)
	lead.StopLoss = pick(c.StopLossText)

	// For long calls a stop loss at or above target is inconsistent.
	if lead.StopLoss != nil && lead.TargetPrice != nil && lead.RecommendationType != model.RecSell &&
		lead.StopLoss.GreaterThanOrEqual(*lead.TargetPrice) {
		zap.L().Debug("normalize: dropping inconsistent stop loss",
			zap.String("symbol", sym),
			zap.String("stop_loss", lead.StopLoss.String()),
			zap.String("target", lead.TargetPrice.String()),
		)
		lead.StopLoss = nil
	}

	lead.RecomputeGrowth()
	return lead, nil
}

// NormalizeAll normalizes candidates in order, logging rejections at debug.
// It returns the surviving leads before deduplication.
func (n *Normalizer) NormalizeAll(cands []model.RawCandidate, source string) []model.StockLead {
	out := make([]model.StockLead, 0, len(cands))
	for _, c := range cands {
		lead, err := n.Normalize(c, source)
		if err != nil {
			zap.L().Debug("normalize: candidate rejected",
				zap.String("source", source),
				zap.String("symbol_text", c.SymbolText),
				zap.String("strategy", c.Strategy),
				zap.Error(err),
			)
			continue
		}
		out = append(out, *lead)
	}
	return out
}

// Dedupe collapses leads with identical (symbol, entry, target), keeping the
// first. Applying it twice yields the same result as applying it once.
func Dedupe(leads []model.StockLead) []model.StockLead {
	seen := make(map[string]bool, len(leads))
	out := make([]model.StockLead, 0, len(leads))
	for _, l := range leads {
		key := l.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}
