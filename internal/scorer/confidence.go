package scorer

import (
	"math"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
)

// Band is an inclusive growth-percent range.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether g lies within the band.
func (b Band) Contains(g float64) bool {
	return g >= b.Min && g <= b.Max
}

// Scorer is the additive confidence scorer. A nil band disables the growth
// bonus, making scores independent of growth_percent.
type Scorer struct {
	cfg  config.ScoreConfig
	band *Band
}

// New creates a Scorer after validating cfg.
func New(cfg config.ScoreConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &Scorer{cfg: cfg}
	if cfg.GrowthBand.Enabled {
		s.band = &Band{Min: cfg.GrowthBand.Min, Max: cfg.GrowthBand.Max}
	}
	return s, nil
}

// Band returns the active growth band, or nil when disabled.
func (s *Scorer) Band() *Band {
	return s.band
}

// Components returns the per-component contributions for lead, before the
// no-price ceiling and clamping are applied.
func (s *Scorer) Components(lead *model.StockLead) map[string]float64 {
	comp := make(map[string]float64, 6)
	if lead.Symbol != "" {
		comp["symbol"] = s.cfg.Symbol
	}
	if validPrice(lead.EntryPrice) {
		comp["entry_price"] = s.cfg.Price
	}
	if validPrice(lead.TargetPrice) {
		comp["target_price"] = s.cfg.Price
	}
	if lead.RecommendationType != "" && lead.RecommendationType != model.RecUnknown {
		comp["recommendation"] = s.cfg.Recommendation
	}
	if resolvableURL(lead.URL) {
		comp["url"] = s.cfg.URL
	}
	if s.band != nil && lead.GrowthPercent != nil {
		g, _ := lead.GrowthPercent.Float64()
		if s.band.Contains(g) {
			comp["growth"] = s.cfg.Growth
		}
	}
	return comp
}

// Score returns the confidence of lead in [0, 1]. A lead with neither price
// never scores above the configured ceiling.
func (s *Scorer) Score(lead *model.StockLead) float64 {
	var total float64
	for _, v := range s.Components(lead) {
		total += v
	}
	if lead.EntryPrice == nil && lead.TargetPrice == nil {
		total = math.Min(total, s.cfg.NoPriceCeiling)
	}
	return round(clamp(total, 0, 1))
}

// ScoreAll sets Confidence on every lead in place.
func (s *Scorer) ScoreAll(leads []model.StockLead) {
	for i := range leads {
		leads[i].Confidence = s.Score(&leads[i])
	}
}

func validPrice(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}

func resolvableURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round trims float noise from summed weights (0.1+0.2 and the like).
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
