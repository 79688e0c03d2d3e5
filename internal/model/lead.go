package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecommendationType is the normalized analyst call.
type RecommendationType string

const (
	RecBuy     RecommendationType = "BUY"
	RecSell    RecommendationType = "SELL"
	RecHold    RecommendationType = "HOLD"
	RecUnknown RecommendationType = "UNKNOWN"
)

// ParseRecommendationType maps a type name in any case to a
// RecommendationType. Unrecognized names map to RecUnknown.
func ParseRecommendationType(s string) RecommendationType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return RecBuy
	case "SELL":
		return RecSell
	case "HOLD":
		return RecHold
	default:
		return RecUnknown
	}
}

// StockLead is one normalized stock recommendation. Field names and types are
// a stable output contract: add optional fields, never rename.
type StockLead struct {
	Symbol             string             `json:"symbol"`
	CompanyName        string             `json:"company_name"`
	EntryPrice         *decimal.Decimal   `json:"entry_price"`
	TargetPrice        *decimal.Decimal   `json:"target_price"`
	StopLoss           *decimal.Decimal   `json:"stop_loss"`
	GrowthPercent      *decimal.Decimal   `json:"growth_percent"`
	RecommendationType RecommendationType `json:"recommendation_type"`
	Source             string             `json:"source"`
	URL                string             `json:"url"`
	DateExtracted      time.Time          `json:"date_extracted"`
	Confidence         float64            `json:"confidence"`
}

// leadDocument is the wire form of a StockLead.
type leadDocument struct {
	Symbol             string             `json:"symbol"`
	CompanyName        string             `json:"company_name"`
	EntryPrice         *json.Number       `json:"entry_price"`
	TargetPrice        *json.Number       `json:"target_price"`
	StopLoss           *json.Number       `json:"stop_loss"`
	GrowthPercent      *json.Number       `json:"growth_percent"`
	RecommendationType RecommendationType `json:"recommendation_type"`
	Source             string             `json:"source"`
	URL                string             `json:"url"`
	DateExtracted      time.Time          `json:"date_extracted"`
	Confidence         float64            `json:"confidence"`
}

// MarshalJSON writes decimals as JSON numbers and absent ones as null.
// Decoding uses the default path; decimal accepts bare numbers.
func (l StockLead) MarshalJSON() ([]byte, error) {
	return json.Marshal(leadDocument{
		Symbol:             l.Symbol,
		CompanyName:        l.CompanyName,
		EntryPrice:         jsonNumber(l.EntryPrice),
		TargetPrice:        jsonNumber(l.TargetPrice),
		StopLoss:           jsonNumber(l.StopLoss),
		GrowthPercent:      jsonNumber(l.GrowthPercent),
		RecommendationType: l.RecommendationType,
		Source:             l.Source,
		URL:                l.URL,
		DateExtracted:      l.DateExtracted,
		Confidence:         l.Confidence,
	})
}

func jsonNumber(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := json.Number(d.String())
	return &n
}

// GrowthPercent returns (target-entry)/entry*100 rounded to two places, or
// nil unless both prices are present and entry is non-zero.
func GrowthPercent(entry, target *decimal.Decimal) *decimal.Decimal {
	if entry == nil || target == nil || entry.IsZero() {
		return nil
	}
	g := target.Sub(*entry).Div(*entry).Mul(decimal.NewFromInt(100)).Round(2)
	return &g
}

// RecomputeGrowth derives GrowthPercent from the lead's prices, discarding
// any previous value.
func (l *StockLead) RecomputeGrowth() {
	l.GrowthPercent = GrowthPercent(l.EntryPrice, l.TargetPrice)
}

// HasPrices reports whether the lead carries both entry and target prices.
func (l *StockLead) HasPrices() bool {
	return l.EntryPrice != nil && l.TargetPrice != nil
}

// DedupeKey identifies a lead within one source.
func (l *StockLead) DedupeKey() string {
	return l.Symbol + "|" + decString(l.EntryPrice) + "|" + decString(l.TargetPrice)
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// RawCandidate holds untyped text fragments found by an extraction strategy.
// Nothing here is validated.
type RawCandidate struct {
	SymbolText   string   `json:"symbol_text"`
	CompanyText  string   `json:"company_text"`
	PriceTexts   []string `json:"price_texts"`
	EntryText    string   `json:"entry_text,omitempty"`
	TargetText   string   `json:"target_text,omitempty"`
	StopLossText string   `json:"stop_loss_text,omitempty"`
	RecText      string   `json:"rec_text"`
	ContextURL   string   `json:"context_url"`
	Strategy     string   `json:"strategy,omitempty"`
}
