package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stockleads/internal/model"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"120.50", "120.5"},
		{"₹1,250.50", "1250.5"},
		{"Rs. 120", "120"},
		{"Rs.845", "845"},
		{"INR 2,345", "2345"},
		{"$12.75", "12.75"},
		{"120-125", "120"},
		{" 99 /- ", "99"},
		{"１２０", "120"}, // full-width digits
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParsePrice(tt.in)
			require.NotNil(t, got)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	for _, absent := range []string{"", "NA", "N/A", "-", "--", "none", "abc", "0", "0.00"} {
		assert.Nil(t, ParsePrice(absent), "input %q", absent)
	}
}

func TestExtractSymbol(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		company string
		want    string
		ok      bool
	}{
		{"plain", "TATASTEEL", "", "TATASTEEL", true},
		{"lower single token", "infy", "", "INFY", true},
		{"exchange prefix", "NSE: RELIANCE", "", "RELIANCE", true},
		{"bse prefix", "bse-sbin", "", "SBIN", true},
		{"parenthetical", "Tata Steel Ltd (TATASTEEL)", "", "TATASTEEL", true},
		{"series suffix", "ITC EQ", "", "ITC", true},
		{"ampersand", "M&M", "", "M&M", true},
		{"caps token in text", "Buy HDFCBANK now", "", "HDFCBANK", true},
		{"company fallback", "", "Tata Steel", "TATASTEEL", true},
		{"company drops ltd", "", "Bharat Electronics Ltd", "BHARATELECTRONICS", true},
		{"stopword only", "BUY", "", "", false},
		{"empty", "", "", "", false},
		{"digits", "12345", "", "", false},
		{"too long", "ABCDEFGHIJKLMNOPQRSTUVWXYZ", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSymbol(tt.symbol, tt.company)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsValidSymbol(t *testing.T) {
	assert.True(t, IsValidSymbol("BAJAJ-AUTO"))
	assert.True(t, IsValidSymbol("M&M"))
	assert.False(t, IsValidSymbol(""))
	assert.False(t, IsValidSymbol("TARGET"))
	assert.False(t, IsValidSymbol("1ABC"))
	assert.False(t, IsValidSymbol("abc"))
	assert.True(t, IsStopword("nifty"))
}

func TestKeywordTable_Classify(t *testing.T) {
	table := DefaultKeywordTable()
	tests := []struct {
		text string
		want model.RecommendationType
	}{
		{"Buy", model.RecBuy},
		{"STRONG BUY", model.RecBuy},
		{"Accumulate on dips", model.RecBuy},
		{"Outperform", model.RecBuy},
		{"Sell on rally", model.RecSell},
		{"Reduce", model.RecSell},
		{"bearish view", model.RecSell},
		{"Hold", model.RecHold},
		{"Neutral", model.RecHold},
		{"", model.RecUnknown},
		{"Buyback announced", model.RecUnknown},
		{"no opinion", model.RecUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Classify(tt.text))
		})
	}
}

func TestKeywordTable_LongestPhraseWins(t *testing.T) {
	table := NewKeywordTable(map[string][]string{
		"buy":  {"buy"},
		"sell": {"do not buy"},
	})
	assert.Equal(t, model.RecSell, table.Classify("We do not buy this"))
	assert.Equal(t, model.RecBuy, table.Classify("buy"))
	assert.Equal(t, []string{"do not buy", "buy"}, table.Phrases())

	phrase, rec := table.Find("Do  not   buy")
	assert.Equal(t, "do not buy", phrase)
	assert.Equal(t, model.RecSell, rec)
}

func TestKeywordTable_IgnoresUnknownTypes(t *testing.T) {
	table := NewKeywordTable(map[string][]string{"maybe": {"perhaps"}, "hold": {"hold", "HOLD", ""}})
	assert.Equal(t, []string{"hold"}, table.Phrases())
}

func newTestNormalizer() *Normalizer {
	n := New(nil)
	n.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("IST", 19800)) }
	return n
}

func TestNormalize_ScenarioA(t *testing.T) {
	n := newTestNormalizer()
	lead, err := n.Normalize(model.RawCandidate{
		SymbolText: "TATASTEEL",
		PriceTexts: []string{"120.50", "135.00"},
		RecText:    "Buy",
		ContextURL: "https://example.com/ideas",
	}, "axis_direct")
	require.NoError(t, err)

	assert.Equal(t, "TATASTEEL", lead.Symbol)
	require.NotNil(t, lead.EntryPrice)
	require.NotNil(t, lead.TargetPrice)
	assert.True(t, lead.EntryPrice.Equal(decimal.RequireFromString("120.50")))
	assert.True(t, lead.TargetPrice.Equal(decimal.RequireFromString("135.00")))
	require.NotNil(t, lead.GrowthPercent)
	g, _ := lead.GrowthPercent.Float64()
	assert.InDelta(t, 12.03, g, 0.01)
	assert.Equal(t, model.RecBuy, lead.RecommendationType)
	assert.Equal(t, "axis_direct", lead.Source)
	assert.Equal(t, "https://example.com/ideas", lead.URL)
	assert.Equal(t, time.UTC, lead.DateExtracted.Location())
	assert.Nil(t, lead.StopLoss)
}

func TestNormalize_LabeledPricesWin(t *testing.T) {
	n := newTestNormalizer()
	lead, err := n.Normalize(model.RawCandidate{
		SymbolText:   "INFY",
		EntryText:    "CMP ₹1,500",
		TargetText:   "1,650",
		StopLossText: "1,440",
		PriceTexts:   []string{"999"},
	}, "s")
	require.NoError(t, err)
	assert.Equal(t, "1500", lead.EntryPrice.String())
	assert.Equal(t, "1650", lead.TargetPrice.String())
	assert.Equal(t, "1440", lead.StopLoss.String())
}

func TestNormalize_UnlabeledFillGaps(t *testing.T) {
	n := newTestNormalizer()
	lead, err := n.Normalize(model.RawCandidate{
		SymbolText: "SBIN",
		TargetText: "900",
		PriceTexts: []string{"NA", "800", "760"},
	}, "s")
	require.NoError(t, err)
	assert.Equal(t, "800", lead.EntryPrice.String())
	assert.Equal(t, "900", lead.TargetPrice.String())
	assert.Equal(t, "760", lead.StopLoss.String())
}

func TestNormalize_InconsistentStopLossDropped(t *testing.T) {
	n := newTestNormalizer()
	lead, err := n.Normalize(model.RawCandidate{
		SymbolText: "SBIN",
		RecText:    "buy",
		PriceTexts: []string{"800", "900", "950"},
	}, "s")
	require.NoError(t, err)
	assert.Nil(t, lead.StopLoss)
	assert.NotNil(t, lead.TargetPrice)

	// A short call keeps its stop above target.
	sell, err := n.Normalize(model.RawCandidate{
		SymbolText: "SBIN",
		RecText:    "sell",
		PriceTexts: []string{"800", "720", "830"},
	}, "s")
	require.NoError(t, err)
	assert.Equal(t, "830", sell.StopLoss.String())
}

func TestNormalize_MissingPricesStillProducesLead(t *testing.T) {
	n := newTestNormalizer()
	lead, err := n.Normalize(model.RawCandidate{SymbolText: "WIPRO", RecText: "strong buy"}, "s")
	require.NoError(t, err)
	assert.Nil(t, lead.EntryPrice)
	assert.Nil(t, lead.TargetPrice)
	assert.Nil(t, lead.GrowthPercent)
	assert.Equal(t, model.RecBuy, lead.RecommendationType)
}

func TestNormalize_RejectsBadSymbol(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(model.RawCandidate{SymbolText: "TARGET", PriceTexts: []string{"100"}}, "s")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestNormalizeAllAndDedupe(t *testing.T) {
	n := newTestNormalizer()
	cands := []model.RawCandidate{
		{SymbolText: "TATASTEEL", PriceTexts: []string{"120.50", "135"}, RecText: "Buy", ContextURL: "first"},
		{SymbolText: "BUY"},
		{SymbolText: "NSE:TATASTEEL", PriceTexts: []string{"120.5", "135.00"}, ContextURL: "second"},
		{SymbolText: "TATASTEEL", PriceTexts: []string{"118", "135"}},
		{SymbolText: "INFY"},
	}

	leads := n.NormalizeAll(cands, "s")
	require.Len(t, leads, 4)

	deduped := Dedupe(leads)
	require.Len(t, deduped, 3)
	assert.Equal(t, "first", deduped[0].URL)
	assert.Equal(t, "118", deduped[1].EntryPrice.String())
	assert.Equal(t, "INFY", deduped[2].Symbol)

	// Idempotent.
	assert.Equal(t, deduped, Dedupe(deduped))
}
