package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestRecommendationTypeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rec  RecommendationType
		want string
	}{
		{RecBuy, "BUY"},
		{RecSell, "SELL"},
		{RecHold, "HOLD"},
		{RecUnknown, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.rec))
			assert.Equal(t, tt.rec, ParseRecommendationType(tt.want))
		})
	}

	assert.Equal(t, RecBuy, ParseRecommendationType(" buy "))
	assert.Equal(t, RecUnknown, ParseRecommendationType("maybe"))
}

func TestGrowthPercent(t *testing.T) {
	t.Parallel()

	g := GrowthPercent(dec("120.50"), dec("135.00"))
	require.NotNil(t, g)
	assert.Equal(t, "12.03", g.StringFixed(2))

	neg := GrowthPercent(dec("200"), dec("180"))
	require.NotNil(t, neg)
	assert.True(t, neg.Equal(decimal.NewFromInt(-10)))

	assert.Nil(t, GrowthPercent(nil, dec("10")))
	assert.Nil(t, GrowthPercent(dec("10"), nil))
	assert.Nil(t, GrowthPercent(dec("0"), dec("10")))
}

func TestRecomputeGrowthIgnoresPriorValue(t *testing.T) {
	t.Parallel()

	lead := StockLead{EntryPrice: dec("100"), TargetPrice: dec("110"), GrowthPercent: dec("99")}
	lead.RecomputeGrowth()
	require.NotNil(t, lead.GrowthPercent)
	assert.True(t, lead.GrowthPercent.Equal(decimal.NewFromInt(10)))

	lead.TargetPrice = nil
	lead.RecomputeGrowth()
	assert.Nil(t, lead.GrowthPercent)
}

func TestDedupeKey(t *testing.T) {
	t.Parallel()

	a := StockLead{Symbol: "INFY", EntryPrice: dec("1500.0"), TargetPrice: dec("1650")}
	b := StockLead{Symbol: "INFY", EntryPrice: dec("1500"), TargetPrice: dec("1650.00")}
	c := StockLead{Symbol: "INFY", EntryPrice: dec("1500")}
	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	assert.NotEqual(t, a.DedupeKey(), c.DedupeKey())
}

func TestStockLeadJSONContract(t *testing.T) {
	t.Parallel()

	lead := StockLead{
		Symbol:             "TATASTEEL",
		CompanyName:        "Tata Steel",
		EntryPrice:         dec("120.50"),
		TargetPrice:        dec("135"),
		RecommendationType: RecBuy,
		Source:             "axis_direct",
		URL:                "https://example.com/ideas",
		DateExtracted:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Confidence:         0.9,
	}
	lead.RecomputeGrowth()

	data, err := json.Marshal(lead)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "TATASTEEL", got["symbol"])
	assert.InDelta(t, 120.5, got["entry_price"], 0.0001)
	assert.InDelta(t, 135.0, got["target_price"], 0.0001)
	assert.InDelta(t, 12.03, got["growth_percent"], 0.0001)
	assert.Nil(t, got["stop_loss"])
	assert.Contains(t, got, "stop_loss")
	assert.Equal(t, "BUY", got["recommendation_type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["date_extracted"])
	assert.InDelta(t, 0.9, got["confidence"], 0.0001)
	assert.Contains(t, string(data), `"entry_price":120.5`)

	var back StockLead
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.EntryPrice)
	assert.True(t, back.EntryPrice.Equal(*lead.EntryPrice))
	assert.Nil(t, back.StopLoss)
}

func TestStockLeadJSON_LeavesDecimalDefaultAlone(t *testing.T) {
	d := decimal.RequireFromString("7.5")
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"7.5"`, string(data))

	data, err = json.Marshal(&StockLead{Symbol: "SBIN", EntryPrice: &d})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entry_price":7.5`)
}
