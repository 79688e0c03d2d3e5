// Package scorer assigns completeness-based confidence scores to stock leads.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stockleads/internal/config"
)

// DefaultScoreConfig returns a config.ScoreConfig with the standard weights.
// The weights sum to 1.
func DefaultScoreConfig() config.ScoreConfig {
	return config.ScoreConfig{
		Symbol:         0.1,
		Price:          0.2, // per price, entry and target
		Recommendation: 0.2,
		URL:            0.1,
		Growth:         0.2,
		NoPriceCeiling: 0.3,
		GrowthBand: config.GrowthBandConfig{
			Enabled: true,
			Min:     7,
			Max:     15,
		},
	}
}

// MaxScore returns the raw score of a lead with every component present,
// before clamping.
func MaxScore(c config.ScoreConfig) float64 {
	total := c.Symbol + 2*c.Price + c.Recommendation + c.URL
	if c.GrowthBand.Enabled {
		total += c.Growth
	}
	return total
}

// ValidateConfig checks that a ScoreConfig is internally consistent.
func ValidateConfig(c config.ScoreConfig) error {
	var errs []string

	weights := []struct {
		name string
		w    float64
	}{
		{"symbol", c.Symbol},
		{"price", c.Price},
		{"recommendation", c.Recommendation},
		{"url", c.URL},
		{"growth", c.Growth},
	}
	for _, w := range weights {
		if w.w < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", w.name))
		}
	}
	if MaxScore(c) <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if c.NoPriceCeiling < 0 || c.NoPriceCeiling > 1 {
		errs = append(errs, "no_price_ceiling must be between 0 and 1")
	}
	if c.GrowthBand.Enabled && c.GrowthBand.Min > c.GrowthBand.Max {
		errs = append(errs, "growth_band.min must be <= growth_band.max")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a short SHA-256 hash of the scoring config so runs
// scored under different weights can be told apart.
func ConfigHash(c config.ScoreConfig) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}
