package report

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stockleads/internal/model"
)

var leadColumns = []string{
	"symbol", "company_name", "entry_price", "target_price", "stop_loss",
	"growth_percent", "recommendation_type", "source", "url",
	"date_extracted", "confidence",
}

func leadRow(l model.StockLead) []string {
	return []string{
		l.Symbol,
		l.CompanyName,
		decimalText(l.EntryPrice),
		decimalText(l.TargetPrice),
		decimalText(l.StopLoss),
		decimalText(l.GrowthPercent),
		string(l.RecommendationType),
		l.Source,
		l.URL,
		l.DateExtracted.UTC().Format(time.RFC3339),
		confidenceText(l.Confidence),
	}
}

// WriteCSV writes one row per lead under a header row.
func WriteCSV(w io.Writer, leads []model.StockLead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(leadColumns); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, l := range leads {
		if err := cw.Write(leadRow(l)); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}
