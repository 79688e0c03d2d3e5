package pipeline

import (
	"github.com/sells-group/stockleads/internal/model"
)

// SourceOutput is what one runner produced.
type SourceOutput struct {
	Leads []model.StockLead
	Stats model.SourceStats
}

// Aggregate merges per-source outputs given in configured source order.
// Leads are grouped by source in that order and sorted by descending
// confidence within each source, so the result depends only on the inputs
// and never on completion order.
func Aggregate(outputs []SourceOutput) ([]model.StockLead, model.RunSummary) {
	total := 0
	for _, o := range outputs {
		total += len(o.Leads)
	}

	leads := make([]model.StockLead, 0, total)
	summary := model.RunSummary{Sources: make([]model.SourceStats, 0, len(outputs))}
	for _, o := range outputs {
		group := append([]model.StockLead(nil), o.Leads...)
		SortByConfidence(group)
		leads = append(leads, group...)

		summary.Sources = append(summary.Sources, o.Stats)
		summary.Totals.Add(o.Stats)
	}
	return leads, summary
}
