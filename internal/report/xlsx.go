package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/stockleads/internal/model"
)

var summaryColumns = []string{
	"source", "status", "failure", "strategy", "attempts", "successes",
	"candidates_found", "candidates_normalized", "leads", "elapsed_ms",
}

// WriteXLSX writes a workbook with a Leads sheet, a Quality sheet when
// opts.MinConfidence is set, and a Summary sheet.
func WriteXLSX(w io.Writer, r *model.RunResult, opts Options) error {
	f := xlsx.NewFile()

	if err := addLeadSheet(f, "Leads", r.Leads); err != nil {
		return err
	}
	if opts.MinConfidence > 0 {
		if err := addLeadSheet(f, "Quality", QualityLeads(r.Leads, opts.MinConfidence)); err != nil {
			return err
		}
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addStrings(summary.AddRow(), summaryColumns...)
	for _, s := range r.Summary.Sources {
		row := summary.AddRow()
		addStrings(row, s.Source, string(s.Status), string(s.Failure), s.Strategy)
		addInts(row, s.Attempts, s.Successes, s.CandidatesFound, s.CandidatesNormalized, s.Leads)
		row.AddCell().SetInt64(s.ElapsedMS)
	}
	t := r.Summary.Totals
	row := summary.AddRow()
	addStrings(row, "TOTAL", "", "", "")
	addInts(row, t.Attempts, t.Successes, t.CandidatesFound, t.CandidatesNormalized, t.Leads)

	return eris.Wrap(f.Write(w), "report: write xlsx")
}

func addLeadSheet(f *xlsx.File, name string, leads []model.StockLead) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add %s sheet", name)
	}
	addStrings(sheet.AddRow(), leadColumns...)
	for _, l := range leads {
		row := sheet.AddRow()
		addStrings(row, l.Symbol, l.CompanyName)
		addDecimal(row, l.EntryPrice)
		addDecimal(row, l.TargetPrice)
		addDecimal(row, l.StopLoss)
		addDecimal(row, l.GrowthPercent)
		addStrings(row, string(l.RecommendationType), l.Source, l.URL)
		row.AddCell().SetDateTime(l.DateExtracted.UTC())
		row.AddCell().SetFloat(l.Confidence)
	}
	return nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addInts(row *xlsx.Row, values ...int) {
	for _, v := range values {
		row.AddCell().SetInt(v)
	}
}

func addDecimal(row *xlsx.Row, d *decimal.Decimal) {
	cell := row.AddCell()
	if d == nil {
		cell.SetString("")
		return
	}
	cell.SetFloat(d.InexactFloat64())
}
