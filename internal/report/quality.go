package report

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/stockleads/internal/model"
)

// confidenceEpsilon absorbs float error from summed score weights.
const confidenceEpsilon = 1e-9

// QualityLeads returns the leads scoring at least minConfidence, highest
// confidence first. Equal scores keep run order.
func QualityLeads(leads []model.StockLead, minConfidence float64) []model.StockLead {
	out := make([]model.StockLead, 0, len(leads))
	for _, l := range leads {
		if l.Confidence >= minConfidence-confidenceEpsilon {
			out = append(out, l)
		}
	}
	sortByConfidence(out)
	return out
}

func sortByConfidence(leads []model.StockLead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].Confidence > leads[j].Confidence
	})
}

// SourceDocument is the per-source result file.
type SourceDocument struct {
	RunID string            `json:"run_id"`
	Stats model.SourceStats `json:"stats"`
	Leads []model.StockLead `json:"leads"`
}

// SourceDocuments splits a run into one document per source, in summary
// order. Sources without leads still get a document.
func SourceDocuments(r *model.RunResult) []SourceDocument {
	bySource := groupBySource(r.Leads)
	docs := make([]SourceDocument, 0, len(r.Summary.Sources))
	for _, s := range r.Summary.Sources {
		leads := bySource[s.Source]
		if leads == nil {
			leads = []model.StockLead{}
		}
		docs = append(docs, SourceDocument{RunID: r.RunID, Stats: s, Leads: leads})
	}
	return docs
}

// WriteSourceJSON writes one source document.
func WriteSourceJSON(w io.Writer, doc SourceDocument) error {
	return writeIndentedJSON(w, doc)
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sourceFileName(dir, source, stem string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(source, "_"), "_")
	if name == "" {
		name = "source"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", name, stem))
}

func minConfidenceLabel(v float64) string {
	return fmt.Sprintf("confidence >= %.2f", v)
}
