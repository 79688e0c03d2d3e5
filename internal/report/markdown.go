package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/scorer"
)

const samplesPerSource = 3

// WriteMarkdown writes a human summary: run overview, per-source stats
// with sample leads, the top leads inside the growth band and, when
// opts.MinConfidence is set, the quality leads.
func WriteMarkdown(w io.Writer, r *model.RunResult, opts Options) error {
	var b strings.Builder
	t := r.Summary.Totals
	bySource := groupBySource(r.Leads)
	inBand := filterBand(r.Leads, opts.Band)
	var quality []model.StockLead
	if opts.MinConfidence > 0 {
		quality = QualityLeads(r.Leads, opts.MinConfidence)
	}

	b.WriteString("# Stock Recommendation Summary\n\n")
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "- **Run:** %s\n", r.RunID)
	fmt.Fprintf(&b, "- **Started:** %s\n", r.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- **Duration:** %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "- **Sources:** %d (%d failed)\n", t.Sources, t.SourcesFailed)
	fmt.Fprintf(&b, "- **Leads:** %d\n", t.Leads)
	if opts.Band != nil {
		fmt.Fprintf(&b, "- **Leads in growth band (%s):** %d\n", bandLabel(opts.Band), len(inBand))
	}
	if opts.MinConfidence > 0 {
		fmt.Fprintf(&b, "- **Quality leads (%s):** %d\n", minConfidenceLabel(opts.MinConfidence), len(quality))
	}
	if r.ScoreConfigHash != "" {
		fmt.Fprintf(&b, "- **Score config:** %s\n", r.ScoreConfigHash)
	}

	b.WriteString("\n## Sources\n\n")
	for _, s := range r.Summary.Sources {
		fmt.Fprintf(&b, "### %s\n", s.Source)
		fmt.Fprintf(&b, "- **Status:** %s", s.Status)
		if s.Failure != model.FailureNone {
			fmt.Fprintf(&b, " (%s)", s.Failure)
		}
		b.WriteString("\n")
		if s.Strategy != "" {
			fmt.Fprintf(&b, "- **Strategy:** %s\n", s.Strategy)
		}
		fmt.Fprintf(&b, "- **Attempts:** %d, **Candidates:** %d, **Leads:** %d\n",
			s.Attempts, s.CandidatesFound, s.Leads)
		if opts.Band != nil {
			fmt.Fprintf(&b, "- **In growth band:** %d\n", len(filterBand(bySource[s.Source], opts.Band)))
		}

		samples := bySource[s.Source]
		if len(samples) > samplesPerSource {
			samples = samples[:samplesPerSource]
		}
		if len(samples) > 0 {
			b.WriteString("- **Top leads:**\n")
			for i, l := range samples {
				fmt.Fprintf(&b, "  %d. **%s** (%s): %s, entry %s, target %s, growth %s\n",
					i+1, l.Symbol, orNA(l.CompanyName), l.RecommendationType,
					displayDecimal(l.EntryPrice, "₹", ""),
					displayDecimal(l.TargetPrice, "₹", ""),
					displayDecimal(l.GrowthPercent, "", "%"))
			}
		}
		b.WriteString("\n")
	}

	top := inBand
	title := fmt.Sprintf("## Top Leads in Growth Band (%s)", bandLabel(opts.Band))
	if opts.Band == nil {
		top = append([]model.StockLead(nil), r.Leads...)
		title = "## Top Leads"
	}
	if len(top) > 0 {
		sort.SliceStable(top, func(i, j int) bool {
			if top[i].Confidence != top[j].Confidence {
				return top[i].Confidence > top[j].Confidence
			}
			return growthOf(top[i]) > growthOf(top[j])
		})
		writeLeadTable(&b, title, top, opts.topN())
	}

	if len(quality) > 0 {
		b.WriteString("\n")
		writeLeadTable(&b, fmt.Sprintf("## Quality Leads (%s)", minConfidenceLabel(opts.MinConfidence)), quality, opts.topN())
	}

	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "report: write markdown")
}

func writeLeadTable(b *strings.Builder, title string, leads []model.StockLead, limit int) {
	if len(leads) > limit {
		leads = leads[:limit]
	}
	b.WriteString(title + "\n\n")
	b.WriteString("| Symbol | Company | Call | Entry | Target | Growth | Confidence | Source |\n")
	b.WriteString("|--------|---------|------|-------|--------|--------|------------|--------|\n")
	for _, l := range leads {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			l.Symbol, escapeCell(orNA(l.CompanyName)), l.RecommendationType,
			displayDecimal(l.EntryPrice, "₹", ""),
			displayDecimal(l.TargetPrice, "₹", ""),
			displayDecimal(l.GrowthPercent, "", "%"),
			confidenceText(l.Confidence), l.Source)
	}
}

// groupBySource keeps each source's leads in their existing order.
func groupBySource(leads []model.StockLead) map[string][]model.StockLead {
	out := make(map[string][]model.StockLead)
	for _, l := range leads {
		out[l.Source] = append(out[l.Source], l)
	}
	return out
}

func filterBand(leads []model.StockLead, band *scorer.Band) []model.StockLead {
	if band == nil {
		return nil
	}
	var out []model.StockLead
	for _, l := range leads {
		if l.GrowthPercent != nil && band.Contains(l.GrowthPercent.InexactFloat64()) {
			out = append(out, l)
		}
	}
	return out
}

func growthOf(l model.StockLead) float64 {
	if l.GrowthPercent == nil {
		return 0
	}
	return l.GrowthPercent.InexactFloat64()
}

func bandLabel(b *scorer.Band) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("%g-%g%%", b.Min, b.Max)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
