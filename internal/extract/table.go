package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/normalize"
)

type column int

const (
	colIgnore column = iota
	colSkip
	colStop
	colTarget
	colEntry
	colRec
	colSymbol
	colCompany
)

// headerRules are tried in order; the first match classifies a header cell.
var headerRules = []struct {
	re  *regexp.Regexp
	col column
}{
	{regexp.MustCompile(`(?i)^\s*(?:#|s\.?\s*no\.?|sr\.?(?:\s*no\.?)?|sl\.?\s*no\.?|serial(?:\s+no\.?)?)\s*$`), colSkip},
	{regexp.MustCompile(`(?i)\b(?:stop\s*-?\s*loss|sl)\b`), colStop},
	{regexp.MustCompile(`(?i)\b(?:target|tgt|tp)\b`), colTarget},
	{regexp.MustCompile(`(?i)\b(?:cmp|ltp|entry|price|buy\s+(?:at|range)|buying\s+range|current|rate)\b`), colEntry},
	{regexp.MustCompile(`(?i)\b(?:reco|recommendation|call|action|rating|view|advice|signal|type)\b`), colRec},
	{regexp.MustCompile(`(?i)\b(?:symbol|ticker|scrip|code|nse|bse)\b`), colSymbol},
	{regexp.MustCompile(`(?i)\b(?:company|stock|name|security|scrip\s+name|share)\b`), colCompany},
}

func classifyHeader(text string) column {
	text = normalize.CleanText(text)
	if text == "" {
		return colIgnore
	}
	for _, r := range headerRules {
		if r.re.MatchString(text) {
			return r.col
		}
	}
	return colIgnore
}

// tableLayout maps column indexes to fields for one table.
type tableLayout struct {
	cols []column
}

func (l tableLayout) has(c column) bool {
	for _, x := range l.cols {
		if x == c {
			return true
		}
	}
	return false
}

// usable reports whether rows in this layout can yield a candidate: they
// need something to identify the stock and something to say about it.
func (l tableLayout) usable() bool {
	ident := l.has(colSymbol) || l.has(colCompany)
	info := l.has(colEntry) || l.has(colTarget) || l.has(colStop) || l.has(colRec)
	return ident && info
}

// TableStrategy reads <table> elements whose header row has recognizable
// tokens (symbol, price, target, stop loss, recommendation) and emits one
// candidate per data row.
type TableStrategy struct {
	opts Options
}

// Name implements Strategy.
func (s *TableStrategy) Name() string { return string(KindTable) }

// Extract implements Strategy.
func (s *TableStrategy) Extract(content, pageURL string) []model.RawCandidate {
	doc := parseDocument(content)
	if doc == nil {
		return nil
	}

	var out []model.RawCandidate
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			// Skip rows that belong to a nested table.
			return tr.Closest("table").IsSelection(table)
		})
		if rows.Length() < 2 {
			return
		}

		headerIdx, layout := findHeader(rows)
		if headerIdx < 0 {
			return
		}
		rows.Each(func(i int, tr *goquery.Selection) {
			if i <= headerIdx {
				return
			}
			if c, ok := s.rowCandidate(tr, layout, pageURL); ok {
				out = append(out, c)
			}
		})
	})
	return out
}

// findHeader returns the index of the first of the leading rows whose
// cells classify into a usable layout, or -1.
func findHeader(rows *goquery.Selection) (int, tableLayout) {
	limit := rows.Length()
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		var layout tableLayout
		rows.Eq(i).Children().Filter("th, td").Each(func(_ int, cell *goquery.Selection) {
			col := classifyHeader(textOf(cell))
			span := colspan(cell)
			for k := 0; k < span; k++ {
				layout.cols = append(layout.cols, col)
			}
		})
		if layout.usable() {
			return i, layout
		}
	}
	return -1, tableLayout{}
}

func colspan(cell *goquery.Selection) int {
	v, ok := cell.Attr("colspan")
	if !ok {
		return 1
	}
	n := 0
	for _, r := range strings.TrimSpace(v) {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > 20 {
		return 1
	}
	return n
}

func (s *TableStrategy) rowCandidate(tr *goquery.Selection, layout tableLayout, pageURL string) (model.RawCandidate, bool) {
	c := model.RawCandidate{Strategy: s.Name()}
	var texts []string
	idx := 0
	tr.Children().Filter("th, td").Each(func(_ int, cell *goquery.Selection) {
		text := textOf(cell)
		texts = append(texts, text)
		col := colIgnore
		if idx < len(layout.cols) {
			col = layout.cols[idx]
		}
		idx += colspan(cell)
		if text == "" {
			return
		}
		switch col {
		case colSymbol:
			if c.SymbolText == "" {
				c.SymbolText = text
			}
		case colCompany:
			if c.CompanyText == "" {
				c.CompanyText = text
			}
		case colEntry:
			c.EntryText = firstOrPrice(c.EntryText, text, &c.PriceTexts)
		case colTarget:
			c.TargetText = firstOrPrice(c.TargetText, text, &c.PriceTexts)
		case colStop:
			c.StopLossText = firstOrPrice(c.StopLossText, text, &c.PriceTexts)
		case colRec:
			if c.RecText == "" {
				c.RecText = text
			}
		}
	})
	if c.SymbolText == "" && c.CompanyText == "" {
		return model.RawCandidate{}, false
	}
	if c.RecText == "" {
		c.RecText, _ = s.opts.Keywords.Find(strings.Join(texts, " "))
	}
	c.ContextURL = linkOf(tr, pageURL)
	return c, true
}

// firstOrPrice keeps the first labeled value and spills later ones into the
// unlabeled list.
func firstOrPrice(current, text string, spill *[]string) string {
	if current == "" {
		return text
	}
	*spill = append(*spill, text)
	return current
}
