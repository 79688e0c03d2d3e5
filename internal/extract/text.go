package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/stockleads/internal/model"
)

const blockSelector = "div, p, li, ul, ol, table, tr, td, th, section, article, header, footer, " +
	"h1, h2, h3, h4, h5, h6, dl, dd, dt, blockquote"

const textWindowSelector = "p, li, blockquote, dd, h1, h2, h3, h4, h5, h6, div, article, section"

// TextPatternStrategy scans leaf text blocks (paragraphs, list items, cards)
// for a symbol-like token co-occurring with at least one price-like number.
type TextPatternStrategy struct {
	opts Options
}

// Name implements Strategy.
func (s *TextPatternStrategy) Name() string { return string(KindTextPattern) }

// Extract implements Strategy.
func (s *TextPatternStrategy) Extract(content, pageURL string) []model.RawCandidate {
	doc := parseDocument(content)
	if doc == nil {
		return nil
	}

	var out []model.RawCandidate
	doc.Find(textWindowSelector).Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(blockSelector).Length() > 0 || sel.Closest("table").Length() > 0 {
			return
		}
		link := linkOf(sel, pageURL)
		for _, w := range windowsOf(textOf(sel)) {
			if c, ok := s.candidate(w, link); ok {
				out = append(out, c)
			}
		}
	})
	return out
}

func (s *TextPatternStrategy) candidate(window, link string) (model.RawCandidate, bool) {
	sym, company := findSymbol(window, false)
	if sym == "" && company == "" {
		return model.RawCandidate{}, false
	}
	prices := findPrices(window)
	if !prices.any() {
		return model.RawCandidate{}, false
	}
	rec, _ := s.opts.Keywords.Find(window)
	return model.RawCandidate{
		SymbolText:   sym,
		CompanyText:  company,
		PriceTexts:   prices.unlabeled,
		EntryText:    prices.entry,
		TargetText:   prices.target,
		StopLossText: prices.stop,
		RecText:      rec,
		ContextURL:   link,
		Strategy:     s.Name(),
	}, true
}
