package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sells-group/stockleads/internal/model"
)

const fallbackSelector = blockSelector + ", span, strong, b, em, a, small, label"

// maxGroupLeaves bounds how many sibling leaves are merged into one window.
const maxGroupLeaves = 8

// GenericFallbackStrategy applies relaxed text-pattern rules to every leaf
// element, including table cells and inline spans, and to small groups of
// leaves that share a parent or grandparent (a card split over several
// spans). A window qualifies with a symbol or company name plus either a
// price or a recommendation phrase.
type GenericFallbackStrategy struct {
	opts Options
}

// Name implements Strategy.
func (s *GenericFallbackStrategy) Name() string { return string(KindGenericFallback) }

// Extract implements Strategy.
func (s *GenericFallbackStrategy) Extract(content, pageURL string) []model.RawCandidate {
	doc := parseDocument(content)
	if doc == nil {
		return nil
	}

	type group struct {
		sel   *goquery.Selection
		texts []string
	}
	var (
		order  []*html.Node
		groups = make(map[*html.Node]*group)
		seen   = make(map[string]bool)
		out    []model.RawCandidate
	)

	scan := func(text string, sel *goquery.Selection) {
		link := linkOf(sel, pageURL)
		for _, w := range windowsOf(text) {
			if seen[w] {
				continue
			}
			seen[w] = true
			if c, ok := s.candidate(w, link); ok {
				out = append(out, c)
			}
		}
	}
	addToGroup := func(anc *goquery.Selection, text string) {
		if anc.Length() == 0 {
			return
		}
		n := anc.Get(0)
		g, ok := groups[n]
		if !ok {
			g = &group{sel: anc}
			groups[n] = g
			order = append(order, n)
		}
		g.texts = append(g.texts, text)
	}

	doc.Find("body").Find(fallbackSelector).Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(fallbackSelector).Length() > 0 {
			return
		}
		text := textOf(sel)
		if text == "" {
			return
		}
		scan(text, sel)
		parent := sel.Parent()
		addToGroup(parent, text)
		addToGroup(parent.Parent(), text)
	})

	for _, n := range order {
		g := groups[n]
		if len(g.texts) < 2 || len(g.texts) > maxGroupLeaves {
			continue
		}
		scan(strings.Join(g.texts, " "), g.sel)
	}
	return out
}

func (s *GenericFallbackStrategy) candidate(window, link string) (model.RawCandidate, bool) {
	sym, company := findSymbol(window, true)
	if sym == "" && company == "" {
		return model.RawCandidate{}, false
	}
	prices := findPrices(window)
	rec, _ := s.opts.Keywords.Find(window)
	if !prices.any() && rec == "" {
		return model.RawCandidate{}, false
	}
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
