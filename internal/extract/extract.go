// Package extract finds raw stock recommendation candidates in page content.
//
// A source runs an ordered Chain of strategies. Each Strategy is tolerant of
// malformed input and returns an empty slice rather than an error.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/normalize"
)

// Kind names a concrete strategy variant.
type Kind string

const (
	KindTable           Kind = "table"
	KindTextPattern     Kind = "text_pattern"
	KindGenericFallback Kind = "generic_fallback"
)

// DefaultKinds is the chain used when a source does not name one.
var DefaultKinds = []Kind{KindTable, KindTextPattern, KindGenericFallback}

// Strategy produces raw candidates from page content.
type Strategy interface {
	Name() string
	Extract(content, pageURL string) []model.RawCandidate
}

// Options are shared by every strategy.
type Options struct {
	// Keywords locates recommendation phrases in free text. Nil uses the
	// default table.
	Keywords *normalize.KeywordTable
}

func (o Options) withDefaults() Options {
	if o.Keywords == nil {
		o.Keywords = normalize.DefaultKeywordTable()
	}
	return o
}

// New builds the strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindTable:
		return &TableStrategy{opts: opts}, nil
	case KindTextPattern:
		return &TextPatternStrategy{opts: opts}, nil
	case KindGenericFallback:
		return &GenericFallbackStrategy{opts: opts}, nil
	default:
		return nil, eris.Errorf("extract: unknown strategy %q", kind)
	}
}

// ParseKinds converts configured names to Kinds. Empty input yields
// DefaultKinds.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return append([]Kind(nil), DefaultKinds...), nil
	}
	kinds := make([]Kind, 0, len(names))
	for _, n := range names {
		k := Kind(strings.ToLower(strings.TrimSpace(n)))
		switch k {
		case KindTable, KindTextPattern, KindGenericFallback:
			kinds = append(kinds, k)
		default:
			return nil, eris.Errorf("extract: unknown strategy %q", n)
		}
	}
	return kinds, nil
}

// safeExtract runs s, converting a panic into an empty result.
func safeExtract(s Strategy, content, pageURL string) (out []model.RawCandidate, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("extract: strategy panicked",
				zap.String("strategy", s.Name()),
				zap.String("url", pageURL),
				zap.String("panic", fmt.Sprint(r)),
			)
			out, panicked = nil, true
		}
	}()
	return s.Extract(content, pageURL), false
}

// parseDocument parses HTML and strips non-content nodes. It returns nil on
// failure.
func parseDocument(content string) *goquery.Document {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		zap.L().Debug("extract: parse failed", zap.Error(err))
		return nil
	}
	doc.Find("script, style, noscript, iframe, svg, template").Remove()
	return doc
}

// linkOf returns the first usable href in s, resolved against pageURL, or
// pageURL itself.
func linkOf(s *goquery.Selection, pageURL string) string {
	var href string
	if goquery.NodeName(s) == "a" {
		href, _ = s.Attr("href")
	}
	if href == "" {
		href, _ = s.Find("a[href]").First().Attr("href")
	}
	if href == "" {
		href, _ = s.Closest("a[href]").Attr("href")
	}
	return resolveURL(pageURL, href)
}

func resolveURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}

// textOf joins the text nodes under sel with spaces, so adjacent inline
// elements ("<span>CMP</span><span>120</span>") stay separate words.
func textOf(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return normalize.CleanText(b.String())
}
