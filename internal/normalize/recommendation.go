package normalize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
)

type keyword struct {
	phrase string
	re     *regexp.Regexp
	rec    model.RecommendationType
}

// KeywordTable maps recommendation phrases to types. Longer phrases are
// tried first so "strong sell" wins over "sell".
type KeywordTable struct {
	keywords []keyword
}

// NewKeywordTable builds a table from a type name (buy, sell, hold) to
// phrases map. Unknown type names are ignored.
func NewKeywordTable(table map[string][]string) *KeywordTable {
	var kws []keyword
	seen := make(map[string]bool)
	for typ, phrases := range table {
		rec := model.ParseRecommendationType(typ)
		if rec == model.RecUnknown {
			continue
		}
		for _, p := range phrases {
			p = strings.ToLower(strings.Join(strings.Fields(p), " "))
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			kws = append(kws, keyword{
				phrase: p,
				re:     regexp.MustCompile(`\b` + strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`) + `\b`),
				rec:    rec,
			})
		}
	}
	sort.Slice(kws, func(i, j int) bool {
		if len(kws[i].phrase) != len(kws[j].phrase) {
			return len(kws[i].phrase) > len(kws[j].phrase)
		}
		return kws[i].phrase < kws[j].phrase
	})
	return &KeywordTable{keywords: kws}
}

// DefaultKeywordTable returns the built-in phrase table.
func DefaultKeywordTable() *KeywordTable {
	return NewKeywordTable(config.DefaultRecommendationKeywords)
}

// Classify maps free text to a recommendation type, or RecUnknown.
func (t *KeywordTable) Classify(text string) model.RecommendationType {
	_, rec := t.Find(text)
	return rec
}

// Find returns the first (longest) phrase present in text and its type.
func (t *KeywordTable) Find(text string) (string, model.RecommendationType) {
	s := strings.ToLower(norm.NFKC.String(text))
	if strings.TrimSpace(s) == "" {
		return "", model.RecUnknown
	}
	for _, kw := range t.keywords {
		if kw.re.MatchString(s) {
			return kw.phrase, kw.rec
		}
	}
	return "", model.RecUnknown
}

// Phrases returns every phrase in the table, longest first.
func (t *KeywordTable) Phrases() []string {
	out := make([]string, len(t.keywords))
	for i, kw := range t.keywords {
		out[i] = kw.phrase
	}
	return out
}
