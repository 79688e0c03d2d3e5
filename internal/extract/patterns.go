package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/stockleads/internal/normalize"
)

const (
	numPat = `([0-9][0-9,]*(?:\.[0-9]+)?)`
	curPat = `(?:(?:rs\.?|₹|inr|\$)\s*)?`
	sepPat = `\s*(?:[:=@\-]|\bof\b|\bat\b|\bis\b|\baround\b)?\s*`
)

var (
	stopLabelRe   = regexp.MustCompile(`(?i)\b(?:stop\s*-?\s*loss|sl)\b` + sepPat + curPat + numPat)
	targetLabelRe = regexp.MustCompile(`(?i)\b(?:target(?:\s+price)?|price\s+target|tgt|tp)\b` + sepPat + curPat + numPat)
	entryLabelRe  = regexp.MustCompile(`(?i)\b(?:cmp|ltp|entry(?:\s+price)?|current\s+(?:market\s+)?price|trading\s+at|buy\s+(?:at|around|above|below|near)|reco(?:mmendation)?\s+price|price)\b` + sepPat + curPat + numPat)

	numberRe       = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)
	unitAfterRe    = regexp.MustCompile(`(?i)^\s*(?:%|percent\b|x\b|days?\b|weeks?\b|months?\b|years?\b|yrs?\b|am\b|pm\b|cr\b|crores?\b|lakhs?\b|mn\b|bn\b|shares?\b)`)
	listIndexRe    = regexp.MustCompile(`^\s*\d{1,2}[.)]\s+`)
	currencyTailRe = regexp.MustCompile(`(?i)(?:rs|inr)$`)

	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	}

	exchangeSymbolRe = regexp.MustCompile(`(?i)\b(?:nse|bse)\s*[:\-/]\s*[A-Za-z][A-Za-z0-9&\-]{0,19}`)
	parenSymbolRe    = regexp.MustCompile(`\(\s*([A-Z][A-Z0-9&\-]{1,19})\s*\)`)
	companySuffixRe  = regexp.MustCompile(`\b((?:[A-Z][A-Za-z&.]*\s+){1,5}(?:Ltd|Limited|Corporation|Corp|Inc)\b\.?)`)
	capitalWordsRe   = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)
)

type span struct{ start, end int }

func overlaps(spans []span, s span) bool {
	for _, o := range spans {
		if s.start < o.end && o.start < s.end {
			return true
		}
	}
	return false
}

// priceFields are the price fragments found in one text window.
type priceFields struct {
	entry, target, stop string
	unlabeled           []string
}

func (p priceFields) any() bool {
	return p.entry != "" || p.target != "" || p.stop != "" || len(p.unlabeled) > 0
}

// findPrices locates labeled price fragments (CMP, target, stop loss) and
// the remaining unlabeled numbers. Percentages, dates, times, list indexes
// and numbers glued to words are ignored.
func findPrices(text string) priceFields {
	var pf priceFields
	text = listIndexRe.ReplaceAllStringFunc(text, func(m string) string { return strings.Repeat(" ", len(m)) })

	var taken []span
	label := func(re *regexp.Regexp) string {
		first := ""
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[0], m[1]}
			if overlaps(taken, s) {
				continue
			}
			taken = append(taken, s)
			if first == "" {
				first = text[m[2]:m[3]]
			}
		}
		return first
	}
	// Order matters: "target price 135" must not read as an entry "price".
	pf.stop = label(stopLabelRe)
	pf.target = label(targetLabelRe)
	pf.entry = label(entryLabelRe)

	for _, re := range dateRes {
		for _, m := range re.FindAllStringIndex(text, -1) {
			taken = append(taken, span{m[0], m[1]})
		}
	}

	for _, m := range numberRe.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1]}
		if overlaps(taken, s) {
			continue
		}
		if m[0] > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:m[0]])
			if (unicode.IsLetter(prev) && !currencyTailRe.MatchString(text[:m[0]])) || unicode.IsDigit(prev) {
				continue
			}
		}
		if unitAfterRe.MatchString(text[m[1]:]) {
			continue
		}
		pf.unlabeled = append(pf.unlabeled, text[m[0]:m[1]])
	}
	return pf
}

// findSymbol returns symbol and company fragments for a window. With relaxed
// set, capitalized word runs are accepted as company names.
func findSymbol(text string, relaxed bool) (symbolText, companyText string) {
	if m := companySuffixRe.FindStringSubmatch(text); m != nil {
		companyText = trimLeadingStopwords(m[1])
	}

	if m := exchangeSymbolRe.FindString(text); m != "" {
		return m, companyText
	}
	if loc := parenSymbolRe.FindStringSubmatchIndex(text); loc != nil {
		if companyText == "" {
			companyText = capitalRunBefore(text[:loc[0]])
		}
		return text[loc[2]:loc[3]], companyText
	}
	for _, tok := range tokens(text) {
		if len(tok) >= 2 && tok == strings.ToUpper(tok) && hasLetter(tok) && normalize.IsValidSymbol(tok) {
			return tok, companyText
		}
	}
	if companyText == "" && relaxed {
		if m := capitalWordsRe.FindStringSubmatch(text); m != nil {
			companyText = trimLeadingStopwords(m[1])
		}
	}
	return "", companyText
}

func tokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' || r == '-')
	})
	for i, f := range fields {
		fields[i] = strings.Trim(f, "-")
	}
	return fields
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// capitalRunBefore returns the run of capitalized words ending text, e.g.
// "Tata Steel Ltd" from "Buy Tata Steel Ltd ".
func capitalRunBefore(text string) string {
	words := strings.Fields(text)
	start := len(words)
	for start > 0 {
		w := words[start-1]
		r, _ := utf8.DecodeRuneInString(w)
		if normalize.IsStopword(strings.Trim(w, ".,:;")) && !strings.EqualFold(w, "ltd") && !strings.EqualFold(w, "limited") {
			break
		}
		if !unicode.IsUpper(r) && w != "&" && w != "and" && w != "of" {
			break
		}
		start--
	}
	return strings.Join(words[start:], " ")
}

func trimLeadingStopwords(s string) string {
	words := strings.Fields(s)
	for len(words) > 1 && normalize.IsStopword(words[0]) {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

var abbreviations = map[string]bool{
	"rs": true, "ltd": true, "no": true, "vs": true, "approx": true, "inc": true,
	"co": true, "corp": true, "mr": true, "ms": true, "dr": true, "st": true, "pvt": true,
}

// splitSentences splits text on ., ! or ? followed by whitespace, and on
// semicolons and newlines. A period after a known abbreviation such as "Rs."
// does not end a sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case ';', '\n':
			emit(i + 1)
		case '.', '!', '?':
			if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' && text[i+1] != '\t' {
				continue
			}
			if c == '.' {
				j := i
				for j > start && unicode.IsLetter(rune(text[j-1])) {
					j--
				}
				if abbreviations[strings.ToLower(text[j:i])] {
					continue
				}
			}
			emit(i + 1)
		}
	}
	emit(len(text))
	return out
}

// maxWindowChars is the longest block scanned as a single window; longer
// blocks are split into sentences.
const maxWindowChars = 300

func windowsOf(text string) []string {
	text = normalize.CleanText(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxWindowChars {
		return []string{text}
	}
	return splitSentences(text)
}
