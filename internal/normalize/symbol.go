package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxSymbolLen bounds the length of an accepted symbol.
const MaxSymbolLen = 20

var (
	symbolShapeRe = regexp.MustCompile(`^[A-Z][A-Z0-9&\-]*$`)
	exchangeRe    = regexp.MustCompile(`(?i)\b(?:nse|bse)\s*[:\-]\s*([A-Za-z][A-Za-z0-9&\-]{0,19})`)
	parenRe       = regexp.MustCompile(`\(\s*([A-Z][A-Z0-9&\-]{1,19})\s*\)`)
	seriesRe      = regexp.MustCompile(`(?i)[\s\-](?:eq|be)$`)
)

// stopwords are upper-case tokens that look like tickers but never are.
var stopwords = map[string]bool{
	"A": true, "AN": true, "THE": true, "AND": true, "OR": true, "FOR": true, "OF": true, "TO": true,
	"IN": true, "ON": true, "AT": true, "BY": true, "IS": true, "IT": true, "WE": true, "OUR": true,
	"BUY": true, "SELL": true, "HOLD": true, "ADD": true, "REDUCE": true, "ACCUMULATE": true,
	"NEUTRAL": true, "BULLISH": true, "BEARISH": true, "STRONG": true, "CALL": true, "VIEW": true,
	"TARGET": true, "TGT": true, "TP": true, "STOP": true, "LOSS": true, "SL": true, "CMP": true,
	"LTP": true, "PRICE": true, "ENTRY": true, "EXIT": true, "RANGE": true, "UPSIDE": true,
	"NSE": true, "BSE": true, "NIFTY": true, "SENSEX": true, "BANKNIFTY": true, "FNO": true, "EQ": true,
	"INR": true, "RS": true, "USD": true, "NA": true, "N/A": true, "NEW": true, "TOP": true,
	"IPO": true, "EPS": true, "PE": true, "ROE": true, "YOY": true, "QOQ": true, "FY": true,
	"Q1": true, "Q2": true, "Q3": true, "Q4": true, "H1": true, "H2": true, "GDP": true, "RBI": true,
	"FII": true, "DII": true, "AGM": true, "CEO": true, "MD": true, "LTD": true, "LIMITED": true,
	"PVT": true, "INC": true, "CORP": true, "AM": true, "PM": true, "IST": true, "NOTE": true,
	"DISCLAIMER": true, "RESEARCH": true, "STOCK": true, "STOCKS": true, "IDEAS": true, "TRADE": true,
	"DATE": true, "DAYS": true, "WEEK": true, "WEEKS": true, "MONTH": true, "MONTHS": true,
	"SHORT": true, "LONG": true, "TERM": true, "INTRADAY": true, "POSITIONAL": true,
}

// IsStopword reports whether token (any case) can never be a symbol.
func IsStopword(token string) bool {
	return stopwords[strings.ToUpper(strings.TrimSpace(token))]
}

// IsValidSymbol is the token-shape check: non-empty, bounded length, starts
// with a letter, only A-Z 0-9 & -, and not a stopword.
func IsValidSymbol(sym string) bool {
	if sym == "" || len(sym) > MaxSymbolLen {
		return false
	}
	return symbolShapeRe.MatchString(sym) && !stopwords[sym]
}

// ExtractSymbol derives a ticker symbol from free symbol text, falling back
// to the company text. It understands "NSE: SYM", "Name (SYM)", a trailing
// series suffix such as " EQ", single-token names and multi-word company
// names ("Tata Steel" becomes "TATASTEEL"). ok is false if nothing passes
// the shape check.
func ExtractSymbol(symbolText, companyText string) (string, bool) {
	for _, text := range []string{symbolText, companyText} {
		if sym, ok := symbolFrom(text); ok {
			return sym, true
		}
	}
	return "", false
}

func symbolFrom(text string) (string, bool) {
	s := strings.TrimSpace(norm.NFKC.String(text))
	if s == "" {
		return "", false
	}

	if m := exchangeRe.FindStringSubmatch(s); m != nil {
		sym := strings.ToUpper(m[1])
		return sym, IsValidSymbol(sym)
	}
	if m := parenRe.FindStringSubmatch(s); m != nil {
		return m[1], IsValidSymbol(m[1])
	}

	s = seriesRe.ReplaceAllString(s, "")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '|'
	})
	if len(fields) == 0 {
		return "", false
	}
	if len(fields) == 1 {
		sym := strings.ToUpper(strings.Trim(fields[0], ".()"))
		return sym, IsValidSymbol(sym)
	}

	// Prefer an all-caps ticker-looking token inside longer text.
	for _, f := range fields {
		f = strings.Trim(f, ".()")
		if len(f) >= 2 && f == strings.ToUpper(f) && IsValidSymbol(f) {
			return f, true
		}
	}

	// Fall back to a compacted company name.
	var b strings.Builder
	for _, f := range fields {
		if IsStopword(f) {
			continue
		}
		for _, r := range f {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' {
				b.WriteRune(unicode.ToUpper(r))
			}
		}
	}
	sym := b.String()
	return sym, IsValidSymbol(sym)
}

// CleanText collapses whitespace and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
