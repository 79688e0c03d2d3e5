package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var (
	numberRe         = regexp.MustCompile(`\d+(?:\.\d+)?`)
	currencyStripper = strings.NewReplacer("₹", " ", "rs.", " ", "rs", " ", "inr", " ", "$", " ", "usd", " ")
)

var absentPrice = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"n.a.": true,
	"-":    true,
	"--":   true,
	"nil":  true,
	"none": true,
}

// ParsePrice extracts a positive decimal from free text such as "₹1,250.50",
// "Rs. 120" or "120-125" (first bound). It returns nil for absent markers
// (NA, N/A, -) and for text without a positive number.
func ParsePrice(text string) *decimal.Decimal {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(text)))
	if absentPrice[s] {
		return nil
	}
	s = currencyStripper.Replace(s)
	s = strings.ReplaceAll(s, ",", "")

	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	d, err := decimal.NewFromString(m)
	if err != nil || !d.IsPositive() {
		return nil
	}
	return &d
}
