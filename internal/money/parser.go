package money

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// tokenRe matches the first signed numeric token, separators included.
// Currency symbols and surrounding text are simply not part of the match.
var tokenRe = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)*`)

var currencySymbols = map[rune]string{
	'£': "GBP",
	'$': "USD",
	'€': "EUR",
	'¥': "JPY",
	'₹': "INR",
}

var currencyCodes = []string{"GBP", "USD", "EUR", "JPY", "CAD", "AUD", "CHF", "CNY", "INR"}

// Parse extracts a numeric amount from free-form price text.
//
// A separator ('.' or ',') followed by exactly three digits is treated as a
// thousands separator, so "1.234" parses as 1234 and "1,234.56" as 1234.56.
// A separator followed by one or two digits is the decimal point; anything
// after a longer fraction is truncated to two places. Negative amounts are
// returned as-is: some sites render discounts as negative deltas, and it is
// the caller's job to reject non-positive values when it wants real prices.
func Parse(text string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	token := tokenRe.FindString(cleaned)
	if token == "" {
		return decimal.Decimal{}, false
	}

	value, err := decimal.NewFromString(normalizeSeparators(token))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// Candidate pairs a parsed amount with the text it came from.
type Candidate struct {
	Raw   string
	Value decimal.Decimal
}

// PickLowest parses every candidate text and returns the minimum value.
// Texts that fail to parse are skipped; ok is false when nothing parsed.
func PickLowest(texts []string) (decimal.Decimal, bool) {
	candidate, ok := PickLowestCandidate(texts)
	return candidate.Value, ok
}

// PickLowestCandidate is PickLowest keeping hold of the winning raw text.
func PickLowestCandidate(texts []string) (Candidate, bool) {
	var best Candidate
	found := false
	for _, text := range texts {
		value, ok := Parse(text)
		if !ok {
			continue
		}
		if !found || value.LessThan(best.Value) {
			best = Candidate{Raw: text, Value: value}
			found = true
		}
	}
	return best, found
}

// GuessCurrency returns a best-effort ISO code for the currency the text is
// denominated in, or "" when there is no recognisable symbol or code.
func GuessCurrency(text string) string {
	for _, r := range text {
		if code, ok := currencySymbols[r]; ok {
			return code
		}
	}
	upper := strings.ToUpper(text)
	for _, code := range currencyCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	return ""
}

func normalizeSeparators(token string) string {
	sign := ""
	if token[0] == '-' || token[0] == '+' {
		sign = string(token[0])
		token = token[1:]
	}

	groups := strings.FieldsFunc(token, func(r rune) bool {
		return r == '.' || r == ','
	})

	integer := groups[0]
	fraction := ""
	for _, group := range groups[1:] {
		if len(group) == 3 {
			// Thousands separator: "1.234" is 1234, not 1.234.
			integer += group
			continue
		}
		fraction = group
		if len(fraction) > 2 {
			fraction = fraction[:2]
		}
		break
	}

	if fraction != "" {
		return sign + integer + "." + fraction
	}
	return sign + integer
}
