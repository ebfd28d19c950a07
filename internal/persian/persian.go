// Package persian normalizes Persian/Arabic numeric text scraped from
// Iranian market pages into canonical ASCII decimal form.
package persian

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arzwatch/arzwatch/internal/domain"
)

// Persian digits U+06F0..U+06F9, Arabic digits U+0660..U+0669 and the Arabic
// percent sign U+066A all fold to their ASCII counterparts.
var digitTable = map[rune]rune{
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
	'٪': '%',
}

var numberPattern = regexp.MustCompile(`[+-]?\d+(?:[.,]\d+)?`)

// NormalizeDigits converts Persian/Arabic numerals and the Arabic percent
// sign to ASCII, leaving every other character intact. Total: never fails.
func NormalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if ascii, ok := digitTable[r]; ok {
			return ascii
		}
		return r
	}, s)
}

// NormalizePercent normalizes digits and the percent sign and tightens the
// "12 %" spacing the sites like to emit.
func NormalizePercent(s string) string {
	s = NormalizeDigits(s)
	return strings.TrimSpace(strings.ReplaceAll(s, " %", "%"))
}

// StripCommas removes thousands separators.
func StripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

// ExtractFirstNumber finds the first numeric substring, accepting either '.'
// or ',' as the decimal separator, and returns it with '.' normalized. The
// second return is false when the string holds no number at all.
func ExtractFirstNumber(s string) (string, bool) {
	m := numberPattern.FindString(NormalizeDigits(s))
	if m == "" {
		return "", false
	}
	return strings.ReplaceAll(m, ",", "."), true
}

// ToDecimal parses a price-like fragment: digits are normalized, thousands
// separators stripped, and when strict parsing still fails the first numeric
// substring is used instead. Fails only when no numeric content exists.
func ToDecimal(s string) (domain.Decimal, error) {
	raw := strings.TrimSpace(NormalizeDigits(StripCommas(s)))
	d, err := domain.NewDecimalFromString(raw)
	if err == nil {
		return d, nil
	}

	num, ok := ExtractFirstNumber(raw)
	if !ok {
		return domain.Decimal{}, fmt.Errorf("no numeric content in %q", s)
	}
	return domain.NewDecimalFromString(num)
}

// TryDecimal is the non-failing variant of ToDecimal.
func TryDecimal(s string) (domain.Decimal, bool) {
	d, err := ToDecimal(s)
	if err != nil {
		return domain.Decimal{}, false
	}
	return d, true
}

// SplitBubble splits a combined "amount (percentage%)" fragment into the
// amount and the percentage (with its '%' restored). A fragment without any
// percent sign yields two empty strings; downstream formatting relies on
// that, so keep it.
func SplitBubble(s string) (amount, percent string) {
	s = NormalizeDigits(s)
	if !strings.Contains(s, "%") {
		return "", ""
	}
	parts := strings.SplitN(s, "%", 2)
	left := parts[0]

	// Parenthesized form "1,200 (5.5%)": the percentage sits inside the
	// parens, the amount before them.
	if i := strings.LastIndex(left, "("); i >= 0 {
		return strings.TrimSpace(left[:i]), strings.TrimSpace(left[i+1:]) + "%"
	}
	return strings.TrimSpace(left), strings.TrimSpace(parts[1]) + "%"
}
