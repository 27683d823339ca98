package util

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// numeralPattern accepts ASCII digits with at most one decimal point: "5", "5.25", "5.", ".5".
// Signs and thousands separators are rejected.
var numeralPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

func IsNumeral(s string) bool {
	return numeralPattern.MatchString(s)
}

// ParseIntNumeral converts a numeral to an integer, truncating any fractional
// part toward zero. ok is false for non-numerals and values outside int64.
func ParseIntNumeral(s string) (int64, bool) {
	if !IsNumeral(s) {
		return 0, false
	}
	whole := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole = s[:i]
	}
	if whole == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseDecimalNumeral converts a numeral to a decimal.
func ParseDecimalNumeral(s string) (decimal.Decimal, bool) {
	if !IsNumeral(s) {
		return decimal.Zero, false
	}
	norm := strings.TrimSuffix(s, ".")
	if strings.HasPrefix(norm, ".") {
		norm = "0" + norm
	}
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
