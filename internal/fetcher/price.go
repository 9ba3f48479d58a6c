package fetcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var dec100 = decimal.NewFromInt(100)

// ParsePriceCents converts a marketplace price string ("$1,234.56", ".50",
// "12.30 USD") into integer cents.
func ParsePriceCents(text string) (int64, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "USD")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("empty price text %q", text)
	}
	if strings.HasPrefix(cleaned, ".") {
		cleaned = "0" + cleaned
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("negative price %q", text)
	}
	return value.Mul(dec100).Round(0).IntPart(), nil
}
