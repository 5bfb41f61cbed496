package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyPrefixes in stripping order: longest and most specific first, so
// removing "U$S" never leaves a residual "$" for a later pass to misread.
var currencyPrefixes = []string{"U$S", "USD", "US$", "ARS$", "AR$", "$"}

// ParseAmount normalizes a bank-notification amount like "U$S 1.234,56" or
// "$45.000,00" into a decimal: currency markers stripped in order, "."
// thousands separators removed, "," converted to the decimal point.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	for _, prefix := range currencyPrefixes {
		cleaned = strings.ReplaceAll(cleaned, prefix, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	cleaned = strings.TrimSpace(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q (normalized %q): %w", raw, cleaned, err)
	}
	return d, nil
}

// DetectCurrency classifies the raw amount marker: "U$S" means dollars,
// a bare "$" means pesos, anything else is unknown.
func DetectCurrency(raw string) string {
	switch {
	case strings.Contains(raw, "U$S"):
		return "USD"
	case strings.Contains(raw, "$"):
		return "ARS"
	default:
		return ""
	}
}

// parseCommaDecimal reads a number that may use "," as the decimal separator
// and "." as a thousands separator when both appear.
func parseCommaDecimal(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return d, nil
}
