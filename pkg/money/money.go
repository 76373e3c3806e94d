package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the fixed precision of every stored amount.
const Places = 2

// DefaultSymbol prefixes formatted amounts when no symbol is configured.
const DefaultSymbol = "₱"

// HasValidPrecision reports whether d carries at most two decimal places.
func HasValidPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Places))
}

// Normalize fixes the exponent so equal amounts compare and print identically.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Sum adds amounts exactly.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Format renders d as a grouped two-decimal amount, e.g. ₱12,500.00.
func Format(d decimal.Decimal, symbol string) string {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	raw := d.Abs().StringFixed(Places)
	whole, frac := raw, ""
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		whole, frac = raw[:idx], raw[idx:]
	}

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	lead := len(whole) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(whole[:lead])
	for i := lead; i < len(whole); i += 3 {
		b.WriteByte(',')
		b.WriteString(whole[i : i+3])
	}
	b.WriteString(frac)
	return b.String()
}
