package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	cases := map[string]string{
		"0":          "₱0.00",
		"5":          "₱5.00",
		"999.5":      "₱999.50",
		"1000":       "₱1,000.00",
		"12500.75":   "₱12,500.75",
		"1234567.1":  "₱1,234,567.10",
		"-3000":      "-₱3,000.00",
		"100000.004": "₱100,000.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, Format(decimal.RequireFromString(in), ""), in)
	}
	assert.Equal(t, "PHP 50.00", Format(decimal.NewFromInt(50), "PHP "))
}

func TestHasValidPrecision(t *testing.T) {
	assert.True(t, HasValidPrecision(decimal.RequireFromString("10")))
	assert.True(t, HasValidPrecision(decimal.RequireFromString("10.25")))
	assert.True(t, HasValidPrecision(decimal.RequireFromString("10.250")))
	assert.False(t, HasValidPrecision(decimal.RequireFromString("10.255")))
}

func TestSum(t *testing.T) {
	total := Sum(decimal.RequireFromString("0.10"), decimal.RequireFromString("0.20"))
	assert.True(t, total.Equal(decimal.RequireFromString("0.30")))
	assert.True(t, Sum().IsZero())
}
