package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// strikePrecision is the number of decimal places kept in a StrikeKey.
const strikePrecision = 2

// StrikeKey is a strike price in hundredths. Fetched floats and strings parsed
// back from a published table map to the same key ("100", "100.0", 100.0).
type StrikeKey int64

// KeyOf converts a float strike to its key.
func KeyOf(strike float64) StrikeKey {
	return keyOfDecimal(decimal.NewFromFloat(strike))
}

// ParseStrike parses a decimal string as it appears in a table cell.
func ParseStrike(s string) (float64, StrikeKey, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("parse strike %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, 0, fmt.Errorf("parse strike %q: negative", s)
	}
	f, _ := d.Float64()
	return f, keyOfDecimal(d), nil
}

func keyOfDecimal(d decimal.Decimal) StrikeKey {
	return StrikeKey(d.Shift(strikePrecision).Round(0).IntPart())
}

func (k StrikeKey) Float64() float64 {
	f, _ := decimal.New(int64(k), -strikePrecision).Float64()
	return f
}

func (k StrikeKey) String() string {
	return decimal.New(int64(k), -strikePrecision).String()
}
