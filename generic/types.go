/*
Package generic provides the backend-agnostic building blocks of the rent ledger engine.

PURPOSE:
  This package contains the types every other package speaks: money amounts,
  billing months, the tabular backend contract (Sheet / Workbook), the error
  taxonomy shared by backends, and the retry wrapper that guards every remote
  call. Nothing here knows what a tenant or a rent row is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: a decimal quantity of the single ledger currency
  - ParseAmount: lenient coercion of spreadsheet cell text into an Amount

DESIGN PRINCIPLES:
  1. Precision: uses decimal.Decimal, never float64, for money
  2. Leniency: cells are user-edited, so parsing reports failure instead of panicking
  3. Stable text: Amount.String() is what gets written back into cells

USAGE:
  due := generic.NewAmount(12000)
  paid, ok := generic.ParseAmount("12,000.00")
  balance := paid.Sub(due)

SEE ALSO:
  - month.go: Billing month arithmetic
  - sheet.go: Tabular backend interface
  - retry.go: Backoff wrapper
*/
package generic

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money in the ledger currency
// =============================================================================

// Currency is the only currency the ledger deals in.
const Currency = "KES"

// Amount is a quantity of money in the ledger currency.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

func NewAmountFromFloat(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value)}
}

// MustParseAmount parses s and returns zero when it is not a number.
func MustParseAmount(s string) Amount {
	a, _ := ParseAmount(s)
	return a
}

// ParseAmount coerces cell text into an Amount.
//
// Accepted: "12000", "12,000.50", "KES 12,000", "(500)", "-500", " 1 200 ".
// Empty text parses to zero with ok=true; anything else unparsable returns
// zero with ok=false so callers can log the fallback.
func ParseAmount(s string) (Amount, bool) {
	t := strings.TrimSpace(strings.ReplaceAll(s, " ", " "))
	if t == "" {
		return Amount{Value: decimal.Zero}, true
	}

	upper := strings.ToUpper(t)
	for _, prefix := range []string{"KSHS", "KSH", Currency} {
		if strings.HasPrefix(upper, prefix) {
			t = strings.TrimSpace(strings.TrimPrefix(t[len(prefix):], "."))
			break
		}
	}

	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = t[1 : len(t)-1]
	}

	t = strings.ReplaceAll(t, ",", "")
	t = strings.ReplaceAll(t, " ", "")
	if t == "" {
		return Amount{Value: decimal.Zero}, false
	}

	d, err := decimal.NewFromString(t)
	if err != nil {
		return Amount{Value: decimal.Zero}, false
	}
	if neg {
		d = d.Neg()
	}
	return Amount{Value: d}, true
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Value.GreaterThanOrEqual(b.Value) }

// Float64 is for metrics and JSON only. Never compute with it.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

// String renders the amount the way it is written back into a cell:
// no thousands separators, no trailing zeros ("12000", "12000.5").
func (a Amount) String() string {
	return a.Value.String()
}
