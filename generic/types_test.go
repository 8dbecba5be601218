package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/rent-ledger/generic"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12000", "12000", true},
		{"12,000.50", "12000.5", true},
		{"KES 12,000", "12000", true},
		{"Kshs. 3,000", "3000", true},
		{"ksh500", "500", true},
		{"(500)", "-500", true},
		{"-500", "-500", true},
		{" 1 200 ", "1200", true},
		{"12 000", "12000", true},
		{"", "0", true},
		{"   ", "0", true},
		{"#REF!", "0", false},
		{"twelve", "0", false},
		{"KES", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := generic.ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	due := generic.NewAmount(12000)
	paid := generic.MustParseAmount("5,000")

	balance := paid.Sub(due)
	assert.Equal(t, "-7000", balance.String())
	assert.True(t, balance.IsNegative())
	assert.True(t, paid.Add(generic.NewAmount(7000)).Equal(due))
	assert.True(t, due.GreaterOrEqual(generic.NewAmountFromFloat(12000.0)))
	assert.True(t, generic.MustParseAmount("garbage").IsZero())
	assert.InDelta(t, 12000.0, due.Float64(), 0.0001)
}

func TestMonth(t *testing.T) {
	dec := generic.NewMonth(2025, time.December)

	assert.Equal(t, generic.NewMonth(2026, time.January), dec.Next())
	assert.Equal(t, generic.NewMonth(2025, time.October), dec.AddMonths(-2))
	assert.Equal(t, "2025-12", dec.Key())
	assert.True(t, dec.Before(dec.Next()))
	assert.False(t, generic.NewMonth(2025, 13).Valid())

	feb := generic.NewMonth(2025, time.February)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), feb.Day(31))
	assert.Equal(t, time.Date(2025, time.February, 5, 0, 0, 0, 0, time.UTC), feb.Day(5))

	nairobi := time.FixedZone("EAT", 3*3600)
	late := time.Date(2025, time.September, 30, 23, 30, 0, 0, nairobi)
	assert.Equal(t, generic.NewMonth(2025, time.September), generic.MonthOf(late))
	assert.Equal(t, time.Date(2025, time.September, 30, 0, 0, 0, 0, time.UTC), generic.DateOnly(late))
}

func TestA1(t *testing.T) {
	assert.Equal(t, "A1", generic.A1(1, 1))
	assert.Equal(t, "C2", generic.A1(2, 3))
	assert.Equal(t, "AA10", generic.A1(10, 27))
}

func TestCheckBounds(t *testing.T) {
	cells := []generic.CellUpdate{{Row: 3, Col: 2}, {Row: 1, Col: 11}}

	err := generic.CheckBounds("A101", 2, 10, cells)

	var capErr *generic.GridCapacityError
	assert.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, generic.ErrGridCapacity)
	assert.Equal(t, 3, capErr.NeedRows)
	assert.Equal(t, 11, capErr.NeedCols)
	assert.NoError(t, generic.CheckBounds("A101", 3, 11, cells))
}
