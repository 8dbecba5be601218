package rent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/rent"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"  Amount Paid (KES) ": "amount paid kes",
		"M-Pesa Réf":           "mpesa ref",
		"Prepayment/Arrears":   "prepayment/arrears",
		"DATE  DUE":            "date due",
		"Commentś":             "comments",
	}
	for in, want := range tests {
		assert.Equal(t, want, rent.NormalizeHeader(in), in)
	}
}

func TestResolveHeader_Aliases(t *testing.T) {
	tests := map[string]rent.Column{
		"Rent":               rent.ColAmountDue,
		"Monthly Rent":       rent.ColAmountDue,
		"Amt Paid":           rent.ColAmountPaid,
		"Payment Date":       rent.ColDatePaid,
		"M-Pesa Ref":         rent.ColRef,
		"Receipt No.":        rent.ColRef,
		"Rent Due Date":      rent.ColDateDue,
		"Carry Forward":      rent.ColBalance,
		"Late Fee":           rent.ColPenalties,
		"Remarks":            rent.ColComments,
		"Billing Month":      rent.ColMonth,
		"MonthKey":           rent.ColMonthKey,
		"Prepayment/Arrears": rent.ColBalance,
	}
	for in, want := range tests {
		got, ok := rent.ResolveHeader(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := rent.ResolveHeader("Landlord signature")
	assert.False(t, ok)
}

func TestNormalize_IsIdempotent(t *testing.T) {
	// GIVEN: A header missing five required columns
	header := []string{"Month", "Rent", "Paid", "Notes"}
	rows := [][]string{{"Sep-2025", "12000", "12000", "ok"}}

	// WHEN: Normalizing twice
	first := rent.Normalize(header, rows, "None")
	second := rent.Normalize(first.Header, first.Rows, "None")

	// THEN: The second pass changes nothing
	assert.True(t, first.Changed())
	assert.False(t, second.Changed())
	assert.Equal(t, first.Header, second.Header)
	assert.Equal(t, first.Columns, second.Columns)
	assert.Len(t, first.Header, 9)
	assert.False(t, first.CommentsAdded, "Notes already maps to comments")
	assert.Equal(t, []string{"Month", "Rent", "Paid", "Notes"}, header, "input untouched")
}

func TestNormalize_AppendsAndBackfillsComments(t *testing.T) {
	header := []string{"Month", "Amount Due", "Amount paid", "Date paid", "REF Number", "Date due", "Prepayment/Arrears", "Penalties"}
	rows := [][]string{{"Aug-2025", "12000"}, {"Sep-2025"}}

	s := rent.Normalize(header, rows, "None")

	require.Equal(t, []rent.Column{rent.ColComments}, s.Appended)
	assert.True(t, s.CommentsAdded)
	assert.Equal(t, 8, s.Columns[rent.ColComments])
	for _, r := range s.Rows {
		require.Len(t, r, 9)
		assert.Equal(t, "None", r[8])
	}
}

func TestNormalize_FirstDuplicateWins(t *testing.T) {
	s := rent.Normalize([]string{"Month", "Balance", "Arrears", "Rent"}, nil, "None")
	assert.Equal(t, 1, s.Columns[rent.ColBalance])
	assert.Equal(t, "Arrears", s.Header[2], "duplicate is left in place")
}

func TestNormalize_ReportsUnknownHeaders(t *testing.T) {
	s := rent.Normalize(rent.CanonicalHeader(), nil, "None")
	assert.Empty(t, s.Unknown)

	s = rent.Normalize(append(rent.CanonicalHeader(), "Ammount Payed"), nil, "None")
	assert.Equal(t, []string{"Ammount Payed"}, s.Unknown)
	assert.NotEmpty(t, rent.SuggestAlias("Ammount Payed"))
}

func TestDetectHeaderRow(t *testing.T) {
	tests := []struct {
		name   string
		values [][]string
		want   int
	}{
		{"header first", [][]string{rent.CanonicalHeader(), {"Sep-2025"}}, 0},
		{"header third", [][]string{{"Tenant"}, {}, {"Period", "Rent", "Paid", "Balance"}}, 2},
		{"nothing scores", [][]string{{"a", "b"}, {"Month", "Rent"}}, 0},
		{"tie keeps earliest", [][]string{{"x"}, {"Month", "Rent", "Paid"}, {"Period", "Due", "Paid"}}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rent.DetectHeaderRow(tt.values, 30, 3))
		})
	}
}

func TestDetectHeaderRow_OnlyScansWindow(t *testing.T) {
	values := make([][]string, 40)
	values[35] = rent.CanonicalHeader()
	assert.Equal(t, 0, rent.DetectHeaderRow(values, 30, 3))
}

func TestParseMonthLabel(t *testing.T) {
	tests := []struct {
		in   string
		want generic.Month
		ok   bool
	}{
		{"Aug-2025", generic.NewMonth(2025, time.August), true},
		{"August 2025", generic.NewMonth(2025, time.August), true},
		{"sept 2025", generic.NewMonth(2025, time.September), true},
		{"2025-08", generic.NewMonth(2025, time.August), true},
		{"2025/8", generic.NewMonth(2025, time.August), true},
		{"08-2025", generic.NewMonth(2025, time.August), true},
		{" 8/2025 ", generic.NewMonth(2025, time.August), true},
		{"2025-13", generic.Month{}, false},
		{"Augst-2025", generic.Month{}, false},
		{"", generic.Month{}, false},
		{"12000", generic.Month{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := rent.ParseMonthLabel(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseDateCell(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"08/09/2025 09:00 PM", time.Date(2025, time.September, 8, 21, 0, 0, 0, time.UTC)},
		{"8/9/2025 9:00 PM", time.Date(2025, time.September, 8, 21, 0, 0, 0, time.UTC)},
		{"05/09/2025", time.Date(2025, time.September, 5, 0, 0, 0, 0, time.UTC)},
		{"2025-09-05", time.Date(2025, time.September, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := rent.ParseDateCell(tt.in)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	serial, ok := rent.ParseDateCell("45908")
	require.True(t, ok)
	assert.Equal(t, 2025, serial.Year())
	assert.Equal(t, time.September, serial.Month())
	assert.Equal(t, 8, serial.Day())

	for _, bad := range []string{"", "soon", "12000", "#VALUE!"} {
		_, ok := rent.ParseDateCell(bad)
		assert.False(t, ok, bad)
	}
}

func TestRules_IsLate(t *testing.T) {
	rules := rent.DefaultRules()
	due := rules.DueDate(generic.NewMonth(2025, time.September))

	assert.False(t, rules.IsLate(time.Date(2025, time.September, 7, 23, 59, 0, 0, time.UTC), due))
	assert.True(t, rules.IsLate(time.Date(2025, time.September, 8, 0, 1, 0, 0, time.UTC), due))
	assert.False(t, rules.IsLate(time.Date(2025, time.August, 30, 12, 0, 0, 0, time.UTC), due))
}

func TestNormalizeReference(t *testing.T) {
	got, err := rent.NormalizeReference(" tgh-12ab 34cd ")
	require.NoError(t, err)
	assert.Equal(t, "TGH12AB34CD", got)

	for _, bad := range []string{"AB12", "ABCDEFGHIJKLMNOPQ", "--------"} {
		_, err := rent.NormalizeReference(bad)
		assert.ErrorIs(t, err, rent.ErrInvalidReference, bad)
	}
}

func TestPayment_Validate(t *testing.T) {
	base := pay(1000, "QJK1234ABC", at(2025, time.September, 1, 9))

	_, err := base.Normalized()
	require.NoError(t, err)

	zero := base
	zero.Amount = generic.NewAmount(0)
	_, err = zero.Normalized()
	assert.ErrorIs(t, err, rent.ErrInvalidPayment)

	noAccount := base
	noAccount.AccountCode = "  "
	_, err = noAccount.Normalized()
	assert.ErrorIs(t, err, rent.ErrInvalidPayment)

	longPhone := base
	longPhone.Phone = "25471234567890"
	_, err = longPhone.Normalized()
	assert.ErrorIs(t, err, rent.ErrInvalidPayment)

	lower := base
	lower.AccountCode = " a101 "
	p, err := lower.Normalized()
	require.NoError(t, err)
	assert.Equal(t, "A101", p.AccountCode)
}
