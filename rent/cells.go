package rent

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// CELL FORMATS
// =============================================================================

const (
	// DatePaidLayout is how Date paid is written: "08/09/2025 09:00 PM".
	DatePaidLayout = "02/01/2006 03:04 PM"

	// DateDueLayout is how Date due is written: "05/09/2025".
	DateDueLayout = "02/01/2006"
)

// Day-first layouts; the ledgers are kept in a day/month/year locale.
var dateLayouts = []string{
	DatePaidLayout,
	"02/01/2006 3:04 PM",
	"2/1/2006 3:04 PM",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	DateDueLayout,
	"2/1/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Serial dates between 1990 and 2100; anything else numeric is not a date.
const (
	minDateSerial = 32874
	maxDateSerial = 73051
)

// ParseDateCell reads a date written as text in any accepted layout or as a
// native spreadsheet serial number.
func ParseDateCell(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= minDateSerial && serial <= maxDateSerial {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDatePaid renders a payment timestamp for the Date paid column.
func FormatDatePaid(t time.Time) string { return t.Format(DatePaidLayout) }

// FormatDateDue renders a due date for the Date due column.
func FormatDateDue(t time.Time) string { return t.Format(DateDueLayout) }

// DueDate is the day rent falls due in the given month.
func (r Rules) DueDate(m generic.Month) time.Time {
	return m.Day(r.DueDay)
}

// IsLate reports whether a payment on paid is past the grace window for due.
// Only calendar dates are compared.
func (r Rules) IsLate(paid, due time.Time) bool {
	return generic.DateOnly(paid).After(generic.DateOnly(due).AddDate(0, 0, r.GraceDays))
}

// =============================================================================
// ROW ACCESS
// =============================================================================

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
