package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - The billing period
// =============================================================================

// Month is a (year, month) billing period. One ledger row per Month.
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the billing month a timestamp falls in, using the
// timestamp's own location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) Valid() bool {
	return m.Year > 0 && m.Month >= time.January && m.Month <= time.December
}

// Next returns the following calendar month.
func (m Month) Next() Month { return m.AddMonths(1) }

// AddMonths moves n months forward (or back when n < 0).
func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Month{Year: t.Year(), Month: t.Month()}
}

// Day returns the given day of this month at midnight UTC. Days past the
// end of the month clamp to the last day.
func (m Month) Day(day int) time.Time {
	last := time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(m.Year, m.Month, day, 0, 0, 0, 0, time.UTC)
}

func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// Key is the stable sort key, "2025-09".
func (m Month) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) String() string { return m.Key() }

// DateOnly drops the time-of-day and location, keeping the calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
