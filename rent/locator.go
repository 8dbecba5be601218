package rent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// PERIOD LOCATOR - Find or create the row for a billing month
// =============================================================================

// find returns the data-row index of month m. Rows whose Month cell does
// not parse are skipped; they never abort the lookup.
func (l *ledger) find(m generic.Month) (int, bool) {
	for i := range l.rows {
		raw := strings.TrimSpace(l.get(i, ColMonth))
		if raw == "" {
			continue
		}
		got, ok := ParseMonthLabel(raw)
		if !ok {
			l.logger.Debug("skipping row",
				zap.Error(&MalformedPeriodError{Row: l.sheetRow(i), Value: raw}))
			continue
		}
		if got == m {
			return i, true
		}
	}
	return -1, false
}

// lastAmountDue is the carry-forward value for a new row: the Amount Due of
// the last row that has one, verbatim, or "0".
func (l *ledger) lastAmountDue() string {
	for i := len(l.rows) - 1; i >= 0; i-- {
		if v := strings.TrimSpace(l.get(i, ColAmountDue)); v != "" {
			return v
		}
	}
	return "0"
}

// appendRow writes a new period row directly after the last data row and
// adds it to the cache. Only Month, Amount Due, Comments and (when the
// column exists) MonthKey are set; the derived fields follow in the
// synthesis batch.
func (l *ledger) appendRow(ctx context.Context, m generic.Month, due, comment string) (int, error) {
	values := make([]string, len(l.header))
	values[l.cols[ColMonth]] = l.style.Format(m)
	values[l.cols[ColAmountDue]] = due
	values[l.cols[ColComments]] = comment
	if idx, ok := l.cols[ColMonthKey]; ok {
		values[idx] = m.Key()
	}

	i := len(l.rows)
	if err := l.writeRow(ctx, l.sheetRow(i), values); err != nil {
		return -1, err
	}
	l.rows = append(l.rows, values)
	l.logger.Info("period row created",
		zap.String("period", values[l.cols[ColMonth]]),
		zap.Int("row", l.sheetRow(i)))
	return i, nil
}
