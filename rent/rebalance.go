package rent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// REBALANCE - Keep later rows consistent after an earlier row changes
// =============================================================================

// rebalance recomputes Penalties and Prepayment/Arrears for data rows from
// index start to the end, in physical order, and writes the ones that
// changed in a single batch. Rows without a parseable Month, or with
// neither a payment nor a balance yet, are left as they are.
//
// Only used in values mode; formula mode recomputes in the sheet.
func (s *Session) rebalance(ctx context.Context, l *ledger, start int) (int, error) {
	rules := s.engine.rules
	type change struct {
		idx    int
		values map[Column]string
	}
	var changes []change
	var cells []generic.CellUpdate

	// Balances as they will be after this pass, indexed like l.rows.
	balances := make(map[int]generic.Amount)
	prevOf := func(j int) (generic.Amount, bool) {
		if j == 0 {
			return generic.NewAmount(0), false
		}
		if b, ok := balances[j-1]; ok {
			return b, true
		}
		return l.prevBalance(j)
	}

	for j := start; j < len(l.rows); j++ {
		m, ok := ParseMonthLabel(l.get(j, ColMonth))
		if !ok {
			continue
		}
		if strings.TrimSpace(l.get(j, ColAmountPaid)) == "" && strings.TrimSpace(l.get(j, ColBalance)) == "" {
			continue
		}

		f := rowFigures{
			paid: l.amount(j, ColAmountPaid),
			due:  l.amount(j, ColAmountDue),
		}
		f.prev, f.hasPrev = prevOf(j)
		if l.creditFunded(j) {
			f.credit = f.due
		}
		paidAt, okPaid := ParseDateCell(l.get(j, ColDatePaid))
		dueDate, okDue := ParseDateCell(l.get(j, ColDateDue))
		if !okDue {
			dueDate, okDue = rules.DueDate(m), true
		}
		f.paidAt, f.dueDate, f.dated = paidAt, dueDate, okPaid && okDue

		penalty, balance := rules.settle(f)
		balances[j] = balance

		curPenalty, okP := generic.ParseAmount(l.get(j, ColPenalties))
		curBalance, okB := generic.ParseAmount(l.get(j, ColBalance))
		if okP && okB && curPenalty.Equal(penalty) && curBalance.Equal(balance) &&
			strings.TrimSpace(l.get(j, ColBalance)) != "" {
			continue
		}

		row := l.sheetRow(j)
		values := map[Column]string{ColPenalties: penalty.String(), ColBalance: balance.String()}
		changes = append(changes, change{idx: j, values: values})
		cells = append(cells,
			generic.CellUpdate{Row: row, Col: l.cols[ColPenalties] + 1, Value: values[ColPenalties]},
			generic.CellUpdate{Row: row, Col: l.cols[ColBalance] + 1, Value: values[ColBalance]},
		)
	}

	if len(changes) == 0 {
		return 0, nil
	}
	if err := l.writeCells(ctx, cells); err != nil {
		return 0, err
	}
	for _, c := range changes {
		l.set(c.idx, c.values)
	}
	l.logger.Debug("later rows rebalanced", zap.Int("rows", len(changes)))
	return len(changes), nil
}
