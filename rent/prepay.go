package rent

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// PREPAYMENT - Turn a surplus into pre-filled future periods
// =============================================================================

// consumeSurplus creates one future row per whole monthly due covered by the
// primary row's balance, up to MaxAutoPeriods. It stops early when the next
// month already has a row. Returns how many rows were created.
func (s *Session) consumeSurplus(ctx context.Context, l *ledger, primary synthesis, m generic.Month, p Payment) (int, error) {
	rules := s.engine.rules
	due := primary.due
	estimate := primary.balance

	created := 0
	for due.IsPositive() && estimate.GreaterOrEqual(due) && created < rules.MaxAutoPeriods {
		m = m.Next()
		if _, exists := l.find(m); exists {
			l.logger.Debug("prepayment stops at existing period", zap.String("period", m.Key()))
			break
		}

		i, err := l.appendRow(ctx, m, due.String(), rules.AutoComment)
		if err != nil {
			return created, err
		}
		cover := Payment{DatePaid: p.DatePaid, Amount: due, Reference: p.Reference}
		syn := s.synthesize(l, i, m, cover, true)
		if err := l.writeCells(ctx, syn.cells); err != nil {
			return created, err
		}
		l.set(i, syn.values)

		estimate = estimate.Sub(due)
		created++
	}
	if created > 0 {
		l.logger.Info("surplus applied to future periods",
			zap.Int("periods", created),
			zap.String("monthly_due", due.String()),
			zap.String("remaining", estimate.String()))
	}
	return created, nil
}
