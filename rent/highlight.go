package rent

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// highlightRules marks arrears (balance < 0) and charged penalties (> 0)
// over the data range.
func (l *ledger) highlightRules() []generic.HighlightRule {
	from := l.firstDataRow()
	return []generic.HighlightRule{
		{Col: l.cols[ColBalance] + 1, FromRow: from, Op: generic.LessThan, Threshold: "0", Style: generic.StyleArrears},
		{Col: l.cols[ColPenalties] + 1, FromRow: from, Op: generic.GreaterThan, Threshold: "0", Style: generic.StylePenalty},
	}
}

// highlight registers the rules once per ledger per session. A rejection is
// logged and never retried within the session.
func (s *Session) highlight(ctx context.Context, l *ledger) {
	if l.highlighted {
		return
	}
	l.highlighted = true
	if err := l.sheet.AddHighlightRules(ctx, l.highlightRules()); err != nil {
		l.logger.Warn("highlight rules not applied", zap.Error(err))
		return
	}
	l.logger.Debug("highlight rules applied", zap.Int("from_row", l.firstDataRow()))
}
