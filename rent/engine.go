/*
Package rent reconciles received rent payments into per-tenant monthly ledgers.

PURPOSE:
  Each tenant has one ledger sheet with one row per billing month. Applying
  a payment locates (or creates) the month's row, accumulates the amount and
  reference, derives the penalty and rolling balance, and, when the payment
  covers whole future months, pre-fills those rows too.

FLOW PER PAYMENT:
  1. Normalize and validate the payment
  2. Load the ledger into the session cache (first touch only)
  3. Find the period row, or append it with Amount Due carried forward
  4. Write the seven derived fields in one batch
  5. Pre-fill future months from any surplus
  6. Rebalance later rows (values mode)
  7. Register highlight rules (once per ledger)

FAILURES:
  Invalid input fails only that payment. Anything else (schema, exhausted
  retries, grid growth) aborts the ledger for the rest of the session; the
  error carries the ledger and tenant identity.

USAGE:
  engine, _ := rent.NewEngine(rent.DefaultRules(), rent.WithLogger(logger))
  session := engine.NewSession()
  res, err := session.Apply(ctx, sheet, payment)

SEE ALSO:
  - session.go: Ledger cache and write path
  - synth.go:   Penalty and balance rules
  - runner.go:  Batch application with de-duplication and history
*/
package rent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the rules and collaborators shared by every session.
type Engine struct {
	rules   Rules
	logger  *zap.Logger
	retrier *generic.Retrier
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRetrier sets the backoff used for every backend call.
func WithRetrier(r *generic.Retrier) Option {
	return func(e *Engine) { e.retrier = r }
}

func NewEngine(rules Rules, opts ...Option) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	e := &Engine{rules: rules}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.retrier == nil {
		e.retrier = generic.NewRetrier(generic.DefaultRetryConfig(), e.logger)
	}
	return e, nil
}

func (e *Engine) Rules() Rules { return e.rules }

// =============================================================================
// RESULT
// =============================================================================

// Result summarizes one applied payment.
type Result struct {
	SheetID     string
	SheetTitle  string
	AccountCode string
	Reference   string

	RowNumber   int // 1-based sheet row
	PeriodLabel string
	CreatedRow  bool

	PaidBefore generic.Amount
	PaidAfter  generic.Amount
	DateDue    string
	Penalty    generic.Amount
	Balance    generic.Amount

	AutoCreatedFuturePeriods int
	RebalancedRows           int
}

// =============================================================================
// APPLY
// =============================================================================

// Apply reconciles one payment into sheet.
func (s *Session) Apply(ctx context.Context, sheet generic.Sheet, p Payment) (Result, error) {
	p, err := p.Normalized()
	if err != nil {
		return Result{}, err
	}
	sheet = generic.WithRetry(sheet, s.engine.retrier)

	wrap := func(op string, err error) error {
		return &LedgerError{
			SheetID:     sheet.ID(),
			SheetTitle:  sheet.Title(),
			AccountCode: p.AccountCode,
			Op:          op,
			Err:         err,
		}
	}

	l, err := s.ledger(ctx, sheet)
	if err != nil {
		return Result{}, wrap("load", err)
	}
	if l.aborted != nil {
		return Result{}, wrap("apply", fmt.Errorf("%w: %v", ErrLedgerAborted, l.aborted))
	}

	res, op, err := s.apply(ctx, l, p)
	if err != nil {
		l.aborted = err
		l.logger.Error("ledger aborted", zap.String("op", op), zap.String("ref", p.Reference), zap.Error(err))
		return res, wrap(op, err)
	}
	return res, nil
}

func (s *Session) apply(ctx context.Context, l *ledger, p Payment) (Result, string, error) {
	rules := s.engine.rules
	m := p.Month()

	res := Result{
		SheetID:     l.sheet.ID(),
		SheetTitle:  l.sheet.Title(),
		AccountCode: p.AccountCode,
		Reference:   p.Reference,
	}

	i, found := l.find(m)
	if !found {
		var err error
		i, err = l.appendRow(ctx, m, l.lastAmountDue(), rules.DefaultComment)
		if err != nil {
			return res, "create_row", err
		}
		res.CreatedRow = true
	}

	syn := s.synthesize(l, i, m, p, l.creditFunded(i))
	if err := l.writeCells(ctx, syn.cells); err != nil {
		return res, "write_row", err
	}
	l.set(i, syn.values)

	res.RowNumber = l.sheetRow(i)
	res.PeriodLabel = syn.label
	res.PaidBefore = syn.paidBefore
	res.PaidAfter = syn.paidAfter
	res.DateDue = syn.values[ColDateDue]
	res.Penalty = syn.penalty
	res.Balance = syn.balance

	if rules.AutoConsume {
		n, err := s.consumeSurplus(ctx, l, syn, m, p)
		res.AutoCreatedFuturePeriods = n
		if err != nil {
			return res, "prepay", err
		}
	}

	if rules.Rebalance && !rules.Formulas && i+1 < len(l.rows) {
		n, err := s.rebalance(ctx, l, i+1)
		if err != nil {
			return res, "rebalance", err
		}
		res.RebalancedRows = n
	}

	s.highlight(ctx, l)

	l.logger.Info("payment applied",
		zap.String("ref", p.Reference),
		zap.String("period", res.PeriodLabel),
		zap.Int("row", res.RowNumber),
		zap.String("paid_after", res.PaidAfter.String()),
		zap.String("balance", res.Balance.String()),
		zap.Int("auto_periods", res.AutoCreatedFuturePeriods))
	return res, "", nil
}
