package rent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// REGISTRY - Caller-side de-duplication and history
// =============================================================================

// HistoryEntry is one applied payment as recorded by a Registry.
type HistoryEntry struct {
	SessionID string
	Payment   Payment
	Result    Result
	AppliedAt time.Time
}

// Registry remembers which references were applied and keeps the payment
// history. Record must mark the reference processed and append the history
// entry together.
type Registry interface {
	IsProcessed(ctx context.Context, ref string) (bool, error)
	Record(ctx context.Context, entry HistoryEntry) error
}

// =============================================================================
// RUNNER - Apply an ordered batch of payments
// =============================================================================

// Outcome is the per-payment result of a run. Err is nil on success.
type Outcome struct {
	Payment Payment
	Result  Result
	Created bool // the tenant ledger was created for this payment
	Err     error
}

// Runner applies batches against one workbook. Each Run is a new Session.
type Runner struct {
	engine   *Engine
	wb       generic.Workbook
	registry Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner builds a runner. registry may be nil, in which case nothing is
// de-duplicated across runs.
func NewRunner(engine *Engine, wb generic.Workbook, registry Registry) *Runner {
	return &Runner{
		engine:   engine,
		wb:       generic.WithRetryWorkbook(wb, engine.retrier),
		registry: registry,
		logger:   engine.logger,
		now:      time.Now,
	}
}

// Run applies payments in order. Per-payment failures land in the returned
// outcomes; the error is only for failures that stop the whole run.
func (r *Runner) Run(ctx context.Context, payments []Payment) ([]Outcome, error) {
	session := r.engine.NewSession()
	dir := NewDirectory(r.wb)
	log := r.logger.With(zap.String("session", session.ID))

	if _, err := dir.Ledgers(ctx); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(payments))
	seen := make(map[string]bool)
	aborted := make(map[string]error) // by account code

	for i, raw := range payments {
		if err := ctx.Err(); err != nil {
			return outcomes[:i], err
		}
		out := &outcomes[i]
		out.Payment = raw

		p, err := raw.Normalized()
		if err != nil {
			out.Err = err
			log.Warn("payment rejected", zap.Int("index", i), zap.Error(err))
			continue
		}
		out.Payment = p

		if seen[p.Reference] {
			out.Err = fmt.Errorf("%w: %s", ErrAlreadyProcessed, p.Reference)
			continue
		}
		if r.registry != nil {
			done, err := r.registry.IsProcessed(ctx, p.Reference)
			if err != nil {
				return outcomes[:i], fmt.Errorf("check reference %s: %w", p.Reference, err)
			}
			if done {
				out.Err = fmt.Errorf("%w: %s", ErrAlreadyProcessed, p.Reference)
				log.Info("reference already processed", zap.String("ref", p.Reference))
				continue
			}
		}

		if cause, ok := aborted[p.AccountCode]; ok {
			out.Err = &LedgerError{AccountCode: p.AccountCode, Op: "apply", Err: fmt.Errorf("%w: %v", ErrLedgerAborted, cause)}
			continue
		}

		sheet, created, err := dir.Resolve(ctx, p.AccountCode)
		if err != nil {
			out.Err = &LedgerError{AccountCode: p.AccountCode, Op: "resolve", Err: err}
			aborted[p.AccountCode] = err
			log.Error("tenant ledger unavailable", zap.String("account", p.AccountCode), zap.Error(err))
			continue
		}
		out.Created = created

		res, err := session.Apply(ctx, sheet, p)
		out.Result = res
		if err != nil {
			out.Err = err
			if IsFatal(err) {
				aborted[p.AccountCode] = err
			}
			continue
		}
		seen[p.Reference] = true

		if r.registry != nil {
			entry := HistoryEntry{SessionID: session.ID, Payment: p, Result: res, AppliedAt: r.now()}
			if err := r.registry.Record(ctx, entry); err != nil {
				out.Err = fmt.Errorf("record history: %w", err)
				log.Error("payment applied but not recorded", zap.String("ref", p.Reference), zap.Error(err))
			}
		}
	}
	return outcomes, nil
}

// Summary counts outcomes by kind.
type Summary struct {
	Applied    int
	Duplicates int
	Rejected   int
	Failed     int
}

func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch {
		case o.Err == nil:
			s.Applied++
		case errors.Is(o.Err, ErrAlreadyProcessed):
			s.Duplicates++
		case IsClientError(o.Err):
			s.Rejected++
		default:
			s.Failed++
		}
	}
	return s
}
