/*
retry.go - Bounded exponential backoff for backend calls

PURPOSE:
  Every remote read and write goes through a Retrier. On a rate-limit signal
  the call is retried after 1, 2, 4, 8, 16, 32 base units (63 in total); a
  seventh and final attempt surfaces its error as *RateLimitError. Any other
  error propagates on the first occurrence.

SCHEDULE (BaseDelay = 1s, MaxRetries = 6):
  attempt 1  fail -> sleep 1s
  attempt 2  fail -> sleep 2s
  ...
  attempt 6  fail -> sleep 32s
  attempt 7  fail -> *RateLimitError

  Sleeps are blocking waits that honour ctx cancellation.

USAGE:
  r := generic.NewRetrier(generic.DefaultRetryConfig(), logger)
  sheet = generic.WithRetry(sheet, r)

SEE ALSO:
  - errors.go: ErrRateLimited, RateLimitError
*/
package generic

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// RETRIER
// =============================================================================

// RetryConfig controls the backoff schedule.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 6, BaseDelay: time.Second}
}

// Retrier retries rate-limited calls with exponential backoff.
type Retrier struct {
	cfg    RetryConfig
	logger *zap.Logger

	// Sleep blocks for d. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each backoff sleep. Optional.
	OnRetry func(op string, attempt int, delay time.Duration)
}

func NewRetrier(cfg RetryConfig, logger *zap.Logger) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{cfg: cfg, logger: logger, Sleep: sleepContext}
}

// Do runs fn, retrying while it returns a rate-limit signal.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	delay := r.cfg.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt > r.cfg.MaxRetries {
			return &RateLimitError{Op: op, Attempts: attempt, Err: err}
		}

		r.logger.Warn("backend rate limited, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		if r.OnRetry != nil {
			r.OnRetry(op, attempt, delay)
		}
		if serr := r.Sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// RETRYING SHEET - Decorator applying the Retrier to every call
// =============================================================================

type retryingSheet struct {
	inner Sheet
	r     *Retrier
}

// WithRetry wraps every call on s with r. Wrapping twice is a no-op.
func WithRetry(s Sheet, r *Retrier) Sheet {
	if _, ok := s.(*retryingSheet); ok {
		return s
	}
	return &retryingSheet{inner: s, r: r}
}

func (s *retryingSheet) ID() string    { return s.inner.ID() }
func (s *retryingSheet) Title() string { return s.inner.Title() }

func (s *retryingSheet) ReadAll(ctx context.Context) (Grid, error) {
	var g Grid
	err := s.r.Do(ctx, "read_all", func() error {
		var err error
		g, err = s.inner.ReadAll(ctx)
		return err
	})
	return g, err
}

func (s *retryingSheet) UpdateRow(ctx context.Context, row int, values []string) error {
	return s.r.Do(ctx, "update_row", func() error { return s.inner.UpdateRow(ctx, row, values) })
}

func (s *retryingSheet) BatchUpdate(ctx context.Context, cells []CellUpdate) error {
	return s.r.Do(ctx, "batch_update", func() error { return s.inner.BatchUpdate(ctx, cells) })
}

func (s *retryingSheet) AddRows(ctx context.Context, n int) error {
	return s.r.Do(ctx, "add_rows", func() error { return s.inner.AddRows(ctx, n) })
}

func (s *retryingSheet) AddCols(ctx context.Context, n int) error {
	return s.r.Do(ctx, "add_cols", func() error { return s.inner.AddCols(ctx, n) })
}

func (s *retryingSheet) AddHighlightRules(ctx context.Context, rules []HighlightRule) error {
	return s.r.Do(ctx, "add_highlight_rules", func() error { return s.inner.AddHighlightRules(ctx, rules) })
}

// =============================================================================
// RETRYING WORKBOOK - Sheets handed out are wrapped as well
// =============================================================================

type retryingWorkbook struct {
	inner Workbook
	r     *Retrier
}

// WithRetryWorkbook wraps w and every Sheet it returns.
func WithRetryWorkbook(w Workbook, r *Retrier) Workbook {
	if _, ok := w.(*retryingWorkbook); ok {
		return w
	}
	return &retryingWorkbook{inner: w, r: r}
}

func (w *retryingWorkbook) Sheets(ctx context.Context) ([]Sheet, error) {
	var sheets []Sheet
	err := w.r.Do(ctx, "list_sheets", func() error {
		var err error
		sheets, err = w.inner.Sheets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, s := range sheets {
		sheets[i] = WithRetry(s, w.r)
	}
	return sheets, nil
}

func (w *retryingWorkbook) AddSheet(ctx context.Context, title string, rows, cols int) (Sheet, error) {
	var sheet Sheet
	err := w.r.Do(ctx, "add_sheet", func() error {
		var err error
		sheet, err = w.inner.AddSheet(ctx, title, rows, cols)
		return err
	})
	if err != nil {
		return nil, err
	}
	return WithRetry(sheet, w.r), nil
}
