/*
errors.go - Centralized error types shared by backends and the engine

PURPOSE:
  All backend-level error types in one place for consistency and discoverability.
  Backends return these; the rent package wraps them with ledger context.

ERROR CATEGORIES:
  1. Throttling errors - The backend asked us to slow down (retryable)
  2. Capacity errors   - A write fell outside the sheet's current grid
  3. Lookup errors     - A sheet or workbook entry does not exist

USAGE:
  Backends signal throttling by returning (or wrapping) ErrRateLimited:

    if resp.StatusCode == http.StatusTooManyRequests {
        return fmt.Errorf("values.batchUpdate: %w", generic.ErrRateLimited)
    }

  Callers test with errors.Is / errors.As:

    var capErr *generic.GridCapacityError
    if errors.As(err, &capErr) {
        sheet.AddRows(ctx, capErr.NeedRows-capErr.Rows)
    }

SEE ALSO:
  - retry.go: Consumes ErrRateLimited
  - rent/errors.go: Ledger-level errors wrapping these
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateLimited is the backend's quota signal. It is the only error the
	// retry wrapper retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrGridCapacity is returned when a write addresses a row or column past
	// the sheet's current bounds. Backends never truncate silently.
	ErrGridCapacity = errors.New("write outside grid bounds")

	// ErrSheetNotFound is returned when a sheet title does not exist.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrSheetExists is returned when adding a sheet whose title is taken.
	ErrSheetExists = errors.New("sheet already exists")

	// ErrRuleRejected is returned when the backend refuses a highlight rule.
	ErrRuleRejected = errors.New("highlight rule rejected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateLimitError is surfaced once the retry budget is spent.
type RateLimitError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: still rate limited after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// GridCapacityError describes how far a write overshot the grid.
// Rows/Cols are the current bounds, NeedRows/NeedCols what the write required.
type GridCapacityError struct {
	Sheet    string
	Rows     int
	Cols     int
	NeedRows int
	NeedCols int
}

func (e *GridCapacityError) Error() string {
	return fmt.Sprintf("sheet %q: write needs %dx%d but grid is %dx%d",
		e.Sheet, e.NeedRows, e.NeedCols, e.Rows, e.Cols)
}

func (e *GridCapacityError) Unwrap() error {
	return ErrGridCapacity
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error is a throttling signal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsNotFound returns true if the error indicates a missing sheet.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSheetNotFound)
}
