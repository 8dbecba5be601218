package rent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrSchema is returned when a ledger still lacks required columns after
	// normalization. Fatal for that ledger.
	ErrSchema = errors.New("ledger schema incomplete")

	// ErrMalformedPeriod marks a Month cell that does not parse. Never fatal.
	ErrMalformedPeriod = errors.New("malformed period")

	// ErrInvalidPayment is returned by Payment.Validate.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrInvalidReference is returned when a reference is not 8..16 alphanumerics.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrLedgerAborted is returned for payments skipped because an earlier
	// payment hit a fatal error on the same ledger.
	ErrLedgerAborted = errors.New("ledger aborted earlier in this run")

	// ErrAlreadyProcessed is returned for references the registry already holds.
	ErrAlreadyProcessed = errors.New("reference already processed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// SchemaError names the canonical columns that could not be resolved.
type SchemaError struct {
	Sheet   string
	Missing []Column
}

func (e *SchemaError) Error() string {
	keys := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		keys[i] = c.Key()
	}
	return fmt.Sprintf("sheet %q: missing required columns: %s", e.Sheet, strings.Join(keys, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// MalformedPeriodError is a Month cell that cannot be parsed to (year, month).
type MalformedPeriodError struct {
	Row   int
	Value string
}

func (e *MalformedPeriodError) Error() string {
	return fmt.Sprintf("row %d: cannot parse period %q", e.Row, e.Value)
}

func (e *MalformedPeriodError) Unwrap() error { return ErrMalformedPeriod }

// LedgerError carries the ledger and tenant identity of a fatal failure.
type LedgerError struct {
	SheetID     string
	SheetTitle  string
	AccountCode string
	Op          string
	Err         error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %q (sheet %s, account %s): %s: %v",
		e.SheetTitle, e.SheetID, e.AccountCode, e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal reports whether err should abort the rest of a ledger's payments.
// Validation failures and duplicates only affect the payment at hand.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidPayment) &&
		!errors.Is(err, ErrInvalidReference) &&
		!errors.Is(err, ErrAlreadyProcessed)
}

// IsClientError returns true if the error is due to bad input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayment) || errors.Is(err, ErrInvalidReference)
}

// IsBackpressure returns true if the backend ran out of retry budget.
func IsBackpressure(err error) bool {
	var rl *generic.RateLimitError
	return errors.As(err, &rl)
}
