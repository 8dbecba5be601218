package rent

import (
	"fmt"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// RULES - Business constants of the ledger
// =============================================================================

// Rules holds the tunable business rules. Zero values are not meaningful;
// start from DefaultRules().
type Rules struct {
	// DueDay is the day of month rent falls due ("Date due" is always this day).
	DueDay int

	// GraceDays is how many days after DueDay a payment is still on time.
	// Paid strictly after DueDay+GraceDays is late.
	GraceDays int

	// PenaltyFee is charged on a late payment that leaves the period in arrears.
	PenaltyFee generic.Amount

	// AutoConsume turns a surplus worth whole periods into pre-filled future rows.
	AutoConsume bool

	// MaxAutoPeriods caps how many rows one payment may pre-fill.
	MaxAutoPeriods int

	// Formulas writes Penalties and Prepayment/Arrears as live spreadsheet
	// expressions instead of computed numbers.
	Formulas bool

	// Rebalance recomputes later rows after a write (values mode only).
	Rebalance bool

	// DefaultComment is what new rows get in Comments.
	DefaultComment string

	// AutoComment labels rows the prepayment loop created. The engine does
	// not read it back.
	AutoComment string

	// HeaderScanRows and HeaderMinScore drive header-row discovery.
	HeaderScanRows int
	HeaderMinScore int
}

func DefaultRules() Rules {
	return Rules{
		DueDay:         5,
		GraceDays:      2,
		PenaltyFee:     generic.NewAmount(3000),
		AutoConsume:    true,
		MaxAutoPeriods: 24,
		Formulas:       false,
		Rebalance:      true,
		DefaultComment: "None",
		AutoComment:    "Auto-filled from prepayment",
		HeaderScanRows: 30,
		HeaderMinScore: 3,
	}
}

// Validate rejects rules the engine cannot run with.
func (r Rules) Validate() error {
	switch {
	case r.DueDay < 1 || r.DueDay > 28:
		return fmt.Errorf("due day must be 1..28, got %d", r.DueDay)
	case r.GraceDays < 0:
		return fmt.Errorf("grace days must be >= 0, got %d", r.GraceDays)
	case r.PenaltyFee.IsNegative():
		return fmt.Errorf("penalty fee must be >= 0, got %s", r.PenaltyFee)
	case r.MaxAutoPeriods < 0:
		return fmt.Errorf("max auto periods must be >= 0, got %d", r.MaxAutoPeriods)
	case r.DefaultComment == "":
		return fmt.Errorf("default comment must not be empty")
	case r.AutoComment == "" || r.AutoComment == r.DefaultComment:
		return fmt.Errorf("auto comment must be non-empty and differ from the default comment")
	case r.HeaderScanRows < 1:
		return fmt.Errorf("header scan rows must be >= 1, got %d", r.HeaderScanRows)
	}
	return nil
}
