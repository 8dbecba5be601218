package rent

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// PAYMENT - The input event
// =============================================================================

const (
	MinReferenceLen = 8
	MaxReferenceLen = 16
	MaxPhoneLen     = 13
	MaxAccountLen   = 8
)

// Payment is one received payment, as produced by the message parser.
type Payment struct {
	DatePaid    time.Time
	Amount      generic.Amount
	Reference   string
	Payer       string
	Phone       string
	AccountCode string
	Comment     string
}

// NormalizeReference strips non-alphanumerics and upper-cases. References
// outside MinReferenceLen..MaxReferenceLen are rejected.
func NormalizeReference(ref string) (string, error) {
	var b strings.Builder
	for _, r := range ref {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	out := b.String()
	if len(out) < MinReferenceLen || len(out) > MaxReferenceLen {
		return "", fmt.Errorf("%w: %q normalizes to %d characters", ErrInvalidReference, ref, len(out))
	}
	return out, nil
}

// NormalizeAccountCode upper-cases and trims an account code.
func NormalizeAccountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Normalized returns a copy with reference and account code normalized,
// or an error if the payment cannot be applied.
func (p Payment) Normalized() (Payment, error) {
	ref, err := NormalizeReference(p.Reference)
	if err != nil {
		return Payment{}, err
	}
	p.Reference = ref
	p.AccountCode = NormalizeAccountCode(p.AccountCode)
	p.Payer = strings.TrimSpace(p.Payer)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Comment = strings.TrimSpace(p.Comment)
	return p, p.Validate()
}

// Validate checks the input contract.
func (p Payment) Validate() error {
	switch {
	case p.DatePaid.IsZero():
		return fmt.Errorf("%w: date paid is required", ErrInvalidPayment)
	case !p.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidPayment, p.Amount)
	case p.AccountCode == "":
		return fmt.Errorf("%w: account code is required", ErrInvalidPayment)
	case len(p.AccountCode) > MaxAccountLen || !isAlnum(p.AccountCode):
		return fmt.Errorf("%w: account code %q must be up to %d letters/digits", ErrInvalidPayment, p.AccountCode, MaxAccountLen)
	case len(p.Phone) > MaxPhoneLen:
		return fmt.Errorf("%w: phone %q longer than %d", ErrInvalidPayment, p.Phone, MaxPhoneLen)
	}
	return nil
}

// Month is the billing period the payment lands in.
func (p Payment) Month() generic.Month {
	return generic.MonthOf(p.DatePaid)
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}
