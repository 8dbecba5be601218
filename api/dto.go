/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Amounts travel as
  strings ("12000", "-3000") so no float rounding reaches a client.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Payments:
    PaymentRequest, ApplyRequest, OutcomeDTO, ApplyResponse

  Ledgers:
    LedgerDTO, SnapshotDTO

  History:
    HistoryDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/store/sqlite"
)

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequest is one payment as the message parser reports it.
// Amount may be a JSON number or a string such as "KES 12,000".
type PaymentRequest struct {
	DatePaid    string          `json:"date_paid"`
	Amount      json.RawMessage `json:"amount"`
	Reference   string          `json:"reference"`
	Payer       string          `json:"payer,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	AccountCode string          `json:"account_code"`
	Comment     string          `json:"comment,omitempty"`
}

// ApplyRequest is an ordered batch of payments.
type ApplyRequest struct {
	Payments []PaymentRequest `json:"payments"`
}

// ToPayment converts the request. Reference and account code are
// normalized later by the engine.
func (p PaymentRequest) ToPayment() (rent.Payment, error) {
	paid, ok := rent.ParseDateCell(p.DatePaid)
	if !ok {
		return rent.Payment{}, fmt.Errorf("date_paid: cannot parse %q", p.DatePaid)
	}

	raw := string(p.Amount)
	var s string
	if err := json.Unmarshal(p.Amount, &s); err == nil {
		raw = s
	}
	amount, ok := generic.ParseAmount(raw)
	if !ok || raw == "" {
		return rent.Payment{}, fmt.Errorf("amount: cannot parse %s", raw)
	}

	return rent.Payment{
		DatePaid:    paid,
		Amount:      amount,
		Reference:   p.Reference,
		Payer:       p.Payer,
		Phone:       p.Phone,
		AccountCode: p.AccountCode,
		Comment:     p.Comment,
	}, nil
}

// OutcomeDTO reports one payment of a batch.
type OutcomeDTO struct {
	Reference   string `json:"reference"`
	AccountCode string `json:"account_code"`
	Status      string `json:"status"` // applied, duplicate, rejected, failed
	Error       string `json:"error,omitempty"`

	SheetTitle     string `json:"sheet_title,omitempty"`
	LedgerCreated  bool   `json:"ledger_created,omitempty"`
	RowNumber      int    `json:"row_number,omitempty"`
	Period         string `json:"period,omitempty"`
	CreatedRow     bool   `json:"created_row,omitempty"`
	PaidBefore     string `json:"paid_before,omitempty"`
	PaidAfter      string `json:"paid_after,omitempty"`
	DateDue        string `json:"date_due,omitempty"`
	Penalty        string `json:"penalty,omitempty"`
	Balance        string `json:"balance,omitempty"`
	FuturePeriods  int    `json:"future_periods,omitempty"`
	RebalancedRows int    `json:"rebalanced_rows,omitempty"`
}

// SummaryDTO counts a batch by outcome.
type SummaryDTO struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}

type ApplyResponse struct {
	Summary  SummaryDTO   `json:"summary"`
	Outcomes []OutcomeDTO `json:"outcomes"`
}

func toOutcomeDTO(o rent.Outcome) OutcomeDTO {
	dto := OutcomeDTO{
		Reference:   o.Payment.Reference,
		AccountCode: o.Payment.AccountCode,
		Status:      outcomeLabel(o.Err),
	}
	if o.Err != nil {
		dto.Error = o.Err.Error()
	}
	if o.Result.SheetTitle == "" {
		return dto
	}
	res := o.Result
	dto.SheetTitle = res.SheetTitle
	dto.LedgerCreated = o.Created
	dto.RowNumber = res.RowNumber
	dto.Period = res.PeriodLabel
	dto.CreatedRow = res.CreatedRow
	dto.PaidBefore = res.PaidBefore.String()
	dto.PaidAfter = res.PaidAfter.String()
	dto.DateDue = res.DateDue
	dto.Penalty = res.Penalty.String()
	dto.Balance = res.Balance.String()
	dto.FuturePeriods = res.AutoCreatedFuturePeriods
	dto.RebalancedRows = res.RebalancedRows
	return dto
}

// =============================================================================
// LEDGERS
// =============================================================================

type LedgerDTO struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SnapshotDTO is a ledger as normalization would leave it.
type SnapshotDTO struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// =============================================================================
// HISTORY
// =============================================================================

type HistoryDTO struct {
	Reference   string `json:"reference"`
	AccountCode string `json:"account_code"`
	Payer       string `json:"payer,omitempty"`
	Amount      string `json:"amount"`
	DatePaid    string `json:"date_paid"`
	SheetTitle  string `json:"sheet_title"`
	RowNumber   int    `json:"row_number"`
	Period      string `json:"period"`
	PaidAfter   string `json:"paid_after"`
	Penalty     string `json:"penalty"`
	Balance     string `json:"balance"`
	AutoPeriods int    `json:"auto_periods"`
	AppliedAt   string `json:"applied_at"`
	SessionID   string `json:"session_id"`
}

func toHistoryDTO(r sqlite.HistoryRecord) HistoryDTO {
	return HistoryDTO{
		Reference:   r.Reference,
		AccountCode: r.AccountCode,
		Payer:       r.Payer,
		Amount:      r.Amount.String(),
		DatePaid:    r.DatePaid.Format(time.RFC3339),
		SheetTitle:  r.SheetTitle,
		RowNumber:   r.RowNumber,
		Period:      r.PeriodLabel,
		PaidAfter:   r.PaidAfter.String(),
		Penalty:     r.Penalty.String(),
		Balance:     r.Balance.String(),
		AutoPeriods: r.AutoPeriods,
		AppliedAt:   r.AppliedAt.Format(time.RFC3339),
		SessionID:   r.SessionID,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
