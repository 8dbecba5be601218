package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/rent"
)

var _ rent.Registry = (*Store)(nil)

// =============================================================================
// PAYMENT REGISTRY (rent.Registry interface)
// =============================================================================

// IsProcessed reports whether ref was already applied.
func (s *Store) IsProcessed(ctx context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processed_refs WHERE ref = ?", ref).Scan(&count)
	if err != nil {
		return false, wrapErr("check reference", err)
	}
	return count > 0, nil
}

// Record marks the reference processed and appends the history entry in
// one transaction. A reference recorded twice returns rent.ErrAlreadyProcessed.
func (s *Store) Record(ctx context.Context, e rent.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	appliedAt := e.AppliedAt.UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO processed_refs (ref, processed_at) VALUES (?, ?)",
		e.Payment.Reference, appliedAt,
	); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", rent.ErrAlreadyProcessed, e.Payment.Reference)
		}
		return wrapErr("mark processed", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_history
		(id, session_id, ref, account_code, payer, phone, amount, date_paid,
		 sheet_id, sheet_title, row_number, period_label, paid_after, penalty, balance,
		 auto_periods, comment, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		e.SessionID,
		e.Payment.Reference,
		e.Payment.AccountCode,
		nullString(e.Payment.Payer),
		nullString(e.Payment.Phone),
		e.Payment.Amount.String(),
		e.Payment.DatePaid.Format(time.RFC3339),
		e.Result.SheetID,
		e.Result.SheetTitle,
		e.Result.RowNumber,
		e.Result.PeriodLabel,
		e.Result.PaidAfter.String(),
		e.Result.Penalty.String(),
		e.Result.Balance.String(),
		e.Result.AutoCreatedFuturePeriods,
		nullString(e.Payment.Comment),
		appliedAt,
	)
	if err != nil {
		return wrapErr("append history", err)
	}
	return wrapErr("commit", tx.Commit())
}

// =============================================================================
// HISTORY QUERIES
// =============================================================================

// HistoryRecord is one row of payment_history.
type HistoryRecord struct {
	ID          string
	SessionID   string
	Reference   string
	AccountCode string
	Payer       string
	Phone       string
	Amount      generic.Amount
	DatePaid    time.Time
	SheetID     string
	SheetTitle  string
	RowNumber   int
	PeriodLabel string
	PaidAfter   generic.Amount
	Penalty     generic.Amount
	Balance     generic.Amount
	AutoPeriods int
	Comment     string
	AppliedAt   time.Time
}

// History returns applied payments, newest first. An empty accountCode
// returns every account. limit <= 0 means no limit.
func (s *Store) History(ctx context.Context, accountCode string, limit int) ([]HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, session_id, ref, account_code, payer, phone, amount, date_paid,
		       sheet_id, sheet_title, row_number, period_label, paid_after, penalty, balance,
		       auto_periods, comment, applied_at
		FROM payment_history
		WHERE (? = '' OR account_code = ?)
		ORDER BY applied_at DESC, rowid DESC
	`
	args := []any{accountCode, accountCode}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("failed to query history", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanHistory(rows *sql.Rows) (HistoryRecord, error) {
	var (
		rec                             HistoryRecord
		payer, phone, comment           sql.NullString
		amount, paidAfter, penalty, bal string
		datePaid, appliedAt             string
	)
	err := rows.Scan(
		&rec.ID, &rec.SessionID, &rec.Reference, &rec.AccountCode, &payer, &phone, &amount, &datePaid,
		&rec.SheetID, &rec.SheetTitle, &rec.RowNumber, &rec.PeriodLabel, &paidAfter, &penalty, &bal,
		&rec.AutoPeriods, &comment, &appliedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan history: %w", err)
	}
	rec.Payer = payer.String
	rec.Phone = phone.String
	rec.Comment = comment.String
	rec.Amount = generic.MustParseAmount(amount)
	rec.PaidAfter = generic.MustParseAmount(paidAfter)
	rec.Penalty = generic.MustParseAmount(penalty)
	rec.Balance = generic.MustParseAmount(bal)
	rec.DatePaid, _ = time.Parse(time.RFC3339, datePaid)
	rec.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
	return rec, nil
}
