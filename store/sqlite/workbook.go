package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/rent-ledger/generic"
)

var _ generic.Workbook = (*Store)(nil)
var _ generic.Sheet = (*Sheet)(nil)

// =============================================================================
// WORKBOOK (generic.Workbook interface)
// =============================================================================

// Sheets returns every sheet in creation order.
func (s *Store) Sheets(ctx context.Context) ([]generic.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, title FROM sheets ORDER BY position ASC")
	if err != nil {
		return nil, wrapErr("list sheets", err)
	}
	defer rows.Close()

	var sheets []generic.Sheet
	for rows.Next() {
		sh := &Sheet{store: s}
		if err := rows.Scan(&sh.id, &sh.title); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		sheets = append(sheets, sh)
	}
	return sheets, rows.Err()
}

// AddSheet creates an empty sheet with a rows x cols grid.
func (s *Store) AddSheet(ctx context.Context, title string, rows, cols int) (generic.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("add sheet %q: grid must be at least 1x1, got %dx%d", title, rows, cols)
	}

	sh := &Sheet{store: s, id: uuid.NewString(), title: title}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sheets (id, title, position, row_count, col_count, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM sheets), ?, ?, ?)
	`, sh.id, title, rows, cols, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", generic.ErrSheetExists, title)
		}
		return nil, wrapErr("add sheet", err)
	}
	return sh, nil
}

// SheetByTitle returns the sheet with this title (case-insensitive).
func (s *Store) SheetByTitle(ctx context.Context, title string) (*Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh := &Sheet{store: s}
	err := s.db.QueryRowContext(ctx, "SELECT id, title FROM sheets WHERE title = ?", title).Scan(&sh.id, &sh.title)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%q: %w", title, generic.ErrSheetNotFound)
	}
	if err != nil {
		return nil, wrapErr("get sheet", err)
	}
	return sh, nil
}

// =============================================================================
// SHEET (generic.Sheet interface)
// =============================================================================

// Sheet is one ledger stored as cells.
type Sheet struct {
	store *Store
	id    string
	title string
}

func (sh *Sheet) ID() string    { return sh.id }
func (sh *Sheet) Title() string { return sh.title }

// ReadAll returns values and bounds in one consistent read.
func (sh *Sheet) ReadAll(ctx context.Context) (generic.Grid, error) {
	s := sh.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grid generic.Grid
	err := s.db.QueryRowContext(ctx,
		"SELECT row_count, col_count FROM sheets WHERE id = ?", sh.id,
	).Scan(&grid.Rows, &grid.Cols)
	if err == sql.ErrNoRows {
		return grid, fmt.Errorf("%q: %w", sh.title, generic.ErrSheetNotFound)
	}
	if err != nil {
		return grid, wrapErr("read sheet", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT row_num, col_num, value FROM cells WHERE sheet_id = ? ORDER BY row_num, col_num", sh.id)
	if err != nil {
		return grid, wrapErr("read cells", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r, c int
		var v string
		if err := rows.Scan(&r, &c, &v); err != nil {
			return grid, fmt.Errorf("failed to scan cell: %w", err)
		}
		for len(grid.Values) < r {
			grid.Values = append(grid.Values, nil)
		}
		row := grid.Values[r-1]
		for len(row) < c {
			row = append(row, "")
		}
		row[c-1] = v
		grid.Values[r-1] = row
	}
	return grid, rows.Err()
}

func (sh *Sheet) UpdateRow(ctx context.Context, row int, values []string) error {
	return sh.write(ctx, "update row", generic.RowCells(row, values))
}

func (sh *Sheet) BatchUpdate(ctx context.Context, cells []generic.CellUpdate) error {
	return sh.write(ctx, "batch update", cells)
}

// write applies cells atomically. A batch that does not fit writes nothing.
func (sh *Sheet) write(ctx context.Context, op string, cells []generic.CellUpdate) error {
	s := sh.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var rows, cols int
	err = tx.QueryRowContext(ctx, "SELECT row_count, col_count FROM sheets WHERE id = ?", sh.id).Scan(&rows, &cols)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%q: %w", sh.title, generic.ErrSheetNotFound)
	}
	if err != nil {
		return wrapErr(op, err)
	}
	if err := generic.CheckBounds(sh.title, rows, cols, cells); err != nil {
		return err
	}

	for _, c := range cells {
		if c.Row < 1 || c.Col < 1 {
			return fmt.Errorf("%s: invalid cell position (%d, %d)", op, c.Row, c.Col)
		}
		if c.Value == "" {
			_, err = tx.ExecContext(ctx,
				"DELETE FROM cells WHERE sheet_id = ? AND row_num = ? AND col_num = ?", sh.id, c.Row, c.Col)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO cells (sheet_id, row_num, col_num, value) VALUES (?, ?, ?, ?)
				ON CONFLICT (sheet_id, row_num, col_num) DO UPDATE SET value = excluded.value
			`, sh.id, c.Row, c.Col, c.Value)
		}
		if err != nil {
			return wrapErr(op, err)
		}
	}
	return wrapErr("commit", tx.Commit())
}

func (sh *Sheet) AddRows(ctx context.Context, n int) error {
	return sh.grow(ctx, "row_count", n)
}

func (sh *Sheet) AddCols(ctx context.Context, n int) error {
	return sh.grow(ctx, "col_count", n)
}

func (sh *Sheet) grow(ctx context.Context, column string, n int) error {
	if n <= 0 {
		return nil
	}
	s := sh.store
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE sheets SET "+column+" = "+column+" + ? WHERE id = ?", n, sh.id)
	if err != nil {
		return wrapErr("grow "+column, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%q: %w", sh.title, generic.ErrSheetNotFound)
	}
	return nil
}

// AddHighlightRules stores rules; a rule already present is left alone.
func (sh *Sheet) AddHighlightRules(ctx context.Context, rules []generic.HighlightRule) error {
	s := sh.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, r := range rules {
		if r.Op != generic.LessThan && r.Op != generic.GreaterThan {
			return fmt.Errorf("%w: comparison %q", generic.ErrRuleRejected, r.Op)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO highlight_rules (sheet_id, rule_key, col_num, from_row, op, threshold, style)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sh.id, r.Key(), r.Col, r.FromRow, string(r.Op), r.Threshold, string(r.Style))
		if err != nil {
			return wrapErr("add highlight rule", err)
		}
	}
	return wrapErr("commit", tx.Commit())
}

// HighlightRules returns the stored rules ordered by key.
func (sh *Sheet) HighlightRules(ctx context.Context) ([]generic.HighlightRule, error) {
	s := sh.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT col_num, from_row, op, threshold, style FROM highlight_rules
		WHERE sheet_id = ? ORDER BY rule_key
	`, sh.id)
	if err != nil {
		return nil, wrapErr("list highlight rules", err)
	}
	defer rows.Close()

	var out []generic.HighlightRule
	for rows.Next() {
		var r generic.HighlightRule
		var op, style string
		if err := rows.Scan(&r.Col, &r.FromRow, &op, &r.Threshold, &style); err != nil {
			return nil, fmt.Errorf("failed to scan highlight rule: %w", err)
		}
		r.Op = generic.Comparison(op)
		r.Style = generic.HighlightStyle(style)
		out = append(out, r)
	}
	return out, rows.Err()
}
