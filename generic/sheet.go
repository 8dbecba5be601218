/*
sheet.go - Tabular backend interface

PURPOSE:
  Defines the contract between the reconciliation engine and whatever holds
  the ledgers: a hosted spreadsheet, a local workbook file, a SQL table of
  cells, or memory. Everything is addressed by position (1-based row and
  column); nothing requires a sheet-name qualifier.

KEY INTERFACES:
  Sheet:    One tenant ledger (read all, positional writes, grid growth, rules)
  Workbook: The collection of sheets (list, add)

CALL BUDGET:
  The interface is shaped for a rate-limited remote:
  - ReadAll returns values AND grid bounds in one call
  - BatchUpdate writes any number of cells in one call
  - UpdateRow writes a contiguous row prefix in one call

FORMULAS:
  A cell value starting with "=" is an expression. Backends that can evaluate
  expressions store it as such; the rest store the text verbatim.

CAPACITY:
  A sheet has a fixed grid (Rows x Cols). A write outside it fails with
  *GridCapacityError. Callers grow the grid with AddRows/AddCols first.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory, for tests and dry runs
  - store/sqlite/workbook.go: SQLite tables of cells
  - store/xlsx/xlsx.go:       Excel workbook file (excelize)

SEE ALSO:
  - retry.go: Retrying decorator for any Sheet
*/
package generic

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// GRID - What a full read returns
// =============================================================================

// Grid is a full snapshot of a sheet. Values may be ragged (short rows) and
// usually stop at the last non-empty row; Rows/Cols are the real bounds.
type Grid struct {
	Values [][]string
	Rows   int
	Cols   int
}

// CellUpdate is one positional write. Row and Col are 1-based.
type CellUpdate struct {
	Row   int
	Col   int
	Value string
}

// =============================================================================
// HIGHLIGHT RULES - Conditional formatting
// =============================================================================

type Comparison string

const (
	LessThan    Comparison = "less_than"
	GreaterThan Comparison = "greater_than"
)

// HighlightStyle names a visual marker. Backends map it to colours.
type HighlightStyle string

const (
	StyleArrears HighlightStyle = "arrears" // light red
	StylePenalty HighlightStyle = "penalty" // light yellow
)

// HighlightRule marks cells of one column, from FromRow downwards, whose
// numeric value compares against Threshold.
type HighlightRule struct {
	Col       int
	FromRow   int
	Op        Comparison
	Threshold string
	Style     HighlightStyle
}

// Key identifies a rule for de-duplication.
func (r HighlightRule) Key() string {
	return fmt.Sprintf("%d:%d:%s:%s:%s", r.Col, r.FromRow, r.Op, r.Threshold, r.Style)
}

// =============================================================================
// SHEET / WORKBOOK
// =============================================================================

// Sheet is one ledger in the backend.
type Sheet interface {
	// ID is the stable identity of the sheet (survives renames where the backend allows).
	ID() string

	// Title is the human-visible sheet name.
	Title() string

	// ReadAll returns every value plus current bounds. One remote call.
	ReadAll(ctx context.Context) (Grid, error)

	// UpdateRow writes values into row starting at column 1.
	UpdateRow(ctx context.Context, row int, values []string) error

	// BatchUpdate writes all cells in one call. All-or-nothing on capacity errors.
	BatchUpdate(ctx context.Context, cells []CellUpdate) error

	// AddRows / AddCols grow the grid.
	AddRows(ctx context.Context, n int) error
	AddCols(ctx context.Context, n int) error

	// AddHighlightRules registers conditional formatting. Registering the
	// same rule twice must not duplicate it.
	AddHighlightRules(ctx context.Context, rules []HighlightRule) error
}

// Workbook holds the sheets.
type Workbook interface {
	Sheets(ctx context.Context) ([]Sheet, error)
	AddSheet(ctx context.Context, title string, rows, cols int) (Sheet, error)
}

// =============================================================================
// HELPERS
// =============================================================================

// A1 renders a 1-based (row, col) position as an A1 reference, e.g. (2, 3) -> "C2".
func A1(row, col int) string {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", row, col)
	}
	return ref
}

// CheckBounds returns a *GridCapacityError if any cell falls outside rows x cols.
func CheckBounds(sheet string, rows, cols int, cells []CellUpdate) error {
	needRows, needCols := rows, cols
	for _, c := range cells {
		if c.Row > needRows {
			needRows = c.Row
		}
		if c.Col > needCols {
			needCols = c.Col
		}
	}
	if needRows > rows || needCols > cols {
		return &GridCapacityError{Sheet: sheet, Rows: rows, Cols: cols, NeedRows: needRows, NeedCols: needCols}
	}
	return nil
}

// RowCells expands a row write into positional cells.
func RowCells(row int, values []string) []CellUpdate {
	cells := make([]CellUpdate, len(values))
	for i, v := range values {
		cells[i] = CellUpdate{Row: row, Col: i + 1, Value: v}
	}
	return cells
}
