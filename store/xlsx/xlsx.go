/*
Package xlsx provides a workbook backed by a local .xlsx file.

PURPOSE:
  Lets the engine reconcile a spreadsheet on disk, the same file a property
  manager opens in a desktop spreadsheet program. Every sheet in the file is
  a generic.Sheet; the file is saved after every successful write.

GRID BOUNDS:
  An .xlsx sheet has no hard grid, so bounds are kept in the sheet's
  dimension reference (A1:I100). Writes past the recorded bounds fail with
  *generic.GridCapacityError exactly like a hosted spreadsheet, and AddRows
  or AddCols move the bound.

FORMULAS:
  Values starting with "=" are written as formulas. Reads return the cached
  result when the file has one and the locally calculated result otherwise.

HIGHLIGHTS:
  Highlight rules become conditional formats over the column from FromRow to
  the last sheet row. A rule already present on that range is skipped.

USAGE:
  wb, err := xlsx.Open("./rent.xlsx")
  if err != nil {
      log.Fatal(err)
  }
  defer wb.Close()
*/
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/warp/rent-ledger/generic"
)

var _ generic.Workbook = (*Workbook)(nil)
var _ generic.Sheet = (*Sheet)(nil)

// highlight fills, keyed by style
var fills = map[generic.HighlightStyle]string{
	generic.StyleArrears: "#F4CCCC",
	generic.StylePenalty: "#FFF2CC",
}

// criteria maps a comparison to the conditional-format criteria.
var criteria = map[generic.Comparison]string{
	generic.LessThan:    "<",
	generic.GreaterThan: ">",
}

// Workbook is an .xlsx file holding tenant ledgers.
type Workbook struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	fresh  bool // file was created here and still has its placeholder sheet
	styles map[generic.HighlightStyle]int
}

// Open loads the workbook at path, creating an empty one if the file does
// not exist.
func Open(path string) (*Workbook, error) {
	w := &Workbook{path: path, styles: make(map[generic.HighlightStyle]int)}

	f, err := excelize.OpenFile(path)
	switch {
	case err == nil:
		w.file = f
	case errors.Is(err, os.ErrNotExist):
		w.file = excelize.NewFile()
		w.fresh = true
	default:
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return w, nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Sheets returns every sheet in tab order.
func (w *Workbook) Sheets(ctx context.Context) ([]generic.Sheet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sheets []generic.Sheet
	for _, name := range w.file.GetSheetList() {
		if w.fresh && name == placeholderSheet {
			continue
		}
		sheets = append(sheets, &Sheet{wb: w, name: name})
	}
	return sheets, nil
}

const placeholderSheet = "Sheet1"

// AddSheet creates a sheet with a rows x cols grid and saves the file.
func (w *Workbook) AddSheet(ctx context.Context, title string, rows, cols int) (generic.Sheet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("add sheet %q: grid must be at least 1x1, got %dx%d", title, rows, cols)
	}

	for _, name := range w.file.GetSheetList() {
		if strings.EqualFold(name, title) && !(w.fresh && name == placeholderSheet) {
			return nil, fmt.Errorf("%w: %s", generic.ErrSheetExists, title)
		}
	}

	if w.fresh {
		if err := w.file.SetSheetName(placeholderSheet, title); err != nil {
			return nil, fmt.Errorf("add sheet %q: %w", title, err)
		}
		w.fresh = false
	} else if _, err := w.file.NewSheet(title); err != nil {
		return nil, fmt.Errorf("add sheet %q: %w", title, err)
	}

	sh := &Sheet{wb: w, name: title}
	if err := sh.setBounds(rows, cols); err != nil {
		return nil, err
	}
	if err := w.save(); err != nil {
		return nil, err
	}
	return sh, nil
}

func (w *Workbook) save() error {
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}

// conditionalStyle returns the style id for a highlight, creating it once.
func (w *Workbook) conditionalStyle(style generic.HighlightStyle) (int, error) {
	if id, ok := w.styles[style]; ok {
		return id, nil
	}
	color, ok := fills[style]
	if !ok {
		return 0, fmt.Errorf("%w: style %q", generic.ErrRuleRejected, style)
	}
	id, err := w.file.NewConditionalStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	if err != nil {
		return 0, fmt.Errorf("create style %s: %w", style, err)
	}
	w.styles[style] = id
	return id, nil
}

// =============================================================================
// SHEET
// =============================================================================

// Sheet is one tab of the workbook. The tab name doubles as its id.
type Sheet struct {
	wb   *Workbook
	name string
}

func (sh *Sheet) ID() string    { return sh.name }
func (sh *Sheet) Title() string { return sh.name }

// ReadAll returns raw cell values and the recorded bounds.
func (sh *Sheet) ReadAll(ctx context.Context) (generic.Grid, error) {
	w := sh.wb
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return generic.Grid{}, err
	}

	rows, err := w.file.GetRows(sh.name, excelize.Options{RawCellValue: true})
	if err != nil {
		return generic.Grid{}, fmt.Errorf("read %q: %w", sh.name, err)
	}
	grid := generic.Grid{Values: rows}
	grid.Rows, grid.Cols, err = sh.bounds()
	if err != nil {
		return generic.Grid{}, err
	}

	// formula cells without a cached result read as blank and may have
	// been trimmed from the row
	for r := range rows {
		rows[r] = sh.resolveFormulas(r+1, rows[r], grid.Cols)
	}
	// cells written by another program may sit outside the recorded bounds
	if len(rows) > grid.Rows {
		grid.Rows = len(rows)
	}
	for _, row := range rows {
		if len(row) > grid.Cols {
			grid.Cols = len(row)
		}
	}
	return grid, nil
}

func (sh *Sheet) resolveFormulas(row int, values []string, cols int) []string {
	f := sh.wb.file
	for len(values) < cols {
		values = append(values, "")
	}
	for c, v := range values {
		if v != "" {
			continue
		}
		ref := generic.A1(row, c+1)
		if formula, _ := f.GetCellFormula(sh.name, ref); formula != "" {
			values[c], _ = f.CalcCellValue(sh.name, ref)
		}
	}
	end := len(values)
	for end > 0 && values[end-1] == "" {
		end--
	}
	return values[:end]
}

func (sh *Sheet) UpdateRow(ctx context.Context, row int, values []string) error {
	return sh.write(ctx, generic.RowCells(row, values))
}

func (sh *Sheet) BatchUpdate(ctx context.Context, cells []generic.CellUpdate) error {
	return sh.write(ctx, cells)
}

// write checks every cell against the bounds before touching any, then
// saves the file once.
func (sh *Sheet) write(ctx context.Context, cells []generic.CellUpdate) error {
	w := sh.wb
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	rows, cols, err := sh.bounds()
	if err != nil {
		return err
	}
	if err := generic.CheckBounds(sh.name, rows, cols, cells); err != nil {
		return err
	}

	for _, c := range cells {
		if err := sh.setCell(c); err != nil {
			return err
		}
	}
	// setting cells can widen the dimension excelize keeps; restore ours
	if err := sh.setBounds(rows, cols); err != nil {
		return err
	}
	return w.save()
}

func (sh *Sheet) setCell(c generic.CellUpdate) error {
	f := sh.wb.file
	ref, err := excelize.CoordinatesToCellName(c.Col, c.Row)
	if err != nil {
		return fmt.Errorf("write %q: %w", sh.name, err)
	}

	if strings.HasPrefix(c.Value, "=") {
		err = f.SetCellFormula(sh.name, ref, strings.TrimPrefix(c.Value, "="))
	} else {
		if formula, _ := f.GetCellFormula(sh.name, ref); formula != "" {
			if err := f.SetCellFormula(sh.name, ref, ""); err != nil {
				return fmt.Errorf("write %q %s: %w", sh.name, ref, err)
			}
		}
		err = f.SetCellValue(sh.name, ref, cellValue(c.Value))
	}
	if err != nil {
		return fmt.Errorf("write %q %s: %w", sh.name, ref, err)
	}
	return nil
}

// cellValue stores plain numbers as numbers so spreadsheet programs can
// compare and sum them.
func cellValue(v string) any {
	if v == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !strings.ContainsAny(v, "eEnN") {
		return f
	}
	return v
}

func (sh *Sheet) AddRows(ctx context.Context, n int) error {
	return sh.grow(ctx, n, 0)
}

func (sh *Sheet) AddCols(ctx context.Context, n int) error {
	return sh.grow(ctx, 0, n)
}

func (sh *Sheet) grow(ctx context.Context, addRows, addCols int) error {
	if addRows <= 0 && addCols <= 0 {
		return nil
	}
	w := sh.wb
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	rows, cols, err := sh.bounds()
	if err != nil {
		return err
	}
	if err := sh.setBounds(rows+max(addRows, 0), cols+max(addCols, 0)); err != nil {
		return err
	}
	return w.save()
}

// AddHighlightRules adds one conditional format per rule.
func (sh *Sheet) AddHighlightRules(ctx context.Context, rules []generic.HighlightRule) error {
	w := sh.wb
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := w.file.GetConditionalFormats(sh.name)
	if err != nil {
		return fmt.Errorf("read conditional formats of %q: %w", sh.name, err)
	}

	added := 0
	for _, r := range rules {
		crit, ok := criteria[r.Op]
		if !ok {
			return fmt.Errorf("%w: comparison %q", generic.ErrRuleRejected, r.Op)
		}
		rangeRef := columnRange(r.Col, r.FromRow)
		if hasFormat(existing[rangeRef], crit, r.Threshold) {
			continue
		}
		styleID, err := w.conditionalStyle(r.Style)
		if err != nil {
			return err
		}
		opt := excelize.ConditionalFormatOptions{
			Type:     "cell",
			Criteria: crit,
			Format:   &styleID,
			Value:    r.Threshold,
		}
		if err := w.file.SetConditionalFormat(sh.name, rangeRef, []excelize.ConditionalFormatOptions{opt}); err != nil {
			return fmt.Errorf("%w: %v", generic.ErrRuleRejected, err)
		}
		existing[rangeRef] = append(existing[rangeRef], opt)
		added++
	}
	if added == 0 {
		return nil
	}
	return w.save()
}

// =============================================================================
// HELPERS
// =============================================================================

// bounds reads the grid size from the dimension reference.
func (sh *Sheet) bounds() (rows, cols int, err error) {
	dim, err := sh.wb.file.GetSheetDimension(sh.name)
	if err != nil {
		return 0, 0, fmt.Errorf("read bounds of %q: %w", sh.name, err)
	}
	last := dim
	if i := strings.IndexByte(dim, ':'); i >= 0 {
		last = dim[i+1:]
	}
	if last == "" {
		return 1, 1, nil
	}
	cols, rows, err = excelize.CellNameToCoordinates(last)
	if err != nil {
		return 0, 0, fmt.Errorf("read bounds of %q: %w", sh.name, err)
	}
	return rows, cols, nil
}

func (sh *Sheet) setBounds(rows, cols int) error {
	last, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return fmt.Errorf("set bounds of %q: %w", sh.name, err)
	}
	if err := sh.wb.file.SetSheetDimension(sh.name, "A1:"+last); err != nil {
		return fmt.Errorf("set bounds of %q: %w", sh.name, err)
	}
	return nil
}

func columnRange(col, fromRow int) string {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		name = "A"
	}
	return fmt.Sprintf("%s%d:%s%d", name, fromRow, name, excelize.TotalRows)
}

func hasFormat(opts []excelize.ConditionalFormatOptions, crit, value string) bool {
	for _, o := range opts {
		if o.Type == "cell" && normalizeCriteria(o.Criteria) == crit && o.Value == value {
			return true
		}
	}
	return false
}

// normalizeCriteria folds the long criteria names excelize reports back
// into their operators.
func normalizeCriteria(c string) string {
	switch c {
	case "less than", "lessThan":
		return "<"
	case "greater than", "greaterThan":
		return ">"
	}
	return c
}
