package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/generic"
)

func openTemp(t *testing.T) (*Workbook, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rent.xlsx")
	wb, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { wb.Close() })
	return wb, path
}

func TestWorkbook_RoundTripThroughFile(t *testing.T) {
	// GIVEN: A new workbook with one ledger
	wb, path := openTemp(t)
	ctx := context.Background()
	sheet, err := wb.AddSheet(ctx, "A101 - Jane", 100, 9)
	require.NoError(t, err)

	// WHEN: Writing a header and a row, then reopening the file
	require.NoError(t, sheet.UpdateRow(ctx, 1, []string{"Month", "Amount Due", "Amount paid"}))
	require.NoError(t, sheet.BatchUpdate(ctx, []generic.CellUpdate{
		{Row: 2, Col: 1, Value: "Sep-2025"},
		{Row: 2, Col: 2, Value: "12000"},
		{Row: 2, Col: 3, Value: "-5000"},
	}))
	require.NoError(t, wb.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	// THEN: Sheets, values and bounds survive
	sheets, err := reopened.Sheets(ctx)
	require.NoError(t, err)
	require.Len(t, sheets, 1, "placeholder sheet is renamed, not kept")
	assert.Equal(t, "A101 - Jane", sheets[0].Title())

	grid, err := sheets[0].ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Month", "Amount Due", "Amount paid"},
		{"Sep-2025", "12000", "-5000"},
	}, grid.Values)
	assert.Equal(t, 100, grid.Rows)
	assert.Equal(t, 9, grid.Cols)
}

func TestSheet_CapacityAndGrowth(t *testing.T) {
	wb, _ := openTemp(t)
	ctx := context.Background()
	sheet, err := wb.AddSheet(ctx, "A101", 2, 3)
	require.NoError(t, err)

	err = sheet.BatchUpdate(ctx, []generic.CellUpdate{
		{Row: 2, Col: 1, Value: "Sep-2025"},
		{Row: 3, Col: 4, Value: "x"},
	})
	var capErr *generic.GridCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 3, capErr.NeedRows)
	assert.Equal(t, 4, capErr.NeedCols)

	grid, err := sheet.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, grid.Values, "rejected batch writes nothing")

	require.NoError(t, sheet.AddRows(ctx, 1))
	require.NoError(t, sheet.AddCols(ctx, 1))
	require.NoError(t, sheet.BatchUpdate(ctx, []generic.CellUpdate{{Row: 3, Col: 4, Value: "x"}}))

	grid, err = sheet.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, grid.Rows)
	assert.Equal(t, 4, grid.Cols)
	assert.Equal(t, "x", grid.Values[2][3])
}

func TestWorkbook_DuplicateTitle(t *testing.T) {
	wb, _ := openTemp(t)
	ctx := context.Background()

	_, err := wb.AddSheet(ctx, "A101", 10, 9)
	require.NoError(t, err)
	_, err = wb.AddSheet(ctx, "a101", 10, 9)
	assert.ErrorIs(t, err, generic.ErrSheetExists)

	_, err = wb.AddSheet(ctx, "B202", 10, 9)
	require.NoError(t, err)
	sheets, _ := wb.Sheets(ctx)
	assert.Len(t, sheets, 2)
}

func TestSheet_FormulaCellsReadAsResults(t *testing.T) {
	wb, _ := openTemp(t)
	ctx := context.Background()
	sheet, err := wb.AddSheet(ctx, "A101", 10, 9)
	require.NoError(t, err)

	require.NoError(t, sheet.BatchUpdate(ctx, []generic.CellUpdate{
		{Row: 1, Col: 1, Value: "21"},
		{Row: 1, Col: 2, Value: "=A1*2"},
	}))

	grid, err := sheet.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"21", "42"}, grid.Values[0])

	// overwriting with a plain value drops the formula
	require.NoError(t, sheet.BatchUpdate(ctx, []generic.CellUpdate{{Row: 1, Col: 2, Value: "7"}}))
	formula, err := wb.file.GetCellFormula("A101", "B1")
	require.NoError(t, err)
	assert.Empty(t, formula)
}

func TestSheet_HighlightRulesAreNotDuplicated(t *testing.T) {
	wb, _ := openTemp(t)
	ctx := context.Background()
	sheet, err := wb.AddSheet(ctx, "A101", 10, 9)
	require.NoError(t, err)
	rules := []generic.HighlightRule{
		{Col: 7, FromRow: 2, Op: generic.LessThan, Threshold: "0", Style: generic.StyleArrears},
		{Col: 8, FromRow: 2, Op: generic.GreaterThan, Threshold: "0", Style: generic.StylePenalty},
	}

	require.NoError(t, sheet.AddHighlightRules(ctx, rules))
	require.NoError(t, sheet.AddHighlightRules(ctx, rules))

	formats, err := wb.file.GetConditionalFormats("A101")
	require.NoError(t, err)
	assert.Len(t, formats, 2)
	assert.Len(t, formats["G2:G1048576"], 1)
	assert.Len(t, formats["H2:H1048576"], 1)

	err = sheet.AddHighlightRules(ctx, []generic.HighlightRule{{Col: 1, FromRow: 2, Op: "between"}})
	assert.ErrorIs(t, err, generic.ErrRuleRejected)
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, float64(12000), cellValue("12000"))
	assert.Equal(t, -5000.5, cellValue("-5000.5"))
	assert.Equal(t, "Sep-2025", cellValue("Sep-2025"))
	assert.Equal(t, "2025-09-02", cellValue("2025-09-02"))
	assert.Equal(t, "NaN", cellValue("NaN"))
	assert.Equal(t, "", cellValue(""))
}
