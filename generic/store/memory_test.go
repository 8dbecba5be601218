package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/generic"
)

func TestMemory_RejectsWritesOutsideGrid(t *testing.T) {
	// GIVEN: A 2x3 sheet
	wb := NewMemory()
	s := wb.SeedSized("A101", [][]string{{"Month", "Amount Due"}}, 2, 3)
	ctx := context.Background()

	// WHEN: A batch has one cell past the last row
	err := s.BatchUpdate(ctx, []generic.CellUpdate{
		{Row: 2, Col: 1, Value: "Sep-2025"},
		{Row: 3, Col: 1, Value: "Oct-2025"},
	})

	// THEN: Nothing is written
	var capErr *generic.GridCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 3, capErr.NeedRows)
	assert.Empty(t, s.Cell(2, 1))

	// AND: After growing, the same batch succeeds
	require.NoError(t, s.AddRows(ctx, 1))
	require.NoError(t, s.BatchUpdate(ctx, []generic.CellUpdate{
		{Row: 2, Col: 1, Value: "Sep-2025"},
		{Row: 3, Col: 1, Value: "Oct-2025"},
	}))
	grid, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Month", "Amount Due"}, {"Sep-2025"}, {"Oct-2025"}}, grid.Values)
	assert.Equal(t, 3, grid.Rows)
	assert.Equal(t, 3, grid.Cols)
}

func TestMemory_AddSheetRejectsDuplicateTitle(t *testing.T) {
	wb := NewMemory()
	ctx := context.Background()

	_, err := wb.AddSheet(ctx, "A101 - Jane", 10, 9)
	require.NoError(t, err)
	_, err = wb.AddSheet(ctx, "a101 - jane", 10, 9)

	assert.ErrorIs(t, err, generic.ErrSheetExists)
	sheets, _ := wb.Sheets(ctx)
	assert.Len(t, sheets, 1)
}

func TestMemory_FaultsAndRules(t *testing.T) {
	wb := NewMemory()
	s := wb.Seed("A101", nil)
	ctx := context.Background()
	rule := generic.HighlightRule{Col: 7, FromRow: 2, Op: generic.LessThan, Threshold: "0", Style: generic.StyleArrears}

	s.FailNext(generic.ErrRateLimited)
	assert.ErrorIs(t, s.AddHighlightRules(ctx, []generic.HighlightRule{rule}), generic.ErrRateLimited)

	require.NoError(t, s.AddHighlightRules(ctx, []generic.HighlightRule{rule}))
	require.NoError(t, s.AddHighlightRules(ctx, []generic.HighlightRule{rule}))
	assert.Equal(t, []generic.HighlightRule{rule}, s.Rules(), "same rule is not duplicated")

	s.RejectRules(errors.New("unsupported"))
	assert.Error(t, s.AddHighlightRules(ctx, nil))

	reads, writes := s.Calls()
	assert.Zero(t, reads)
	assert.Equal(t, 4, writes)
}
