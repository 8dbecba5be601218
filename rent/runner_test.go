package rent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/generic/store"
	"github.com/warp/rent-ledger/rent"
)

// memRegistry is an in-test rent.Registry.
type memRegistry struct {
	done    map[string]bool
	entries []rent.HistoryEntry
	failOn  string
}

func newMemRegistry(done ...string) *memRegistry {
	r := &memRegistry{done: make(map[string]bool)}
	for _, ref := range done {
		r.done[ref] = true
	}
	return r
}

func (r *memRegistry) IsProcessed(_ context.Context, ref string) (bool, error) {
	return r.done[ref], nil
}

func (r *memRegistry) Record(_ context.Context, e rent.HistoryEntry) error {
	if e.Payment.Reference == r.failOn {
		return errors.New("disk full")
	}
	r.done[e.Payment.Reference] = true
	r.entries = append(r.entries, e)
	return nil
}

func forAccount(p rent.Payment, code string) rent.Payment {
	p.AccountCode = code
	return p
}

// =============================================================================
// TENANT DIRECTORY
// =============================================================================

func TestDirectory_LookupMatchesCodePrefix(t *testing.T) {
	wb := store.NewMemory()
	wb.Seed("PROCESSEDREFS", [][]string{{"Ref"}})
	wb.Seed("A101 - Jane", ledger())
	wb.Seed("A1010", ledger())
	wb.Seed("B7", ledger())
	dir := rent.NewDirectory(wb)
	ctx := context.Background()

	sheet, err := dir.Lookup(ctx, "a101")
	require.NoError(t, err)
	assert.Equal(t, "A101 - Jane", sheet.Title())

	sheet, err = dir.Lookup(ctx, "B7")
	require.NoError(t, err)
	assert.Equal(t, "B7", sheet.Title())

	_, err = dir.Lookup(ctx, "A10")
	assert.ErrorIs(t, err, generic.ErrSheetNotFound)

	_, err = dir.Lookup(ctx, "PROCESSEDREFS")
	assert.ErrorIs(t, err, generic.ErrSheetNotFound, "meta sheets are never ledgers")

	ledgers, err := dir.Ledgers(ctx)
	require.NoError(t, err)
	assert.Len(t, ledgers, 3)
}

func TestDirectory_ResolveCreatesMissingLedger(t *testing.T) {
	// GIVEN: No ledger for C300
	wb := store.NewMemory()
	dir := rent.NewDirectory(wb)
	ctx := context.Background()

	// WHEN: Resolving it twice
	sheet, created, err := dir.Resolve(ctx, "c300")
	require.NoError(t, err)
	again, createdAgain, err := dir.Resolve(ctx, "C300")
	require.NoError(t, err)

	// THEN: One AutoAdded sheet with the canonical header exists
	assert.True(t, created)
	assert.False(t, createdAgain)
	assert.Equal(t, sheet.ID(), again.ID())
	assert.Equal(t, "C300 - AutoAdded", sheet.Title())
	mem := wb.Sheet("C300 - AutoAdded")
	require.NotNil(t, mem)
	assert.Equal(t, [][]string{rent.CanonicalHeader()}, mem.Values())
}

// =============================================================================
// RUNNER
// =============================================================================

func TestRunner_AppliesBatchInOrder(t *testing.T) {
	// GIVEN: One known tenant, one unknown, and a registry that has seen a ref
	wb := store.NewMemory()
	jane := wb.Seed("A101 - Jane", ledger([]string{"Sep-2025", "12000"}))
	registry := newMemRegistry("QJK0000OLD")
	runner := rent.NewRunner(newEngine(t, rent.DefaultRules()), wb, registry)

	sep := at(2025, time.September, 3, 9)
	payments := []rent.Payment{
		pay(5000, "QJK1234ABC", sep),
		forAccount(pay(8000, "QJK2222BBB", sep), "B202"),
		pay(7000, "QJK0000OLD", sep),
		pay(7000, "qjk1234abc", sep),
		pay(7000, "BAD", sep),
		pay(7000, "QJK5678DEF", sep.Add(24*time.Hour)),
	}

	// WHEN: The batch runs
	outcomes, err := runner.Run(context.Background(), payments)
	require.NoError(t, err)
	require.Len(t, outcomes, len(payments))

	// THEN: Applied, created, duplicate and rejected payments are told apart
	assert.NoError(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.True(t, outcomes[1].Created)
	assert.ErrorIs(t, outcomes[2].Err, rent.ErrAlreadyProcessed)
	assert.ErrorIs(t, outcomes[3].Err, rent.ErrAlreadyProcessed, "same ref twice in one batch")
	assert.ErrorIs(t, outcomes[4].Err, rent.ErrInvalidReference)
	assert.NoError(t, outcomes[5].Err)

	assert.Equal(t, "12000", jane.Cell(2, colPaid))
	assert.Equal(t, "QJK1234ABC, QJK5678DEF", jane.Cell(2, colRef))

	b := wb.Sheet("B202 - AutoAdded")
	require.NotNil(t, b)
	assert.Equal(t, "8000", b.Cell(2, colPaid))

	require.Len(t, registry.entries, 3)
	assert.Equal(t, registry.entries[0].SessionID, registry.entries[2].SessionID)
	assert.Equal(t, "QJK5678DEF", registry.entries[2].Payment.Reference)
	assert.Equal(t, 2, registry.entries[2].Result.RowNumber)

	summary := rent.Summarize(outcomes)
	assert.Equal(t, rent.Summary{Applied: 3, Duplicates: 2, Rejected: 1}, summary)
}

func TestRunner_FatalErrorAbortsOnlyThatLedger(t *testing.T) {
	// GIVEN: A101 has no Month data to spare and cannot grow; B202 is healthy
	wb := store.NewMemory()
	a := wb.SeedSized("A101", ledger([]string{"Sep-2025", "12000"}), 2, 9)
	wb.Seed("B202", ledger([]string{"Sep-2025", "12000"}))
	runner := rent.NewRunner(newEngine(t, noAutoConsume()), wb, nil)

	// A101's first write (AddRows for October) fails for good.
	a.FailNext(nil, errors.New("protected range"))

	sep := at(2025, time.September, 3, 9)
	payments := []rent.Payment{
		pay(5000, "QJK1111AAA", at(2025, time.October, 3, 9)),
		forAccount(pay(5000, "QJK2222BBB", sep), "B202"),
		pay(5000, "QJK3333CCC", sep),
	}

	outcomes, err := runner.Run(context.Background(), payments)
	require.NoError(t, err)

	var ledgerErr *rent.LedgerError
	require.ErrorAs(t, outcomes[0].Err, &ledgerErr)
	assert.Equal(t, "A101", ledgerErr.AccountCode)
	assert.NoError(t, outcomes[1].Err)
	assert.ErrorIs(t, outcomes[2].Err, rent.ErrLedgerAborted)
	assert.Empty(t, a.Cell(2, colPaid))
}

func TestRunner_HistoryFailureIsReported(t *testing.T) {
	wb := store.NewMemory()
	wb.Seed("A101", ledger([]string{"Sep-2025", "12000"}))
	registry := newMemRegistry()
	registry.failOn = "QJK1234ABC"
	runner := rent.NewRunner(newEngine(t, rent.DefaultRules()), wb, registry)

	outcomes, err := runner.Run(context.Background(), []rent.Payment{pay(5000, "QJK1234ABC", at(2025, time.September, 3, 9))})
	require.NoError(t, err)

	require.Error(t, outcomes[0].Err)
	assert.Contains(t, outcomes[0].Err.Error(), "record history")
	assert.Equal(t, 2, outcomes[0].Result.RowNumber, "the ledger write itself succeeded")
}
