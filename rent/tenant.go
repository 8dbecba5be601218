package rent

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// TENANT DIRECTORY - Account code to ledger sheet
// =============================================================================

// MetaSheets are bookkeeping sheets that are never tenant ledgers.
var MetaSheets = []string{"PROCESSEDREFS", "PAYMENTHISTORY"}

// Size of a ledger created for an unknown account.
const (
	NewLedgerRows = 100
	NewLedgerCols = 9
)

// AutoAddedSuffix is appended to the account code when a ledger is created.
const AutoAddedSuffix = " - AutoAdded"

// Directory resolves account codes to ledger sheets. The sheet list is read
// once and kept; sheets it creates are added to it.
type Directory struct {
	wb     generic.Workbook
	sheets []generic.Sheet
	loaded bool
}

func NewDirectory(wb generic.Workbook) *Directory {
	return &Directory{wb: wb}
}

// Ledgers lists every sheet except the meta sheets.
func (d *Directory) Ledgers(ctx context.Context) ([]generic.Sheet, error) {
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	out := make([]generic.Sheet, 0, len(d.sheets))
	for _, s := range d.sheets {
		if !isMetaSheet(s.Title()) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Lookup returns the ledger whose title starts with the account code
// followed by a non-alphanumeric character or the end of the title.
func (d *Directory) Lookup(ctx context.Context, accountCode string) (generic.Sheet, error) {
	ledgers, err := d.Ledgers(ctx)
	if err != nil {
		return nil, err
	}
	code := NormalizeAccountCode(accountCode)
	for _, s := range ledgers {
		if titleMatches(s.Title(), code) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", code, generic.ErrSheetNotFound)
}

// ByTitle returns the sheet with exactly this title (case-insensitive).
func (d *Directory) ByTitle(ctx context.Context, title string) (generic.Sheet, error) {
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	for _, s := range d.sheets {
		if strings.EqualFold(s.Title(), title) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", title, generic.ErrSheetNotFound)
}

// Resolve is Lookup, creating "<CODE> - AutoAdded" with the canonical
// header when no ledger matches. created reports which happened.
func (d *Directory) Resolve(ctx context.Context, accountCode string) (sheet generic.Sheet, created bool, err error) {
	sheet, err = d.Lookup(ctx, accountCode)
	if err == nil {
		return sheet, false, nil
	}
	if !generic.IsNotFound(err) {
		return nil, false, err
	}

	title := NormalizeAccountCode(accountCode) + AutoAddedSuffix
	sheet, err = d.wb.AddSheet(ctx, title, NewLedgerRows, NewLedgerCols)
	if err != nil {
		return nil, false, fmt.Errorf("create ledger %q: %w", title, err)
	}
	if err := sheet.UpdateRow(ctx, 1, CanonicalHeader()); err != nil {
		return nil, false, fmt.Errorf("write header of %q: %w", title, err)
	}
	d.sheets = append(d.sheets, sheet)
	return sheet, true, nil
}

func (d *Directory) load(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	sheets, err := d.wb.Sheets(ctx)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}
	d.sheets = sheets
	d.loaded = true
	return nil
}

func titleMatches(title, code string) bool {
	t := strings.ToUpper(strings.TrimSpace(title))
	if code == "" || !strings.HasPrefix(t, code) {
		return false
	}
	if len(t) == len(code) {
		return true
	}
	next := t[len(code)]
	return !(next >= 'A' && next <= 'Z' || next >= '0' && next <= '9')
}

func isMetaSheet(title string) bool {
	t := strings.ToUpper(strings.TrimSpace(title))
	for _, m := range MetaSheets {
		if t == m {
			return true
		}
	}
	return false
}
