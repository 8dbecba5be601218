/*
schema.go - Column schema discovery and normalization

PURPOSE:
  Ledgers are edited by hand. Headers get renamed ("Rent", "Amt Paid (KES)"),
  moved, duplicated, or dropped, and the header row is not always row 1.
  This file resolves whatever is there into the nine canonical columns the
  engine needs, without ever renaming or deleting a user column.

CANONICAL COLUMNS:
  month, amount_due, amount_paid, date_paid, ref, date_due,
  prepay_arrears, penalties, comments   (required)
  month_key                             (optional, never appended)

NORMALIZATION:
  "  Amount Paid (KES) " -> "amount paid kes"
  "M-Pesa Réf"           -> "mpesa ref"
  "Prepayment/Arrears"   -> "prepayment/arrears"   ('/' survives)

RESOLUTION RULES:
  1. Normalized text is looked up in a static alias table
  2. First occurrence wins when two headers resolve to the same column
  3. Missing required columns are appended at the far right
  4. Every data row is padded; new Comments cells get the default comment

HEADER DISCOVERY:
  The first HeaderScanRows rows are scored by how many cells resolve.
  The best row wins if it scores >= HeaderMinScore, else row 1.

SEE ALSO:
  - session.go: Runs this once per ledger per session
*/
package rent

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/schollz/closestmatch"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// COLUMN - The canonical column enum
// =============================================================================

type Column int

const (
	ColMonth Column = iota
	ColAmountDue
	ColAmountPaid
	ColDatePaid
	ColRef
	ColDateDue
	ColBalance
	ColPenalties
	ColComments
	ColMonthKey

	numColumns
)

// RequiredColumns are appended when missing, in this order.
var RequiredColumns = []Column{
	ColMonth, ColAmountDue, ColAmountPaid, ColDatePaid, ColRef,
	ColDateDue, ColBalance, ColPenalties, ColComments,
}

var columnKeys = [numColumns]string{
	"month", "amount_due", "amount_paid", "date_paid", "ref",
	"date_due", "prepay_arrears", "penalties", "comments", "month_key",
}

var columnHeaders = [numColumns]string{
	"Month", "Amount Due", "Amount paid", "Date paid", "REF Number",
	"Date due", "Prepayment/Arrears", "Penalties", "Comments", "MonthKey",
}

// Key is the stable machine name ("amount_paid").
func (c Column) Key() string {
	if c < 0 || c >= numColumns {
		return "unknown"
	}
	return columnKeys[c]
}

// Header is the canonical header text written when the column is appended.
func (c Column) Header() string {
	if c < 0 || c >= numColumns {
		return ""
	}
	return columnHeaders[c]
}

func (c Column) String() string { return c.Key() }

// CanonicalHeader is the header row of a freshly created ledger.
func CanonicalHeader() []string {
	out := make([]string, len(RequiredColumns))
	for i, c := range RequiredColumns {
		out[i] = c.Header()
	}
	return out
}

// =============================================================================
// ALIAS TABLE
// =============================================================================

var aliases = map[Column][]string{
	ColMonth:      {"month", "month/period", "period", "rent month", "billing month"},
	ColAmountDue:  {"amount due", "rent due", "due", "amountdue", "monthly rent", "rent", "amount due kes", "rent kes"},
	ColAmountPaid: {"amount paid", "paid", "amt paid", "paid kes", "amountpaid", "amount paid kes"},
	ColDatePaid:   {"date paid", "paid date", "payment date", "datepaid"},
	ColRef: {"ref number", "ref", "reference", "ref no", "reference no", "mpesa ref",
		"mpesa reference", "receipt", "receipt no"},
	ColDateDue: {"date due", "due date", "rent due date", "datedue"},
	ColBalance: {"prepayment/arrears", "prepayment", "arrears", "balance", "bal",
		"prepayment arrears", "carry forward", "cf"},
	ColPenalties: {"penalties", "penalty", "late fee", "late fees", "fine", "fines"},
	ColComments:  {"comments", "comment", "remarks", "notes", "note"},
	ColMonthKey:  {"monthkey", "month key"},
}

// aliasTable maps normalized header text to its column. Built once.
var aliasTable = buildAliasTable()

func buildAliasTable() map[string]Column {
	t := make(map[string]Column)
	for col, names := range aliases {
		for _, n := range names {
			t[NormalizeHeader(n)] = col
		}
		t[NormalizeHeader(col.Header())] = col
	}
	return t
}

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}_\s/]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeHeader folds header text for alias lookup.
func NormalizeHeader(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = punctRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ResolveHeader returns the column a header cell maps to.
func ResolveHeader(cell string) (Column, bool) {
	c, ok := aliasTable[NormalizeHeader(cell)]
	return c, ok
}

var (
	matcherOnce sync.Once
	matcher     *closestmatch.ClosestMatch
)

// SuggestAlias returns the closest known alias for an unrecognized header,
// or "" when nothing is reasonably close. Diagnostics only.
func SuggestAlias(cell string) string {
	n := NormalizeHeader(cell)
	if len(n) < 3 {
		return ""
	}
	matcherOnce.Do(func() {
		known := make([]string, 0, len(aliasTable))
		for k := range aliasTable {
			known = append(known, k)
		}
		matcher = closestmatch.New(known, []int{2, 3})
	})
	return matcher.Closest(n)
}

// =============================================================================
// COLUMN MAP
// =============================================================================

// ColumnMap maps canonical columns to 0-based indexes in the header.
type ColumnMap map[Column]int

// MapHeader resolves a header row. First occurrence wins.
func MapHeader(header []string) ColumnMap {
	cols := make(ColumnMap)
	for i, cell := range header {
		c, ok := ResolveHeader(cell)
		if !ok {
			continue
		}
		if _, seen := cols[c]; !seen {
			cols[c] = i
		}
	}
	return cols
}

// Missing lists the required columns not in the map.
func (m ColumnMap) Missing() []Column {
	var out []Column
	for _, c := range RequiredColumns {
		if _, ok := m[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether the column is mapped.
func (m ColumnMap) Has(c Column) bool {
	_, ok := m[c]
	return ok
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Schema is the outcome of normalizing one ledger.
type Schema struct {
	Header        []string
	Rows          [][]string
	Columns       ColumnMap
	Appended      []Column
	CommentsAdded bool
	Unknown       []string // non-empty header cells that resolved to nothing
}

// Changed reports whether the header row must be written back.
func (s Schema) Changed() bool { return len(s.Appended) > 0 }

// Normalize resolves header, appends missing required columns, and pads rows.
// Inputs are not modified. Normalizing the output again is a no-op.
func Normalize(header []string, rows [][]string, defaultComment string) Schema {
	out := Schema{
		Header: append([]string(nil), header...),
		Rows:   make([][]string, len(rows)),
	}
	for i, r := range rows {
		out.Rows[i] = append([]string(nil), r...)
	}

	cols := MapHeader(out.Header)
	for _, cell := range out.Header {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		if _, ok := ResolveHeader(cell); !ok {
			out.Unknown = append(out.Unknown, cell)
		}
	}

	missing := cols.Missing()
	if len(missing) > 0 {
		width := len(out.Header)
		for i := range out.Rows {
			out.Rows[i] = padRow(out.Rows[i], width)
		}
		for _, c := range missing {
			cols[c] = len(out.Header)
			out.Header = append(out.Header, c.Header())
			fill := ""
			if c == ColComments {
				fill = defaultComment
				out.CommentsAdded = true
			}
			for i := range out.Rows {
				out.Rows[i] = append(out.Rows[i], fill)
			}
		}
		out.Appended = missing
	}

	out.Columns = cols
	return out
}

// DetectHeaderRow returns the 0-based index of the most header-like row
// among the first scanRows, or 0 when none scores at least minScore.
func DetectHeaderRow(values [][]string, scanRows, minScore int) int {
	best, bestScore := 0, -1
	for i := 0; i < len(values) && i < scanRows; i++ {
		score := 0
		for _, cell := range values[i] {
			if _, ok := ResolveHeader(cell); ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore < minScore {
		return 0
	}
	return best
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}
