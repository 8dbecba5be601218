/*
session.go - Run-scoped ledger cache

PURPOSE:
  A Session is one reconciliation run. The first time it touches a ledger it
  reads the whole sheet once, normalizes the schema, and keeps the snapshot.
  Every later payment for that ledger works on the snapshot and sends only
  the cells it changes.

CALL BUDGET PER LEDGER PER SESSION:
  1 ReadAll                         always
  1 UpdateRow (header)              only if columns were appended
  1 BatchUpdate (Comments backfill) only if Comments was appended
  per payment:
    1 UpdateRow       when the period row is new
    1 BatchUpdate     the seven derived fields
    1 BatchUpdate     later rows rebalanced (values mode, only if any changed)
  1 AddHighlightRules               once
  AddRows / AddCols                 only when the grid is too small

  Snapshot on an unloaded ledger costs one ReadAll and writes nothing.

STALENESS:
  Nothing is shared between sessions. A new run builds a new Session, so an
  out-of-band schema change is picked up on the next run. Reset() drops
  the cache for callers that keep a Session around.

SEE ALSO:
  - schema.go: Normalize / DetectHeaderRow
  - engine.go: Apply
*/
package rent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// SESSION
// =============================================================================

// Session owns the ledger snapshots of one run. Not safe for concurrent use.
type Session struct {
	ID      string
	engine  *Engine
	logger  *zap.Logger
	ledgers map[string]*ledger
}

// NewSession starts a run with an empty cache.
func (e *Engine) NewSession() *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		engine:  e,
		logger:  e.logger.With(zap.String("session", id)),
		ledgers: make(map[string]*ledger),
	}
}

// Reset drops every cached ledger.
func (s *Session) Reset() {
	s.ledgers = make(map[string]*ledger)
}

// Cached reports whether the sheet's snapshot is loaded.
func (s *Session) Cached(sheetID string) bool {
	_, ok := s.ledgers[sheetID]
	return ok
}

// Snapshot returns the normalized header and rows of a ledger. A ledger
// this session has not loaded is read without writing back the appended
// columns or the Comments backfill, and is not cached. The returned slices
// are copies.
func (s *Session) Snapshot(ctx context.Context, sheet generic.Sheet) (header []string, rows [][]string, err error) {
	l, ok := s.ledgers[sheet.ID()]
	if !ok {
		l, _, err = s.read(ctx, generic.WithRetry(sheet, s.engine.retrier))
		if err != nil {
			return nil, nil, err
		}
	}
	header = append([]string(nil), l.header...)
	rows = make([][]string, len(l.rows))
	for i, r := range l.rows {
		rows[i] = append([]string(nil), r...)
	}
	return header, rows, nil
}

func (s *Session) ledger(ctx context.Context, sheet generic.Sheet) (*ledger, error) {
	if l, ok := s.ledgers[sheet.ID()]; ok {
		return l, nil
	}
	l, err := s.load(ctx, sheet)
	if err != nil {
		return nil, err
	}
	s.ledgers[sheet.ID()] = l
	return l, nil
}

// load reads the ledger and writes back whatever normalization added.
func (s *Session) load(ctx context.Context, sheet generic.Sheet) (*ledger, error) {
	l, schema, err := s.read(ctx, sheet)
	if err != nil {
		return nil, err
	}
	log := l.logger

	if schema.Changed() {
		appended := make([]string, len(schema.Appended))
		for i, c := range schema.Appended {
			appended[i] = c.Key()
		}
		log.Info("appending missing ledger columns", zap.Strings("columns", appended))
		if err := l.writeRow(ctx, l.headerRow+1, l.header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	if schema.CommentsAdded && len(l.rows) > 0 {
		col := l.cols[ColComments] + 1
		cells := make([]generic.CellUpdate, len(l.rows))
		for i, r := range l.rows {
			cells[i] = generic.CellUpdate{Row: l.sheetRow(i), Col: col, Value: r[l.cols[ColComments]]}
		}
		if err := l.writeCells(ctx, cells); err != nil {
			return nil, fmt.Errorf("backfill comments: %w", err)
		}
	}

	log.Debug("ledger loaded",
		zap.Int("header_row", l.headerRow+1),
		zap.Int("data_rows", len(l.rows)))
	return l, nil
}

// read builds the normalized snapshot from one ReadAll. It never writes.
func (s *Session) read(ctx context.Context, sheet generic.Sheet) (*ledger, Schema, error) {
	rules := s.engine.rules
	log := s.logger.With(zap.String("sheet", sheet.Title()), zap.String("sheet_id", sheet.ID()))

	grid, err := sheet.ReadAll(ctx)
	if err != nil {
		return nil, Schema{}, fmt.Errorf("read sheet: %w", err)
	}

	headerRow := DetectHeaderRow(grid.Values, rules.HeaderScanRows, rules.HeaderMinScore)
	var header []string
	var rows [][]string
	if headerRow < len(grid.Values) {
		header = grid.Values[headerRow]
		rows = grid.Values[headerRow+1:]
	}
	rows = trimTrailingBlank(rows)

	schema := Normalize(header, rows, rules.DefaultComment)
	for _, u := range schema.Unknown {
		if hint := SuggestAlias(u); hint != "" {
			log.Info("unrecognized ledger header", zap.String("header", u), zap.String("closest_alias", hint))
		}
	}
	if missing := schema.Columns.Missing(); len(missing) > 0 {
		return nil, Schema{}, &SchemaError{Sheet: sheet.Title(), Missing: missing}
	}

	l := &ledger{
		sheet:     sheet,
		headerRow: headerRow,
		header:    schema.Header,
		rows:      schema.Rows,
		cols:      schema.Columns,
		gridRows:  grid.Rows,
		gridCols:  grid.Cols,
		logger:    log,
	}
	for i := range l.rows {
		l.rows[i] = padRow(l.rows[i], len(l.header))
	}
	l.style = InferLabelStyle(l.columnValues(ColMonth))
	return l, schema, nil
}

func trimTrailingBlank(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && isBlankRow(rows[end-1]) {
		end--
	}
	return rows[:end]
}

// =============================================================================
// LEDGER - One cached sheet
// =============================================================================

type ledger struct {
	sheet     generic.Sheet
	headerRow int // 0-based index into the grid
	header    []string
	rows      [][]string
	cols      ColumnMap
	style     LabelStyle

	gridRows int
	gridCols int

	highlighted bool
	aborted     error

	logger *zap.Logger
}

// sheetRow converts a data-row index into a 1-based sheet row.
func (l *ledger) sheetRow(i int) int { return l.headerRow + 2 + i }

func (l *ledger) firstDataRow() int { return l.headerRow + 2 }

func (l *ledger) get(i int, c Column) string {
	idx, ok := l.cols[c]
	if !ok || i < 0 || i >= len(l.rows) {
		return ""
	}
	return cell(l.rows[i], idx)
}

func (l *ledger) columnValues(c Column) []string {
	var out []string
	for i := range l.rows {
		if v := strings.TrimSpace(l.get(i, c)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// amount coerces a numeric cell, logging when the text is not a number.
func (l *ledger) amount(i int, c Column) generic.Amount {
	raw := l.get(i, c)
	a, ok := generic.ParseAmount(raw)
	if !ok {
		l.logger.Debug("non-numeric cell treated as zero",
			zap.Int("row", l.sheetRow(i)),
			zap.String("column", c.Key()),
			zap.String("value", raw))
	}
	return a
}

// set updates cached cells after a successful write.
func (l *ledger) set(i int, values map[Column]string) {
	for c, v := range values {
		if idx, ok := l.cols[c]; ok {
			l.rows[i][idx] = v
		}
	}
}

// =============================================================================
// WRITES - Grid growth before every write
// =============================================================================

func (l *ledger) writeRow(ctx context.Context, row int, values []string) error {
	if err := l.ensureCapacity(ctx, row, len(values)); err != nil {
		return err
	}
	err := l.sheet.UpdateRow(ctx, row, values)
	if regrow, gerr := l.growFor(ctx, err); regrow {
		if gerr != nil {
			return gerr
		}
		err = l.sheet.UpdateRow(ctx, row, values)
	}
	return err
}

func (l *ledger) writeCells(ctx context.Context, cells []generic.CellUpdate) error {
	if len(cells) == 0 {
		return nil
	}
	needRows, needCols := 0, 0
	for _, c := range cells {
		if c.Row > needRows {
			needRows = c.Row
		}
		if c.Col > needCols {
			needCols = c.Col
		}
	}
	if err := l.ensureCapacity(ctx, needRows, needCols); err != nil {
		return err
	}
	err := l.sheet.BatchUpdate(ctx, cells)
	if regrow, gerr := l.growFor(ctx, err); regrow {
		if gerr != nil {
			return gerr
		}
		err = l.sheet.BatchUpdate(ctx, cells)
	}
	return err
}

// ensureCapacity grows the grid to at least rows x cols using the bounds
// seen at load time.
func (l *ledger) ensureCapacity(ctx context.Context, rows, cols int) error {
	if rows > l.gridRows {
		n := rows - l.gridRows
		if err := l.sheet.AddRows(ctx, n); err != nil {
			return fmt.Errorf("grow grid by %d rows: %w", n, err)
		}
		l.gridRows = rows
	}
	if cols > l.gridCols {
		n := cols - l.gridCols
		if err := l.sheet.AddCols(ctx, n); err != nil {
			return fmt.Errorf("grow grid by %d columns: %w", n, err)
		}
		l.gridCols = cols
	}
	return nil
}

// growFor handles a capacity error from a write whose bounds were stale
// (the sheet shrank out of band). It reports whether the write should be
// retried and any growth failure.
func (l *ledger) growFor(ctx context.Context, err error) (bool, error) {
	var capErr *generic.GridCapacityError
	if !errors.As(err, &capErr) {
		return false, nil
	}
	l.logger.Warn("grid smaller than expected, growing", zap.Error(err))
	l.gridRows, l.gridCols = capErr.Rows, capErr.Cols
	if gerr := l.ensureCapacity(ctx, capErr.NeedRows, capErr.NeedCols); gerr != nil {
		return true, gerr
	}
	return true, nil
}
