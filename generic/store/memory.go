// Package store provides an in-memory generic.Workbook.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// MEMORY WORKBOOK - In-memory implementation (for testing/dev)
// =============================================================================

const (
	DefaultRows = 100
	DefaultCols = 26
)

type Memory struct {
	mu     sync.RWMutex
	sheets []*MemorySheet
	nextID int
}

func NewMemory() *Memory {
	return &Memory{}
}

// Sheets returns sheets in creation order.
func (m *Memory) Sheets(_ context.Context) ([]generic.Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.Sheet, len(m.sheets))
	for i, s := range m.sheets {
		out[i] = s
	}
	return out, nil
}

func (m *Memory) AddSheet(_ context.Context, title string, rows, cols int) (generic.Sheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sheets {
		if strings.EqualFold(s.title, title) {
			return nil, fmt.Errorf("%w: %s", generic.ErrSheetExists, title)
		}
	}
	s := m.newSheetLocked(title, nil, rows, cols)
	return s, nil
}

// Seed adds a sheet holding values. The grid is at least DefaultRows x
// DefaultCols and always large enough for values.
func (m *Memory) Seed(title string, values [][]string) *MemorySheet {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, cols := DefaultRows, DefaultCols
	if len(values) > rows {
		rows = len(values)
	}
	for _, r := range values {
		if len(r) > cols {
			cols = len(r)
		}
	}
	return m.newSheetLocked(title, values, rows, cols)
}

// SeedSized adds a sheet with an exact grid size. Values must fit.
func (m *Memory) SeedSized(title string, values [][]string, rows, cols int) *MemorySheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newSheetLocked(title, values, rows, cols)
}

// Sheet returns the sheet with the given title, or nil.
func (m *Memory) Sheet(title string) *MemorySheet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sheets {
		if s.title == title {
			return s
		}
	}
	return nil
}

func (m *Memory) newSheetLocked(title string, values [][]string, rows, cols int) *MemorySheet {
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols <= 0 {
		cols = DefaultCols
	}
	m.nextID++
	s := &MemorySheet{
		id:    fmt.Sprintf("mem-%d", m.nextID),
		title: title,
		rows:  rows,
		cols:  cols,
		cells: make(map[cellKey]string),
		rules: make(map[string]generic.HighlightRule),
	}
	for r, row := range values {
		for c, v := range row {
			if v != "" {
				s.cells[cellKey{r + 1, c + 1}] = v
			}
		}
	}
	m.sheets = append(m.sheets, s)
	return s
}

// =============================================================================
// MEMORY SHEET
// =============================================================================

type cellKey struct {
	Row int
	Col int
}

// MemorySheet is a bounded grid of cells. It counts calls so tests can assert
// the call budget, and can inject failures.
type MemorySheet struct {
	mu    sync.RWMutex
	id    string
	title string
	rows  int
	cols  int
	cells map[cellKey]string
	rules map[string]generic.HighlightRule

	reads  int
	writes int

	faults     []error
	rejectRule error
}

func (s *MemorySheet) ID() string    { return s.id }
func (s *MemorySheet) Title() string { return s.title }

func (s *MemorySheet) ReadAll(_ context.Context) (generic.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if err := s.nextFaultLocked(); err != nil {
		return generic.Grid{}, err
	}
	return generic.Grid{Values: s.valuesLocked(), Rows: s.rows, Cols: s.cols}, nil
}

func (s *MemorySheet) UpdateRow(_ context.Context, row int, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.nextFaultLocked(); err != nil {
		return err
	}
	return s.writeLocked(generic.RowCells(row, values))
}

func (s *MemorySheet) BatchUpdate(_ context.Context, cells []generic.CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.nextFaultLocked(); err != nil {
		return err
	}
	return s.writeLocked(cells)
}

func (s *MemorySheet) writeLocked(cells []generic.CellUpdate) error {
	// Check everything first: a rejected batch writes nothing.
	if err := generic.CheckBounds(s.title, s.rows, s.cols, cells); err != nil {
		return err
	}
	for _, c := range cells {
		if c.Row < 1 || c.Col < 1 {
			return fmt.Errorf("sheet %q: invalid cell position (%d, %d)", s.title, c.Row, c.Col)
		}
	}
	for _, c := range cells {
		k := cellKey{c.Row, c.Col}
		if c.Value == "" {
			delete(s.cells, k)
			continue
		}
		s.cells[k] = c.Value
	}
	return nil
}

func (s *MemorySheet) AddRows(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.nextFaultLocked(); err != nil {
		return err
	}
	if n > 0 {
		s.rows += n
	}
	return nil
}

func (s *MemorySheet) AddCols(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.nextFaultLocked(); err != nil {
		return err
	}
	if n > 0 {
		s.cols += n
	}
	return nil
}

func (s *MemorySheet) AddHighlightRules(_ context.Context, rules []generic.HighlightRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.nextFaultLocked(); err != nil {
		return err
	}
	if s.rejectRule != nil {
		return s.rejectRule
	}
	for _, r := range rules {
		s.rules[r.Key()] = r
	}
	return nil
}

// valuesLocked returns the grid trimmed of trailing empty rows, with each
// row trimmed of trailing empty cells.
func (s *MemorySheet) valuesLocked() [][]string {
	lastRow := 0
	width := make(map[int]int)
	for k := range s.cells {
		if k.Row > lastRow {
			lastRow = k.Row
		}
		if k.Col > width[k.Row] {
			width[k.Row] = k.Col
		}
	}
	out := make([][]string, lastRow)
	for r := 1; r <= lastRow; r++ {
		row := make([]string, width[r])
		for c := 1; c <= width[r]; c++ {
			row[c-1] = s.cells[cellKey{r, c}]
		}
		out[r-1] = row
	}
	return out
}

// =============================================================================
// TEST HOOKS
// =============================================================================

// Values returns the current contents like ReadAll, without counting a call.
func (s *MemorySheet) Values() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valuesLocked()
}

// Cell returns the value at a 1-based position.
func (s *MemorySheet) Cell(row, col int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells[cellKey{row, col}]
}

// Size returns the grid bounds.
func (s *MemorySheet) Size() (rows, cols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.cols
}

// Calls returns how many reads and writes reached the sheet.
func (s *MemorySheet) Calls() (reads, writes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads, s.writes
}

// Rules returns registered highlight rules ordered by key.
func (s *MemorySheet) Rules() []generic.HighlightRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.rules))
	for k := range s.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]generic.HighlightRule, len(keys))
	for i, k := range keys {
		out[i] = s.rules[k]
	}
	return out
}

// FailNext makes the next len(errs) calls fail with errs in order.
func (s *MemorySheet) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, errs...)
}

// RejectRules makes AddHighlightRules fail with err (nil to accept again).
func (s *MemorySheet) RejectRules(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRule = err
}

func (s *MemorySheet) nextFaultLocked() error {
	if len(s.faults) == 0 {
		return nil
	}
	err := s.faults[0]
	s.faults = s.faults[1:]
	return err
}
