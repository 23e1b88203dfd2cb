package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/xuri/excelize/v2"
)

const DefaultStartRow = 7

// Table writes records into the listing sheet of a workbook, one row per record
// starting at startRow.
type Table struct {
	mu       sync.Mutex
	file     *excelize.File
	sheet    string
	schema   *Schema
	startRow int
	current  int
	logger   *slog.Logger
}

// Open loads an existing listing template. An empty sheetName selects the active
// sheet.
func Open(path, sheetName string, schema *Schema, startRow int, logger *slog.Logger) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}

	if sheetName == "" {
		sheetName = f.GetSheetName(f.GetActiveSheetIndex())
	} else if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("sheet %q not found in %s", sheetName, path)
	}

	return newTable(f, sheetName, schema, startRow, logger), nil
}

// New creates a blank workbook whose header row (the row above startRow) carries
// the column names.
func New(schema *Schema, startRow int, logger *slog.Logger) (*Table, error) {
	f := excelize.NewFile()
	t := newTable(f, f.GetSheetName(0), schema, startRow, logger)

	if t.startRow > 1 {
		for _, c := range t.schema.Columns() {
			cell, err := excelize.CoordinatesToCellName(c.Index, t.startRow-1)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(t.sheet, cell, c.Name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write header %q: %w", c.Name, err)
			}
		}
	}

	return t, nil
}

func newTable(f *excelize.File, sheet string, schema *Schema, startRow int, logger *slog.Logger) *Table {
	if schema == nil {
		schema = DefaultSchema()
	}
	if startRow < 1 {
		startRow = DefaultStartRow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		file:     f,
		sheet:    sheet,
		schema:   schema,
		startRow: startRow,
		current:  startRow,
		logger:   logger.With("component", "sheet", "sheet", sheet),
	}
}

// AcquireRow reserves the next free row and returns its 1-based number.
func (t *Table) AcquireRow() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquireRow()
}

func (t *Table) acquireRow() int {
	row := t.current
	t.current++
	return row
}

// Resume moves the write cursor past rows that already carry a title, so a
// reopened output keeps growing instead of overwriting earlier rows. It returns
// the next free row.
func (t *Table) Resume() (int, error) {
	c, ok := t.schema.Column(models.ColTitle)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, models.ColTitle)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.startRow
	for {
		cell, err := excelize.CoordinatesToCellName(c.Index, row)
		if err != nil {
			return 0, err
		}
		v, err := t.file.GetCellValue(t.sheet, cell)
		if err != nil {
			return 0, err
		}
		if v == "" {
			break
		}
		row++
	}

	t.current = row
	return row, nil
}

// WriteCell writes value into the named column of row.
func (t *Table) WriteCell(row int, column string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeCell(row, column, value)
}

func (t *Table) writeCell(row int, column string, value any) error {
	c, ok := t.schema.Column(column)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	if c.AutoFill {
		return fmt.Errorf("%w: %q", ErrAutoFillColumn, column)
	}

	v, err := c.Coerce(value)
	if err != nil {
		return err
	}

	cell, err := excelize.CoordinatesToCellName(c.Index, row)
	if err != nil {
		return err
	}
	return t.file.SetCellValue(t.sheet, cell, v)
}

// WriteRecord writes r into a freshly acquired row and returns the row number.
func (t *Table) WriteRecord(r models.Record) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.acquireRow()
	for column, value := range r.Values() {
		if err := t.writeCell(row, column, value); err != nil {
			return row, fmt.Errorf("row %d: %w", row, err)
		}
	}
	return row, nil
}

// Save appends records to the in-memory workbook. Call SaveAs to write the file.
func (t *Table) Save(ctx context.Context, records []models.Record) error {
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := t.WriteRecord(r)
		if err != nil {
			return err
		}
		if problems := r.Validate(); len(problems) > 0 {
			t.logger.Warn("row has incomplete fields", "row", row, "offer_id", r.OfferID, "sku", r.SKU, "problems", problems)
		}
	}
	return nil
}

// Rows is the number of rows acquired so far.
func (t *Table) Rows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current - t.startRow
}

// CellValue reads back the formatted value of the named column in row.
func (t *Table) CellValue(row int, column string) (string, error) {
	c, ok := t.schema.Column(column)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	cell, err := excelize.CoordinatesToCellName(c.Index, row)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.GetCellValue(t.sheet, cell)
}

func (t *Table) SaveAs(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	t.logger.Info("workbook saved", "path", path, "rows", t.current-t.startRow)
	return nil
}

func (t *Table) Close() error {
	return t.file.Close()
}
