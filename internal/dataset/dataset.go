package dataset

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header
	ErrMissingColumn = errors.New("missing column")
	// ErrMetadataTooShort is returned when the file ends inside the metadata block
	ErrMetadataTooShort = errors.New("file shorter than metadata block")
	// ErrDecode is returned when neither supported encoding can decode the file
	ErrDecode = errors.New("cannot decode dataset")
)

// Dataset is an in-memory table with the opaque lines that precede its header.
// Row identity is the positional index; order is stable across load and save.
// Cells are guarded by a RWMutex: workers write distinct cells while a
// checkpoint reads the whole table.
type Dataset struct {
	Metadata []string // raw lines including terminators, written back verbatim

	mu      sync.RWMutex
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates a dataset from a header and rows.
// Short rows are padded with empty cells.
func New(metadata, columns []string, rows [][]string) *Dataset {
	ds := &Dataset{
		Metadata: metadata,
		columns:  append([]string(nil), columns...),
	}
	ds.reindex()

	ds.rows = make([][]string, len(rows))
	for i, row := range rows {
		ds.rows[i] = normalizeRow(row, len(columns))
	}
	return ds
}

func normalizeRow(row []string, width int) []string {
	out := make([]string, width, max(width, len(row)))
	copy(out, row)
	if len(row) > width {
		out = append(out[:width], row[width:]...)
	}
	return out
}

func (d *Dataset) reindex() {
	d.index = make(map[string]int, len(d.columns))
	for i, c := range d.columns {
		if _, dup := d.index[c]; !dup {
			d.index[c] = i
		}
	}
}

// Len returns the number of data rows
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

// Columns returns a copy of the header
func (d *Dataset) Columns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.columns...)
}

// HasColumn reports whether the header contains name
func (d *Dataset) HasColumn(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[name]
	return ok
}

// EnsureColumn appends an empty column if name is absent.
// It reports whether the column was created.
func (d *Dataset) EnsureColumn(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[name]; ok {
		return false
	}

	d.columns = append(d.columns, name)
	d.index[name] = len(d.columns) - 1
	for i, row := range d.rows {
		d.rows[i] = appendCell(row, len(d.columns)-1)
	}
	return true
}

// appendCell grows row so position pos exists and is empty
func appendCell(row []string, pos int) []string {
	for len(row) <= pos {
		row = append(row, "")
	}
	return row
}

// Get returns the cell at (row, column)
func (d *Dataset) Get(row int, column string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	col, err := d.cell(row, column)
	if err != nil {
		return "", err
	}
	return d.rows[row][col], nil
}

// Set writes the cell at (row, column)
func (d *Dataset) Set(row int, column, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	col, err := d.cell(row, column)
	if err != nil {
		return err
	}
	d.rows[row][col] = value
	return nil
}

func (d *Dataset) cell(row int, column string) (int, error) {
	col, ok := d.index[column]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingColumn, column)
	}
	if row < 0 || row >= len(d.rows) {
		return 0, fmt.Errorf("row %d out of range [0, %d)", row, len(d.rows))
	}
	return col, nil
}

// IsBlank reports whether a cell holds no value
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// Snapshot returns a deep copy of the header and rows
func (d *Dataset) Snapshot() (columns []string, rows [][]string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	columns = append([]string(nil), d.columns...)
	rows = make([][]string, len(d.rows))
	for i, row := range d.rows {
		rows[i] = append([]string(nil), row...)
	}
	return columns, rows
}
