// Package twoda reads and writes 2DA tables: named columns, labelled rows and
// string cells. A blank cell is "unset" and resolves to its column default at
// lookup time.
package twoda

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrCorrupt is returned for malformed table data.
	ErrCorrupt = errors.New("corrupt 2da")
	// ErrNoColumn is returned when a column name is not in the table.
	ErrNoColumn = errors.New("no such column")
	// ErrNoRow is returned for a row index outside the table.
	ErrNoRow = errors.New("no such row")
)

// Blank is the text-format marker for an unset cell.
const Blank = "****"

// Table is a 2DA table. Row and column lookups by index are O(1); lookups by
// column name go through a case-insensitive index.
type Table struct {
	headers  []string
	defaults []string
	colIndex map[string]int
	labels   []string
	rows     [][]string
}

// New returns an empty table with the given column headers.
func New(headers ...string) *Table {
	t := &Table{colIndex: make(map[string]int)}
	for _, h := range headers {
		t.AddColumn(h, "")
	}
	return t
}

// Headers returns the column names in order.
func (t *Table) Headers() []string { return slices.Clone(t.headers) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.headers) }

// Height returns the number of rows.
func (t *Table) Height() int { return len(t.rows) }

// Column returns the index of the named column.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.colIndex[strings.ToLower(name)]
	return i, ok
}

// AddColumn appends a column; existing rows get an unset cell. Adding a name
// that already exists only updates its default.
func (t *Table) AddColumn(name, def string) {
	if i, ok := t.Column(name); ok {
		t.defaults[i] = def
		return
	}
	t.colIndex[strings.ToLower(name)] = len(t.headers)
	t.headers = append(t.headers, name)
	t.defaults = append(t.defaults, def)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
}

// RemoveColumn deletes the named column and its cells.
func (t *Table) RemoveColumn(name string) error {
	c, ok := t.Column(name)
	if !ok {
		return errors.Wrapf(ErrNoColumn, "%q", name)
	}
	t.headers = slices.Delete(t.headers, c, c+1)
	t.defaults = slices.Delete(t.defaults, c, c+1)
	for i := range t.rows {
		t.rows[i] = slices.Delete(t.rows[i], c, c+1)
	}
	t.reindex()
	return nil
}

func (t *Table) reindex() {
	t.colIndex = make(map[string]int, len(t.headers))
	for i, h := range t.headers {
		t.colIndex[strings.ToLower(h)] = i
	}
}

// SetDefault sets the value unset cells in the column resolve to.
func (t *Table) SetDefault(col, value string) error {
	c, ok := t.Column(col)
	if !ok {
		return errors.Wrapf(ErrNoColumn, "%q", col)
	}
	t.defaults[c] = value
	return nil
}

// Default returns the column default.
func (t *Table) Default(col string) string {
	c, ok := t.Column(col)
	if !ok {
		return ""
	}
	return t.defaults[c]
}

// AddRow appends a row with the given label and cell values keyed by column
// name. Missing columns are left unset. It returns the new row index.
func (t *Table) AddRow(label string, cells map[string]string) (int, error) {
	row := make([]string, len(t.headers))
	for name, v := range cells {
		c, ok := t.Column(name)
		if !ok {
			return 0, errors.Wrapf(ErrNoColumn, "%q", name)
		}
		row[c] = v
	}
	if label == "" {
		label = fmt.Sprint(len(t.rows))
	}
	t.labels = append(t.labels, label)
	t.rows = append(t.rows, row)
	return len(t.rows) - 1, nil
}

// RemoveRow deletes row i. Later rows shift down by one.
func (t *Table) RemoveRow(i int) error {
	if i < 0 || i >= len(t.rows) {
		return errors.Wrapf(ErrNoRow, "%d", i)
	}
	t.rows = slices.Delete(t.rows, i, i+1)
	t.labels = slices.Delete(t.labels, i, i+1)
	return nil
}

// RowLabel returns the label of row i.
func (t *Table) RowLabel(i int) string {
	if i < 0 || i >= len(t.labels) {
		return ""
	}
	return t.labels[i]
}

// SetRowLabel renames row i.
func (t *Table) SetRowLabel(i int, label string) error {
	if i < 0 || i >= len(t.labels) {
		return errors.Wrapf(ErrNoRow, "%d", i)
	}
	t.labels[i] = label
	return nil
}

// RowByLabel finds the first row with the given label.
func (t *Table) RowByLabel(label string) (int, bool) {
	i := slices.Index(t.labels, label)
	return i, i >= 0
}

// Raw returns the stored cell and whether it is set, without default fallback.
func (t *Table) Raw(row, col int) (string, bool) {
	if row < 0 || row >= len(t.rows) || col < 0 || col >= len(t.headers) {
		return "", false
	}
	v := t.rows[row][col]
	return v, v != ""
}

// Cell returns the cell at (row, col), falling back to the column default
// when the cell is unset. Out of range coordinates yield "".
func (t *Table) Cell(row, col int) string {
	if v, ok := t.Raw(row, col); ok {
		return v
	}
	if col < 0 || col >= len(t.defaults) {
		return ""
	}
	return t.defaults[col]
}

// Get returns the cell in the named column, with default fallback.
func (t *Table) Get(row int, col string) string {
	c, ok := t.Column(col)
	if !ok {
		return ""
	}
	return t.Cell(row, c)
}

// Set stores a value. An empty value unsets the cell.
func (t *Table) Set(row int, col, value string) error {
	c, ok := t.Column(col)
	if !ok {
		return errors.Wrapf(ErrNoColumn, "%q", col)
	}
	if row < 0 || row >= len(t.rows) {
		return errors.Wrapf(ErrNoRow, "%d", row)
	}
	t.rows[row][c] = value
	return nil
}

// Equal compares headers, row labels and raw cells. Column defaults are a
// lookup property and are not compared.
func (t *Table) Equal(o *Table) bool {
	if !slices.Equal(t.headers, o.headers) || !slices.Equal(t.labels, o.labels) {
		return false
	}
	return slices.EqualFunc(t.rows, o.rows, func(a, b []string) bool { return slices.Equal(a, b) })
}
