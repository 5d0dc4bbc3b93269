// Package table holds the in-memory representation of a loaded report: an
// ordered list of named columns and rows of scalar cells. A Table is never
// modified after construction; every accessor hands out copies.
package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the scalar type stored in a Value.
type Kind int

const (
	KindBlank Kind = iota
	KindText
	KindNumber
	KindBool
)

// Value is a single cell.
type Value struct {
	kind Kind
	text string
	num  float64
	flag bool
}

// Blank returns the empty cell.
func Blank() Value { return Value{} }

// Text wraps a string cell. The empty string is stored as a blank cell.
func Text(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: KindText, text: s}
}

// Number wraps a numeric cell.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a boolean cell.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Kind reports the scalar type of the cell.
func (v Value) Kind() Kind { return v.kind }

// IsBlank reports whether the cell holds nothing.
func (v Value) IsBlank() bool { return v.kind == KindBlank }

// String renders the cell the way it is written back into a sheet. Integral
// numbers print without a fractional part.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		if v.flag {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// Table is an immutable row/column grid with named columns.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New builds a table from a header and rows. Rows shorter than the header are
// padded with blanks and longer rows are truncated; callers that care about
// surplus cells must check before calling New. Duplicate column names are
// disambiguated as NAME.1, NAME.2 in column order.
func New(columns []string, rows [][]Value) *Table {
	names := dedupe(columns)
	t := &Table{
		columns: names,
		index:   make(map[string]int, len(names)),
		rows:    make([][]Value, len(rows)),
	}
	for i, name := range names {
		t.index[name] = i
	}
	for i, row := range rows {
		cells := make([]Value, len(names))
		copy(cells, row)
		t.rows[i] = cells
	}
	return t
}

// FromStrings is a convenience constructor for text-only tables.
func FromStrings(columns []string, rows [][]string) *Table {
	values := make([][]Value, len(rows))
	for i, row := range rows {
		cells := make([]Value, len(row))
		for j, s := range row {
			cells[j] = Text(s)
		}
		values[i] = cells
	}
	return New(columns, values)
}

func dedupe(columns []string) []string {
	names := make([]string, len(columns))
	seen := make(map[string]int, len(columns))
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}
	for i, c := range columns {
		n, dup := seen[c]
		seen[c] = n + 1
		if !dup {
			names[i] = c
			continue
		}
		candidate := fmt.Sprintf("%s.%d", c, n)
		for taken[candidate] {
			n++
			candidate = fmt.Sprintf("%s.%d", c, n)
		}
		seen[c] = n + 1
		taken[candidate] = true
		names[i] = candidate
	}
	return names
}

// Columns returns the column names in source order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Width is the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Len is the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// ColumnIndex looks up a column by exact name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Cell returns the value at row r, column c.
func (t *Table) Cell(r, c int) Value {
	if r < 0 || r >= len(t.rows) || c < 0 || c >= len(t.columns) {
		return Value{}
	}
	return t.rows[r][c]
}

// Row returns a copy of row r.
func (t *Table) Row(r int) []Value {
	out := make([]Value, len(t.columns))
	copy(out, t.rows[r])
	return out
}

// Strings renders row r as text cells, blanks as "".
func (t *Table) Strings(r int) []string {
	out := make([]string, len(t.columns))
	for i, v := range t.rows[r] {
		out[i] = v.String()
	}
	return out
}

// Describe summarizes the shape for status messages.
func (t *Table) Describe() string {
	return fmt.Sprintf("%d linhas, %d colunas", len(t.rows), len(t.columns))
}

// Join quotes column names for error messages.
func Join(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
