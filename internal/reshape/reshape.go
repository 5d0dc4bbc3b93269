// Package reshape turns the A14 options report into the PACK / CONTEÚDO
// table written to the base workbooks.
//
// Rows are kept when the filter column, trimmed and uppercased, equals the
// filter value. Every column whose name contains the marker is an optional
// column: the first one carries the pack code, the others the pack content.
package reshape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/packsync/internal/table"
)

const (
	DefaultFilterColumn = "CODICE_FAMIGLIA"
	DefaultFilterValue  = "PKG"
	DefaultMarker       = "CODICE_OPTIONAL"
	DefaultDelimiter    = "*"

	HeaderPack    = "PACK"
	HeaderContent = "CONTEÚDO"
)

var (
	// ErrMissingColumn means the filter column is absent from the table.
	ErrMissingColumn = errors.New("coluna não encontrada")
	// ErrNoMatchingRows is a soft condition: the returned Result is valid
	// and empty.
	ErrNoMatchingRows = errors.New("nenhuma linha corresponde ao filtro")
	// ErrNoOptionalColumns means no column name contains the marker.
	ErrNoOptionalColumns = errors.New("nenhuma coluna opcional encontrada")
)

// Criterion selects rows by the value of one column.
type Criterion struct {
	Column string
	Value  string
	// Exact compares raw cell text. Otherwise both sides are trimmed and
	// uppercased before comparison.
	Exact bool
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s = '%s'", c.Column, c.Value)
}

func (c Criterion) matches(v table.Value) bool {
	if c.Exact {
		return v.String() == c.Value
	}
	return normalize(v.String()) == normalize(c.Value)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Options configures Reshape.
type Options struct {
	Filter    Criterion
	Marker    string
	Delimiter string
}

// DefaultOptions returns the settings used for the A14 report.
func DefaultOptions() Options {
	return Options{
		Filter:    Criterion{Column: DefaultFilterColumn, Value: DefaultFilterValue},
		Marker:    DefaultMarker,
		Delimiter: DefaultDelimiter,
	}
}

// Row is one PACK / CONTEÚDO pair.
type Row struct {
	Pack    string
	Content string
}

// Result is the reshaped table plus what was discovered on the way.
type Result struct {
	PackColumn     string
	ContentColumns []string
	Scanned        int
	Rows           []Row
}

// Header returns the output column titles.
func (r Result) Header() []string {
	return []string{HeaderPack, HeaderContent}
}

// Records renders the rows as string records in output order.
func (r Result) Records() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = []string{row.Pack, row.Content}
	}
	return out
}

// Reshape filters tbl and builds one Row per matching input row, keeping the
// input order. The table is only read.
func Reshape(tbl *table.Table, opts Options) (Result, error) {
	res := Result{Scanned: tbl.Len()}
	matched, err := Select(tbl, opts.Filter)
	if err != nil {
		return res, err
	}
	if len(matched) == 0 {
		return res, fmt.Errorf("%w: %s", ErrNoMatchingRows, opts.Filter)
	}

	optional := DiscoverColumns(tbl.Columns(), opts.Marker)
	if len(optional) == 0 {
		return res, fmt.Errorf("%w: nenhum nome contém '%s'", ErrNoOptionalColumns, opts.Marker)
	}
	res.PackColumn = optional[0]
	res.ContentColumns = optional[1:]

	packIdx, _ := tbl.ColumnIndex(res.PackColumn)
	contentIdx := make([]int, len(res.ContentColumns))
	for i, name := range res.ContentColumns {
		contentIdx[i], _ = tbl.ColumnIndex(name)
	}

	res.Rows = make([]Row, 0, len(matched))
	values := make([]string, len(contentIdx))
	for _, r := range matched {
		for i, c := range contentIdx {
			values[i] = tbl.Cell(r, c).String()
		}
		res.Rows = append(res.Rows, Row{
			Pack:    strings.TrimSpace(tbl.Cell(r, packIdx).String()),
			Content: Content(values, opts.Delimiter),
		})
	}
	return res, nil
}

// Select returns the indexes of rows matching c, in table order.
func Select(tbl *table.Table, c Criterion) ([]int, error) {
	col, ok := tbl.ColumnIndex(c.Column)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'. Colunas disponíveis: %s", ErrMissingColumn, c.Column, table.Join(tbl.Columns()))
	}
	var rows []int
	for r := 0; r < tbl.Len(); r++ {
		if c.matches(tbl.Cell(r, col)) {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// DiscoverColumns returns, in order, the names containing marker. The match
// is a case-sensitive substring test.
func DiscoverColumns(names []string, marker string) []string {
	var out []string
	for _, name := range names {
		if strings.Contains(name, marker) {
			out = append(out, name)
		}
	}
	return out
}

// Content joins the non-blank trimmed values with delim and wraps the result
// in delim. With no value left it returns "".
func Content(values []string, delim string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return delim + strings.Join(kept, delim) + delim
}
