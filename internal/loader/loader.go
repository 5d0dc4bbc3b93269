// Package loader reads downloaded portal reports into a table.Table. The
// format is chosen from the file extension; delimited text has its delimiter
// and encoding detected.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/packsync/internal/table"
)

// Format names a supported input family.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatXLSB Format = "xlsb"
	FormatCSV  Format = "csv"
)

var formats = map[string]Format{
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
	".xls":  FormatXLS,
	".xlsb": FormatXLSB,
	".csv":  FormatCSV,
}

// ErrUnsupportedFormat is returned for extensions outside the known set.
var ErrUnsupportedFormat = errors.New("formato de arquivo não suportado")

// LoadError wraps a parse failure of a supported file.
type LoadError struct {
	Path   string
	Format Format
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("erro ao ler arquivo %s (%s): %v", filepath.Base(e.Path), e.Format, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Detect maps a path to its input format.
func Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formats[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Supported reports whether the loader can read the path.
func Supported(path string) bool {
	_, err := Detect(path)
	return err == nil
}

// Load reads the file at path. The file is opened read-only.
func Load(path string) (*table.Table, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	var tbl *table.Table
	switch format {
	case FormatXLSX:
		tbl, err = loadXLSX(path)
	case FormatXLS:
		tbl, err = loadXLS(path)
	case FormatXLSB:
		tbl, err = loadXLSB(path)
	case FormatCSV:
		tbl, err = loadCSV(path)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Format: format, Err: err}
	}
	return tbl, nil
}

// Newest returns the most recently modified supported file directly inside
// dir. Browser downloads land there under generated names.
func Newest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("loader: read dir %s: %w", dir, err)
	}
	var newest string
	var newestInfo fs.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "~") || !Supported(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", fmt.Errorf("loader: stat %s: %w", entry.Name(), err)
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest = filepath.Join(dir, entry.Name())
			newestInfo = info
		}
	}
	if newest == "" {
		return "", fmt.Errorf("loader: no supported file in %s", dir)
	}
	return newest, nil
}

// fromGrid turns a raw cell grid into a table. The first row with any
// non-blank cell is the header. Spreadsheets are rectangular, so cells right
// of the header widen it with unnamed columns; delimited text is strict and
// rejects a row with more non-blank fields than the header.
func fromGrid(grid [][]table.Value, strict bool) (*table.Table, error) {
	start := -1
	for i, row := range grid {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.New("arquivo sem cabeçalho")
	}
	header := trimTrailingBlanks(grid[start])
	width := len(header)
	if !strict {
		for _, row := range grid[start+1:] {
			if n := len(trimTrailingBlanks(row)); n > width {
				width = n
			}
		}
	}
	columns := make([]string, width)
	for i := range columns {
		if i < len(header) {
			columns[i] = header[i].String()
		}
		if columns[i] == "" {
			columns[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}
	rows := make([][]table.Value, 0, len(grid)-start-1)
	for n, row := range grid[start+1:] {
		if blankRow(row) {
			continue
		}
		if len(row) > width {
			if used := len(trimTrailingBlanks(row)); used > width {
				return nil, fmt.Errorf("linha %d: esperado %d campos, encontrado %d", start+n+2, width, used)
			}
			row = row[:width]
		}
		rows = append(rows, row)
	}
	return table.New(columns, rows), nil
}

func blankRow(row []table.Value) bool {
	for _, v := range row {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}

func trimTrailingBlanks(row []table.Value) []table.Value {
	end := len(row)
	for end > 0 && row[end-1].IsBlank() {
		end--
	}
	return row[:end]
}

func textGrid(records [][]string) [][]table.Value {
	grid := make([][]table.Value, len(records))
	for i, rec := range records {
		row := make([]table.Value, len(rec))
		for j, s := range rec {
			row[j] = table.Text(s)
		}
		grid[i] = row
	}
	return grid
}
