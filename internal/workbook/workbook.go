// Package workbook writes a result sheet into the base workbooks kept in a
// folder. Each target is opened, rewritten, saved and closed before the next
// one is touched; a failure on one file never stops the others.
package workbook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultMarker = "BASE"

	minColumnWidth = 8
	maxColumnWidth = 120
)

// DefaultExtensions are the workbook types selected as targets.
var DefaultExtensions = []string{".xlsb", ".xlsx", ".xlsm"}

// ErrDirectoryNotFound aborts a fan-out before any file is touched.
var ErrDirectoryNotFound = errors.New("pasta não encontrada")

// ErrUnsupportedTarget marks targets selected by name that cannot be written.
var ErrUnsupportedTarget = errors.New("formato não suportado para escrita")

// Sheet is the content written into each target.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Selector decides which files in the folder are targets.
type Selector struct {
	Marker     string
	Extensions []string
}

// DefaultSelector matches *BASE* workbooks.
func DefaultSelector() Selector {
	return Selector{Marker: DefaultMarker, Extensions: DefaultExtensions}
}

// Match reports whether a file name is a target: the uppercased name
// contains the marker, it is not an Office lock file and the extension is
// listed.
func (s Selector) Match(name string) bool {
	if strings.HasPrefix(name, "~") {
		return false
	}
	if !strings.Contains(strings.ToUpper(name), strings.ToUpper(s.Marker)) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// WriteError records why one target could not be updated.
type WriteError struct {
	File string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("falha ao processar %s: %v", e.File, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FileResult is the outcome for one target.
type FileResult struct {
	Name string
	Path string
	Err  error
}

// OK reports whether the target was written.
func (r FileResult) OK() bool { return r.Err == nil }

// Report collects per-target outcomes in processing order.
type Report struct {
	Files []FileResult
}

// Succeeded returns the names of the targets written.
func (r Report) Succeeded() []string {
	var out []string
	for _, f := range r.Files {
		if f.OK() {
			out = append(out, f.Name)
		}
	}
	return out
}

// Failed returns the failures.
func (r Report) Failed() []*WriteError {
	var out []*WriteError
	for _, f := range r.Files {
		var we *WriteError
		if errors.As(f.Err, &we) {
			out = append(out, we)
		}
	}
	return out
}

// Targets lists matching files directly inside dir, sorted by name.
func Targets(dir string, sel Selector) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("workbook: read dir %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !sel.Match(entry.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Hooks observe a fan-out as it progresses. Either field may be nil.
type Hooks struct {
	Before func(index, total int, name string)
	After  func(index, total int, result FileResult)
}

// FanOut replaces sheet in every target under dir.
func FanOut(dir string, sel Selector, sheet Sheet, hooks Hooks) (Report, error) {
	paths, err := Targets(dir, sel)
	if err != nil {
		return Report{}, err
	}
	report := Report{Files: make([]FileResult, 0, len(paths))}
	for i, path := range paths {
		name := filepath.Base(path)
		if hooks.Before != nil {
			hooks.Before(i, len(paths), name)
		}
		res := FileResult{Name: name, Path: path}
		if err := Replace(path, sheet); err != nil {
			res.Err = &WriteError{File: name, Err: err}
		}
		report.Files = append(report.Files, res)
		if hooks.After != nil {
			hooks.After(i, len(paths), res)
		}
	}
	return report, nil
}

// Replace opens the workbook at path, clears or creates the sheet, writes
// header and rows, fits column widths and saves.
func Replace(path string, sheet Sheet) (err error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsb") {
		return fmt.Errorf("%w: .xlsb", ErrUnsupportedTarget)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	idx, err := f.GetSheetIndex(sheet.Name)
	if err != nil {
		return err
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet.Name); err != nil {
			return err
		}
	} else if err := clearSheet(f, sheet.Name); err != nil {
		return err
	}
	if err := fill(f, sheet); err != nil {
		return err
	}
	return f.Save()
}

// Export writes sheet into a new workbook at path, replacing any file there.
func Export(path string, sheet Sheet) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
		return err
	}
	if err := fill(f, sheet); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func clearSheet(f *excelize.File, name string) error {
	rows, err := f.GetRows(name)
	if err != nil {
		return err
	}
	for r, row := range rows {
		for c := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellFormula(name, cell, ""); err != nil {
				return err
			}
			if err := f.SetCellValue(name, cell, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func fill(f *excelize.File, sheet Sheet) error {
	widths := make(map[int]int)
	put := func(rowNum int, values []string) error {
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
			if w := runewidth.StringWidth(v); w > widths[i] {
				widths[i] = w
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		return f.SetSheetRow(sheet.Name, cell, &cells)
	}
	if err := put(1, sheet.Header); err != nil {
		return err
	}
	for i, row := range sheet.Rows {
		if err := put(i+2, row); err != nil {
			return err
		}
	}
	return autofit(f, sheet.Name, widths)
}

// autofit sizes each written column to its widest cell.
func autofit(f *excelize.File, sheet string, widths map[int]int) error {
	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		width := float64(w + 2)
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}
