// Package convert turns the per-model CSV reports saved in the downloads
// folder into filtered workbooks next to them.
package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/packsync/internal/loader"
	"github.com/kingrea/packsync/internal/reshape"
	"github.com/kingrea/packsync/internal/workbook"
)

// ErrNoRows means the report had no row matching the filter.
var ErrNoRows = errors.New("nenhuma linha corresponde ao filtro")

// State is the outcome of one model.
type State int

const (
	Converted State = iota
	Skipped
	Failed
)

func (s State) String() string {
	switch s {
	case Converted:
		return "converted"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Options configures a conversion run.
type Options struct {
	// Dir holds <key>.csv inputs and receives <key>.xlsx outputs.
	Dir string
	// Keys lists the models to convert. Empty means every CSV in Dir.
	Keys []string
	// Skip reports model keys that are never converted. Nil skips nothing.
	Skip func(key string) bool
	// Filter selects the rows kept in the output.
	Filter reshape.Criterion
}

// Result is the outcome for one model.
type Result struct {
	Key    string
	Source string
	Output string
	Rows   int
	State  State
	Err    error
}

// Hooks observe a run. Either field may be nil.
type Hooks struct {
	Before func(index, total int, key string)
	After  func(index, total int, result Result)
}

// Keys returns the configured keys, or the base names of every CSV directly
// inside dir sorted by name.
func Keys(dir string, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return append([]string(nil), configured...), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", workbook.ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("convert: read dir %s: %w", dir, err)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "~") || !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(keys)
	return keys, nil
}

// Run converts every model in order. A failing model never stops the
// others; only an unreadable folder aborts the run.
func Run(opts Options, hooks Hooks) ([]Result, error) {
	keys, err := Keys(opts.Dir, opts.Keys)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(keys))
	for i, key := range keys {
		if hooks.Before != nil {
			hooks.Before(i, len(keys), key)
		}
		var res Result
		if opts.Skip != nil && opts.Skip(key) {
			res = Result{Key: key, State: Skipped}
		} else {
			res = Model(opts.Dir, key, opts.Filter)
		}
		results = append(results, res)
		if hooks.After != nil {
			hooks.After(i, len(keys), res)
		}
	}
	return results, nil
}

// Model converts <dir>/<key>.csv into <dir>/<key>.xlsx holding the rows
// matching filter with every column. A stale output is removed first so a
// failed or skipped model never leaves yesterday's workbook behind.
func Model(dir, key string, filter reshape.Criterion) Result {
	res := Result{
		Key:    key,
		Source: filepath.Join(dir, key+".csv"),
		Output: filepath.Join(dir, key+".xlsx"),
	}
	fail := func(state State, err error) Result {
		res.State = state
		res.Err = err
		return res
	}

	if err := os.Remove(res.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail(Failed, fmt.Errorf("convert: remove %s: %w", res.Output, err))
	}
	tbl, err := loader.Load(res.Source)
	if err != nil {
		return fail(Failed, err)
	}
	rows, err := reshape.Select(tbl, filter)
	if err != nil {
		return fail(Skipped, err)
	}
	if len(rows) == 0 {
		return fail(Skipped, fmt.Errorf("%w: %s", ErrNoRows, filter))
	}

	sheet := workbook.Sheet{Name: SheetName(key), Header: tbl.Columns()}
	sheet.Rows = make([][]string, len(rows))
	for i, r := range rows {
		sheet.Rows[i] = tbl.Strings(r)
	}
	if err := workbook.Export(res.Output, sheet); err != nil {
		return fail(Failed, fmt.Errorf("convert: export %s: %w", res.Output, err))
	}
	res.Rows = len(rows)
	res.State = Converted
	return res
}

// SheetName makes key usable as a worksheet name.
func SheetName(key string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(key))
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}
