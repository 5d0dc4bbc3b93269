package workbook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func newWorkbook(t *testing.T, path string, sheets map[string][][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for name, rows := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet %s: %v", name, err)
		}
		for i, row := range rows {
			cells := make([]interface{}, len(row))
			for j, v := range row {
				cells[j] = v
			}
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(name, cell, &cells); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("rows %s: %v", sheet, err)
	}
	return rows
}

func sampleSheet() Sheet {
	return Sheet{
		Name:   "A14",
		Header: []string{"PACK", "CONTEÚDO"},
		Rows:   [][]string{{"P1", "*X*"}, {"", "*Z*"}},
	}
}

func TestSelectorMatch(t *testing.T) {
	sel := DefaultSelector()
	cases := map[string]bool{
		"Base_North.xlsx":  true,
		"~Base_lock.xlsx":  false,
		"readme.txt":       false,
		"minha base.XLSM":  true,
		"DATABASE.xlsb":    true,
		"Base_North.csv":   false,
		"Relatorio.xlsx":   false,
		"~$Base_tmp.xlsx":  false,
		"base-south.xlsx":  true,
		"BASE_old.xlsx.bk": false,
	}
	for name, want := range cases {
		if got := sel.Match(name); got != want {
			t.Fatalf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestTargetsSelectsOnlyBaseWorkbooks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Base_North.xlsx", "~Base_lock.xlsx", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "Base_dir.xlsx"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Targets(dir, DefaultSelector())
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "Base_North.xlsx")}, got); diff != "" {
		t.Fatalf("targets (-want +got):\n%s", diff)
	}
}

func TestTargetsMissingDirectory(t *testing.T) {
	_, err := Targets(filepath.Join(t.TempDir(), "Bases"), DefaultSelector())
	if !errors.Is(err, ErrDirectoryNotFound) {
		t.Fatalf("expected ErrDirectoryNotFound, got %v", err)
	}
}

func TestFanOutContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	newWorkbook(t, filepath.Join(dir, "Base_A.xlsx"), map[string][][]string{"Resumo": {{"keep"}}})
	if err := os.WriteFile(filepath.Join(dir, "Base_B.xlsx"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	newWorkbook(t, filepath.Join(dir, "Base_C.xlsx"), map[string][][]string{
		"A14": {{"OLD", "OLD", "OLD"}, {"1", "2", "3"}, {"4"}, {"5"}},
	})

	var before []string
	report, err := FanOut(dir, DefaultSelector(), sampleSheet(), Hooks{
		Before: func(i, total int, name string) { before = append(before, name) },
	})
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if diff := cmp.Diff([]string{"Base_A.xlsx", "Base_B.xlsx", "Base_C.xlsx"}, before); diff != "" {
		t.Fatalf("processing order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Base_A.xlsx", "Base_C.xlsx"}, report.Succeeded()); diff != "" {
		t.Fatalf("succeeded (-want +got):\n%s", diff)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].File != "Base_B.xlsx" {
		t.Fatalf("failed = %+v, want Base_B.xlsx", failed)
	}

	want := [][]string{{"PACK", "CONTEÚDO"}, {"P1", "*X*"}, {"", "*Z*"}}
	for _, name := range []string{"Base_A.xlsx", "Base_C.xlsx"} {
		got := trimRows(readSheet(t, filepath.Join(dir, name), "A14"))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s A14 (-want +got):\n%s", name, diff)
		}
	}
	if got := readSheet(t, filepath.Join(dir, "Base_A.xlsx"), "Resumo"); got[0][0] != "keep" {
		t.Fatalf("other sheets must be untouched, got %v", got)
	}
}

func TestReplaceRejectsXLSB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Base.xlsb")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Replace(path, sampleSheet()); !errors.Is(err, ErrUnsupportedTarget) {
		t.Fatalf("expected ErrUnsupportedTarget, got %v", err)
	}
}

func TestExportCreatesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "341.xlsx")
	sheet := Sheet{Name: "341", Header: []string{"order_type", "id"}, Rows: [][]string{{"PRE", "1"}}}
	if err := Export(path, sheet); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got := readSheet(t, path, "341")
	if diff := cmp.Diff([][]string{{"order_type", "id"}, {"PRE", "1"}}, got); diff != "" {
		t.Fatalf("export (-want +got):\n%s", diff)
	}
}

// trimRows drops the blank cells left behind by clearing a wider sheet.
func trimRows(rows [][]string) [][]string {
	var out [][]string
	for _, row := range rows {
		end := len(row)
		for end > 0 && row[end-1] == "" {
			end--
		}
		if end == 0 {
			continue
		}
		out = append(out, row[:end])
	}
	return out
}
