package convert

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kingrea/packsync/internal/reshape"
	"github.com/xuri/excelize/v2"
)

var preFilter = reshape.Criterion{Column: "order_type", Value: "PRE", Exact: true}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	return rows
}

func TestModelKeepsPreRowsWithAllColumns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "341.csv"), "order_type;order_id;model\nPRE;10;341\nPOS;11;341\npre;12;341\nPRE;13;341\n")

	res := Model(dir, "341", preFilter)
	if res.State != Converted || res.Err != nil {
		t.Fatalf("Model = %+v", res)
	}
	if res.Rows != 2 {
		t.Fatalf("rows = %d, want 2", res.Rows)
	}
	want := [][]string{{"order_type", "order_id", "model"}, {"PRE", "10", "341"}, {"PRE", "13", "341"}}
	if diff := cmp.Diff(want, readRows(t, res.Output, "341")); diff != "" {
		t.Fatalf("output (-want +got):\n%s", diff)
	}
}

func TestModelRemovesStaleOutputWhenNothingMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "512.csv"), "order_type,order_id\nPOS,1\n")
	stale := filepath.Join(dir, "512.xlsx")
	writeFile(t, stale, "old")

	res := Model(dir, "512", preFilter)
	if res.State != Skipped || !errors.Is(res.Err, ErrNoRows) {
		t.Fatalf("Model = %+v, want skipped with ErrNoRows", res)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale output should be removed, stat err = %v", err)
	}
}

func TestModelRemovesStaleOutputWhenSourceFailsToLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "420.csv"), "order_type,order_id\nPRE,1,extra\n")
	stale := filepath.Join(dir, "420.xlsx")
	writeFile(t, stale, "old")

	res := Model(dir, "420", preFilter)
	if res.State != Failed || res.Err == nil {
		t.Fatalf("Model = %+v, want failed", res)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale output should be removed before loading, stat err = %v", err)
	}
}

func TestModelMissingColumnIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "700.csv"), "tipo,id\nPRE,1\n")
	res := Model(dir, "700", preFilter)
	if res.State != Skipped || !errors.Is(res.Err, reshape.ErrMissingColumn) {
		t.Fatalf("Model = %+v, want skipped with ErrMissingColumn", res)
	}
}

func TestRunSkipsConfiguredAndContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "100.csv"), "order_type,id\nPRE,1\n")
	writeFile(t, filepath.Join(dir, "611.csv"), "order_type,id\nPRE,2\n")
	writeFile(t, filepath.Join(dir, "300.csv"), "order_type,id\nPRE,3\n")

	var seen []string
	results, err := Run(Options{
		Dir:    dir,
		Keys:   []string{"100", "200", "611", "300"},
		Skip:   func(key string) bool { return key == "611" },
		Filter: preFilter,
	}, Hooks{Before: func(i, total int, key string) { seen = append(seen, key) }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"100", "200", "611", "300"}, seen); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	states := make([]State, len(results))
	for i, r := range results {
		states[i] = r.State
	}
	if diff := cmp.Diff([]State{Converted, Failed, Skipped, Converted}, states); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "611.xlsx")); !os.IsNotExist(err) {
		t.Fatalf("skipped model must not be written")
	}
}

func TestKeysDiscoversCSVFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.CSV", "~lock.csv", "c.xlsx"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	got, err := Keys(dir, nil)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}

func TestSheetName(t *testing.T) {
	cases := map[string]string{
		"341":                                "341",
		"a/b":                                "a_b",
		"":                                   "Sheet1",
		"0123456789012345678901234567890123": "0123456789012345678901234567890",
	}
	for in, want := range cases {
		if got := SheetName(in); got != want {
			t.Fatalf("SheetName(%q) = %q, want %q", in, got, want)
		}
	}
}
