package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewPadsShortRowsAndDedupesHeader(t *testing.T) {
	tbl := FromStrings(
		[]string{"A", "B", "A", "A.1"},
		[][]string{{"1"}, {"1", "2", "3", "4"}},
	)
	want := []string{"A", "B", "A.2", "A.1"}
	if diff := cmp.Diff(want, tbl.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if got := tbl.Cell(0, 3); !got.IsBlank() {
		t.Fatalf("padded cell = %q, want blank", got.String())
	}
	if got := tbl.Strings(1); got[2] != "3" {
		t.Fatalf("row 1 col 2 = %q, want 3", got[2])
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Blank(), ""},
		{Text(""), ""},
		{Text(" x "), " x "},
		{Number(42), "42"},
		{Number(1.25), "1.25"},
		{Bool(true), "TRUE"},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
	if !Text("").IsBlank() {
		t.Fatalf("empty text must be blank")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	tbl := FromStrings([]string{"A"}, [][]string{{"x"}})
	cols := tbl.Columns()
	cols[0] = "Z"
	row := tbl.Row(0)
	row[0] = Text("y")
	if tbl.Columns()[0] != "A" || tbl.Cell(0, 0).String() != "x" {
		t.Fatalf("table was mutated through an accessor")
	}
}
