package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", FileName)
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendSplitsMultilineMessages(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local) }
	book.Append(LevelError, "Falha ao processar Base_B.xlsx\n\n  zip: not a valid zip file  ")
	book.Append(LevelWarn, "   ")

	lines, total := book.Tail(10)
	if total != 2 {
		t.Fatalf("total = %d, want 2: %q", total, lines)
	}
	if lines[0] != "2024-03-01 09:30:00 ERROR Falha ao processar Base_B.xlsx" {
		t.Fatalf("first line = %q", lines[0])
	}
	if lines[1] != "2024-03-01 09:30:00 ERROR zip: not a valid zip file" {
		t.Fatalf("second line = %q", lines[1])
	}
}

func TestTailMissingFile(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	if lines, total := book.Tail(4); lines != nil || total != 0 {
		t.Fatalf("Tail on empty logbook = %q, %d", lines, total)
	}
}
