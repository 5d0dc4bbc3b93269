package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/packsync/internal/table"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const sniffSampleSize = 4096

// Delimiters lists the candidates considered by Sniff, in preference order.
var Delimiters = []rune{',', ';', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func loadCSV(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseDelimited(data)
}

// parseDelimited decodes as UTF-8 and falls back to Latin-1 when the bytes
// are not valid UTF-8 or the UTF-8 parse fails.
func parseDelimited(data []byte) (*table.Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	delim := Sniff(sample(data))

	var utfErr error
	if utf8.Valid(data) {
		tbl, err := readDelimited(bytes.NewReader(data), delim)
		if err == nil {
			return tbl, nil
		}
		utfErr = err
	}
	latin := transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder())
	tbl, err := readDelimited(latin, delim)
	if err != nil {
		if utfErr != nil {
			return nil, fmt.Errorf("utf-8: %v; latin-1: %w", utfErr, err)
		}
		return nil, err
	}
	return tbl, nil
}

func sample(data []byte) string {
	if len(data) > sniffSampleSize {
		data = data[:sniffSampleSize]
	}
	// Only valid runes matter for counting delimiters.
	return strings.ToValidUTF8(string(data), "?")
}

func readDelimited(r io.Reader, delim rune) (*table.Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return fromGrid(textGrid(records), true)
}

// Sniff picks the delimiter of a delimited-text sample. A candidate
// qualifies when it appears the same non-zero number of times, outside
// quotes, on every complete line; the highest count wins and ties keep
// candidate order. Without a qualifying candidate the result is ';' when the
// sample contains one and ',' otherwise.
func Sniff(s string) rune {
	lines := sampleLines(s)
	best, bestCount := rune(0), 0
	for _, d := range Delimiters {
		count, ok := consistentCount(lines, d)
		if ok && count > bestCount {
			best, bestCount = d, count
		}
	}
	if best != 0 {
		return best
	}
	if strings.ContainsRune(s, ';') {
		return ';'
	}
	return ','
}

func sampleLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	truncated := !strings.HasSuffix(s, "\n")
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if truncated && len(lines) > 1 {
		// The last line may have been cut by the sample window.
		lines = lines[:len(lines)-1]
	}
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func consistentCount(lines []string, delim rune) (int, bool) {
	if len(lines) == 0 {
		return 0, false
	}
	want := -1
	for _, line := range lines {
		n := countOutsideQuotes(line, delim)
		if n == 0 {
			return 0, false
		}
		if want >= 0 && n != want {
			return 0, false
		}
		want = n
	}
	return want, true
}

func countOutsideQuotes(line string, delim rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			n++
		}
	}
	return n
}
