package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/extrame/xls"
	"github.com/kingrea/packsync/internal/table"
)

// oleSignature opens every genuine BIFF workbook.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// loadXLS reads the first sheet of a legacy workbook. Portal exports named
// .xls are frequently delimited text; those are parsed as such.
func loadXLS(path string) (tbl *table.Table, err error) {
	head, err := readHead(path, len(oleSignature))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head, oleSignature) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return parseDelimited(data)
	}

	// The BIFF decoder panics on some truncated streams.
	defer func() {
		if r := recover(); r != nil {
			tbl, err = nil, fmt.Errorf("arquivo xls corrompido: %v", r)
		}
	}()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("pasta de trabalho sem planilhas")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("primeira planilha ilegível")
	}

	grid := make([][]table.Value, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]table.Value, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = table.Text(row.Col(j))
		}
		grid = append(grid, cells)
	}
	return fromGrid(grid, false)
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}
