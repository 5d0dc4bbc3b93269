package loader

import (
	"errors"

	"github.com/kingrea/packsync/internal/table"
	"github.com/xuri/excelize/v2"
)

// loadXLSX reads the first sheet of an .xlsx or .xlsm workbook.
func loadXLSX(path string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("pasta de trabalho sem planilhas")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return fromGrid(textGrid(rows), false)
}
