// Package input loads the batch workbook that drives an extraction run.
package input

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// headerName is the column heading that marks the identifier column.
const headerName = "CPF"

// Record is a single workbook row. Row is the 1-based spreadsheet row
// number, including the header row.
type Record struct {
	Row int
	CPF string
}

// Batch is the parsed input workbook.
type Batch struct {
	Path    string
	Records []Record
}

// NonEmpty counts records that carry an identifier. Empty rows stay in
// Records with their spreadsheet positions but do not count toward batch
// totals.
func (b *Batch) NonEmpty() int {
	n := 0
	for _, r := range b.Records {
		if r.CPF != "" {
			n++
		}
	}
	return n
}

// Load reads the first sheet of the workbook at path. The header row must
// contain a CPF column; every row below it becomes a Record, empty ones
// included. Cell values are trimmed.
func Load(path string) (*Batch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	col := -1
	for i, cell := range rows[0] {
		if strings.TrimSpace(cell) == headerName {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("sheet %s has no %s column", sheet, headerName)
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		value := ""
		if col < len(row) {
			value = strings.TrimSpace(row[col])
		}
		records = append(records, Record{Row: i + 2, CPF: value})
	}

	return &Batch{Path: path, Records: records}, nil
}
