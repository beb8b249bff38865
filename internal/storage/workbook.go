package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/opextools/portal_agent/internal/portal"
)

// WriteWorkbook saves the consolidated results spreadsheet. Failed
// records keep their identifier and status; the numeric columns stay
// blank.
func WriteWorkbook(path string, results []portal.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetList()[0]
	if err := f.SetSheetRow(sheet, "A1", &[]any{"CPF", "Status", "ParcelasPagas", "Saldo"}); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	for i, res := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		row := []any{res.CPF, res.Status, nil, nil}
		if res.ParcelasPagas != nil {
			row[2] = *res.ParcelasPagas
		}
		if res.Saldo != nil {
			row[3] = *res.Saldo
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
