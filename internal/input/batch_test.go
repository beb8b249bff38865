package input

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("keeps_rows_and_trims_values", func(t *testing.T) {
		path := writeWorkbook(t, [][]any{
			{"CPF"},
			{"12345678901"},
			{""},
			{" 98765432100 "},
		})

		batch, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		want := []Record{
			{Row: 2, CPF: "12345678901"},
			{Row: 3, CPF: ""},
			{Row: 4, CPF: "98765432100"},
		}
		if diff := cmp.Diff(want, batch.Records); diff != "" {
			t.Fatalf("Records mismatch (-want +got):\n%s", diff)
		}
		if got := batch.NonEmpty(); got != 2 {
			t.Fatalf("NonEmpty() = %d; want 2", got)
		}
	})

	t.Run("finds_header_past_first_column", func(t *testing.T) {
		path := writeWorkbook(t, [][]any{
			{"Nome", " CPF "},
			{"Alice", "11122233344"},
			{"Bob"},
		})

		batch, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		want := []Record{
			{Row: 2, CPF: "11122233344"},
			{Row: 3, CPF: ""},
		}
		if diff := cmp.Diff(want, batch.Records); diff != "" {
			t.Fatalf("Records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing_cpf_column", func(t *testing.T) {
		path := writeWorkbook(t, [][]any{
			{"Nome", "Telefone"},
			{"Alice", "555-0101"},
		})

		_, err := Load(path)
		if err == nil {
			t.Fatal("Load() error = nil; want missing column error")
		}
		if !strings.Contains(err.Error(), "no CPF column") {
			t.Fatalf("Load() error = %v; want it to name the missing column", err)
		}
	})

	t.Run("header_only_workbook", func(t *testing.T) {
		path := writeWorkbook(t, [][]any{
			{"CPF"},
		})

		batch, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(batch.Records) != 0 {
			t.Fatalf("Records = %v; want none", batch.Records)
		}
		if got := batch.NonEmpty(); got != 0 {
			t.Fatalf("NonEmpty() = %d; want 0", got)
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.xlsx")); err == nil {
			t.Fatal("Load() error = nil; want open error")
		}
	})
}
