package portal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// GridData is the payload read out of the results grid for one record.
type GridData struct {
	ParcelasPagas int
	Saldo         float64
}

// parseGrid extracts the payload from the results grid HTML. Columns are
// located by header text so the portal can reorder them without breaking
// extraction; the first data row carries the record payload.
func parseGrid(html string) (GridData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return GridData{}, fmt.Errorf("parse grid html: %w", err)
	}

	parcelasCol, saldoCol := -1, -1
	doc.Find("th").Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		switch {
		case strings.Contains(text, "parcela"):
			parcelasCol = i
		case strings.Contains(text, "saldo"):
			saldoCol = i
		}
	})
	if parcelasCol < 0 || saldoCol < 0 {
		return GridData{}, fmt.Errorf("grid header lacks parcelas/saldo columns")
	}

	// First row carrying td cells is the record row; header rows use th.
	var row *goquery.Selection
	doc.Find("tr").EachWithBreak(func(_ int, r *goquery.Selection) bool {
		if r.Find("td").Length() > 0 {
			row = r
			return false
		}
		return true
	})
	if row == nil {
		return GridData{}, fmt.Errorf("grid has no data row")
	}

	cells := row.Find("td")
	if cells.Length() <= parcelasCol || cells.Length() <= saldoCol {
		return GridData{}, fmt.Errorf("grid row has %d cells, need columns %d and %d", cells.Length(), parcelasCol, saldoCol)
	}

	parcelas, err := strconv.Atoi(strings.TrimSpace(cells.Eq(parcelasCol).Text()))
	if err != nil {
		return GridData{}, fmt.Errorf("parcelas cell %q: %w", cells.Eq(parcelasCol).Text(), err)
	}

	saldo, err := parseDecimal(cells.Eq(saldoCol).Text())
	if err != nil {
		return GridData{}, fmt.Errorf("saldo cell: %w", err)
	}

	return GridData{ParcelasPagas: parcelas, Saldo: saldo}, nil
}

// parseDecimal handles the portal's pt-BR money formatting: "R$ 1.235,00"
// and "1.235,00" both come out as 1235.00. Values already using a dot
// decimal separator parse as-is.
func parseDecimal(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal value")
	}

	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("decimal value %q: %w", raw, err)
	}
	return v, nil
}
