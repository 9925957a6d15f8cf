package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"florapricing/internal"
	"florapricing/internal/display"
)

const (
	ResultsSheet = "Resultados"
	ItemsSheet   = "Itens"
)

var itemHeaders = []string{"Arquivo", "Produto", "Hastes", "Preço por haste (USD)", "Valor (USD)"}

// ExportTableToXLSX writes the final table and, on a second sheet, every line
// item with the file it came from.
func ExportTableToXLSX(rows []internal.FinalRow, items []internal.LineItem, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return err
	}

	money2 := "#,##0.00"
	money4 := "#,##0.0000"
	style2, err := f.NewStyle(&excelize.Style{CustomNumFmt: &money2})
	if err != nil {
		return err
	}
	style4, err := f.NewStyle(&excelize.Style{CustomNumFmt: &money4})
	if err != nil {
		return err
	}

	writeHeader(f, ResultsSheet, display.Columns)
	for i, row := range rows {
		r := i + 2
		set := func(col int, value any, style int) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(ResultsSheet, cell, value)
			if style != 0 {
				_ = f.SetCellStyle(ResultsSheet, cell, cell, style)
			}
		}
		set(1, row.Product, 0)
		set(2, row.TotalStems, 0)
		set(3, row.Subtotal.InexactFloat64(), style2)
		set(4, row.ExchangeRate.InexactFloat64(), style4)
		set(5, row.Price.InexactFloat64(), style2)
		set(6, row.OperationalCost.InexactFloat64(), style2)
		set(7, row.TotalPerStem.InexactFloat64(), style4)
	}

	writeHeader(f, ItemsSheet, itemHeaders)
	for i, it := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(ItemsSheet, cell, value)
		}
		set(1, it.SourceFile)
		set(2, it.Product)
		set(3, it.Stems)
		set(4, it.RateUSD.InexactFloat64())
		set(5, it.ValueUSD.InexactFloat64())
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}
