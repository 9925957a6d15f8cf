package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"florapricing/internal"
	"florapricing/internal/consolidate"
)

func TestExportTableToXLSX(t *testing.T) {
	items := []internal.LineItem{
		{Product: "A", Stems: 100, RateUSD: decimal.RequireFromString("0.5"), ValueUSD: decimal.RequireFromString("50"), SourceFile: "one.json"},
		{Product: "Z", Stems: 3, RateUSD: decimal.RequireFromString("1"), ValueUSD: decimal.RequireFromString("3"), SourceFile: "two.json"},
	}
	rows := consolidate.Consolidate(items, decimal.NewFromInt(5), []string{"A", "B"}, nil)
	out := filepath.Join(t.TempDir(), "sub", "table.xlsx")
	if err := ExportTableToXLSX(rows, items, out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	results, err := f.GetRows(ResultsSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 || results[0][0] != "Produto" || results[0][6] != "Total" {
		t.Fatalf("results=%v", results)
	}
	if results[1][0] != "A" || results[1][1] != "100" || results[1][4] != "250" {
		t.Fatalf("row A=%v", results[1])
	}
	if results[3][0] != "Z" {
		t.Fatalf("order=%v", results)
	}

	itemRows, err := f.GetRows(ItemsSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(itemRows) != 3 || itemRows[1][0] != "one.json" || itemRows[2][0] != "two.json" {
		t.Fatalf("items=%v", itemRows)
	}
}
