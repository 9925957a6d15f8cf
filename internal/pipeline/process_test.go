package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"florapricing/internal"
	"florapricing/internal/config"
	"florapricing/internal/supplier"
)

type panicParser struct{}

func (panicParser) Parse(string) ([]internal.LineItem, error) { panic("boom") }

func testRegistry() *supplier.Registry {
	reg := supplier.NewRegistry(filepath.Join("testdata", "rules"), nil)
	reg.Register("explode", func(string, *slog.Logger) supplier.Parser { return panicParser{} })
	return reg
}

func TestProcessDocumentsIsolatesFailures(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"invoices": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	invoice := filepath.Join("testdata", "invoice.json")
	docs := []Document{
		{Path: invoice, Supplier: "unknown_supplier"},
		{Path: bad, Supplier: supplier.FloresPrismaID},
		{Path: invoice, Supplier: "explode"},
		{Path: "", Supplier: supplier.FloresPrismaID},
		{Path: invoice, Supplier: " "},
		{Path: invoice, Supplier: supplier.FloresPrismaID},
	}

	items, results := ProcessDocuments(context.Background(), testRegistry(), docs, nil)
	if len(results) != len(docs) {
		t.Fatalf("results=%d", len(results))
	}
	want := []internal.DocumentStatus{
		internal.DocumentFailed, internal.DocumentFailed, internal.DocumentFailed,
		internal.DocumentSkipped, internal.DocumentSkipped, internal.DocumentOK,
	}
	for i, w := range want {
		if results[i].Status != w {
			t.Fatalf("doc %d: status=%s want %s (%v)", i, results[i].Status, w, results[i].Err)
		}
	}
	if !errors.Is(results[0].Err, supplier.ErrUnknownSupplier) {
		t.Fatalf("err=%v", results[0].Err)
	}
	if results[2].Err == nil {
		t.Fatal("panic not reported")
	}
	if len(items) != 4 || results[5].Items != 4 || results[5].Stems != 425 {
		t.Fatalf("items=%d result=%+v", len(items), results[5])
	}
}

func TestProcessDocumentsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs := []Document{{Path: filepath.Join("testdata", "invoice.json"), Supplier: supplier.FloresPrismaID}}
	items, results := ProcessDocuments(ctx, testRegistry(), docs, nil)
	if len(items) != 0 || results[0].Status != internal.DocumentFailed || !errors.Is(results[0].Err, context.Canceled) {
		t.Fatalf("results=%+v", results)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults(dir)
	cfg.RulesDir = filepath.Join("testdata", "rules")
	return cfg
}

func TestRunWithoutDatabase(t *testing.T) {
	svc := NewProcessingService(nil, testConfig(t), nil)
	docs := []Document{{Path: filepath.Join("testdata", "invoice.json"), Supplier: supplier.FloresPrismaID}}
	res, err := svc.Run(context.Background(), docs, decimal.NewFromInt(5), map[string]decimal.Decimal{"Freedom 60": decimal.NewFromInt(50)}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" || len(res.Items) != 4 {
		t.Fatalf("res=%+v", res)
	}
	wantProducts := []string{"Freedom 70/80", "Freedom 60", "Freedom 50", "Coloridas"}
	if len(res.Table) != len(wantProducts) {
		t.Fatalf("table=%+v", res.Table)
	}
	for i, p := range wantProducts {
		if res.Table[i].Product != p {
			t.Fatalf("row %d=%s", i, res.Table[i].Product)
		}
	}
	// (150.00 + 50) / 100
	if !res.Table[1].TotalPerStem.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("freedom 60=%+v", res.Table[1])
	}
	if _, err := svc.Recompute(res.RunID, nil, nil); err == nil {
		t.Fatal("recompute without database should fail")
	}
}
