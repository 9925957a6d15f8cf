package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"florapricing/internal/storage"
)

func TestSmokeEmailToXLSX(t *testing.T) {
	cfg := testConfig(t)
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rawBlob, err := os.ReadFile(filepath.Join("testdata", "invoice_email.eml"))
	if err != nil {
		t.Fatal(err)
	}
	rawPath := filepath.Join(t.TempDir(), "fixture.eml")
	if err := os.WriteFile(rawPath, rawBlob, 0o644); err != nil {
		t.Fatal(err)
	}

	email, err := db.UpsertEmail("imap", "<fp-2024-0117@floresprisma.example>", "Invoice FP-2024-0117", "faturamento@floresprisma.example", "2024-01-15T13:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	proc := NewProcessingService(db, cfg, nil)
	n, err := proc.ProcessPending(context.Background(), 10, "imap")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("processed=%d", n)
	}

	stored, err := db.GetEmailByID(email.ID)
	if err != nil || stored == nil || stored.RunID == nil || stored.Status != "processed" {
		t.Fatalf("email=%+v err=%v", stored, err)
	}

	rate := decimal.RequireFromString("5.5")
	res, err := proc.Recompute(*stored.RunID, &rate, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 4 || len(res.Results) != 1 {
		t.Fatalf("res=%+v", res)
	}
	for _, item := range res.Items {
		if item.SourceFile != "FP-2024-0117.json" {
			t.Fatalf("source=%q", item.SourceFile)
		}
	}
	// 80.00 x 5.5
	if !res.Table[0].Price.Equal(decimal.RequireFromString("440")) {
		t.Fatalf("row=%+v", res.Table[0])
	}

	out := filepath.Join(t.TempDir(), "result.xlsx")
	if err := ExportTableToXLSX(res.Table, res.Items, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}

func TestProcessEmailWithoutInvoices(t *testing.T) {
	cfg := testConfig(t)
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rawPath := filepath.Join(t.TempDir(), "plain.eml")
	raw := "From: a@example.com\r\nSubject: oi\r\nContent-Type: text/plain\r\n\r\nsem anexos\r\n"
	if err := os.WriteFile(rawPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("gmail", "m2", "oi", "a@example.com", "", "h2", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}
	proc := NewProcessingService(db, cfg, nil)
	if _, err := proc.ProcessEmail(context.Background(), email); err != nil {
		t.Fatal(err)
	}
	stored, _ := db.GetEmailByID(email.ID)
	if stored.Status != "skipped" || stored.RunID != nil {
		t.Fatalf("email=%+v", stored)
	}
}

func TestProcessPendingContinuesPastFailedEmail(t *testing.T) {
	cfg := testConfig(t)
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rawBlob, err := os.ReadFile(filepath.Join("testdata", "invoice_email.eml"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.eml")
	if err := os.WriteFile(goodPath, rawBlob, 0o644); err != nil {
		t.Fatal(err)
	}

	bad, err := db.UpsertEmail("imap", "<gone@example.com>", "Invoice", "a@example.com", "2024-01-01T00:00:00Z", "h-bad", filepath.Join(dir, "gone.eml"), "fetched")
	if err != nil {
		t.Fatal(err)
	}
	good, err := db.UpsertEmail("imap", "<fp@example.com>", "Invoice", "a@example.com", "2024-01-02T00:00:00Z", "h-good", goodPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	proc := NewProcessingService(db, cfg, nil)
	n, err := proc.ProcessPending(context.Background(), 10, "imap")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("processed=%d", n)
	}

	for _, tc := range []struct {
		id     int
		status string
	}{
		{bad.ID, "failed"},
		{good.ID, "processed"},
	} {
		stored, err := db.GetEmailByID(tc.id)
		if err != nil || stored == nil || stored.Status != tc.status {
			t.Fatalf("email %d: %+v err=%v", tc.id, stored, err)
		}
	}

	n, err = proc.ProcessPending(context.Background(), 10, "imap")
	if err != nil || n != 0 {
		t.Fatalf("second pass processed=%d err=%v", n, err)
	}
}
