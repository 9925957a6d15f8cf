package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"florapricing/internal"
	"florapricing/internal/config"
	"florapricing/internal/connectors"
	"florapricing/internal/storage"
)

type fakeConnector struct{ raw []byte }

func (f fakeConnector) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	return []internal.FetchedMailMessage{{Provider: "imap", MessageID: "imap-1", Raw: f.raw}}, nil
}

func TestRunCycleFetchProcessExport(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "pipeline", "testdata", "invoice_email.eml"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg := config.Defaults(dir)
	cfg.RulesDir = filepath.Join("..", "pipeline", "testdata", "rules")
	cfg.MailListenerProvider = "imap"

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	svc := NewService(db, cfg, nil)
	svc.connect = func(context.Context, string) (connectors.MailConnector, error) {
		return fakeConnector{raw: raw}, nil
	}
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	email, err := db.GetEmailByProviderMessageID("imap", "<fp-2024-0117@floresprisma.example>")
	if err != nil || email == nil {
		t.Fatalf("email=%v err=%v", email, err)
	}
	if email.Status != "exported" || email.RunID == nil {
		t.Fatalf("email=%+v", email)
	}
	matches, _ := filepath.Glob(filepath.Join(cfg.OutputDir, "listener", "*.xlsx"))
	if len(matches) != 1 {
		t.Fatalf("exports=%v", matches)
	}

	// A second cycle sees the same message but does not process it again.
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	runs, _ := db.ListRuns(10)
	if len(runs) != 1 {
		t.Fatalf("runs=%d", len(runs))
	}
}

func TestSanitizeMessageID(t *testing.T) {
	if got := sanitizeMessageID("<a/b@c>"); got != "_a_b_c_" {
		t.Fatalf("got %q", got)
	}
}

func TestMakeConnectorUnknownProvider(t *testing.T) {
	if _, err := MakeConnector(context.Background(), config.Defaults(t.TempDir()), "pop3"); err == nil {
		t.Fatal("expected error")
	}
}
