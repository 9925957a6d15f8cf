package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"florapricing/internal/config"
	"florapricing/internal/connectors"
	gmailconnector "florapricing/internal/connectors/gmail"
	imapconnector "florapricing/internal/connectors/imap"
	"florapricing/internal/pipeline"
	"florapricing/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
	logger    *slog.Logger
	// connect is replaced in tests.
	connect func(ctx context.Context, provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:        db,
		cfg:       cfg,
		processor: pipeline.NewProcessingService(db, cfg, logger),
		logger:    logger.With("component", "listener"),
	}
	s.connect = s.makeConnector
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle fetches new mail, processes pending emails and exports their tables.
func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.connect(ctx, provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processed, err := s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	exported := 0
	if s.cfg.MailListenerAutoExport {
		if exported, err = s.ExportProcessed(provider); err != nil {
			return err
		}
	}

	s.logger.Info("listener cycle done", "provider", provider, "fetched", fetchResult.Fetched, "stored", fetchResult.Stored, "processed", processed, "exported", exported)
	return nil
}

// ExportProcessed writes an XLSX table for every processed email of provider
// and marks it exported.
func (s *Service) ExportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider || email.RunID == nil {
			continue
		}
		res, err := s.processor.Recompute(*email.RunID, nil, nil)
		if err != nil {
			return exported, err
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportTableToXLSX(res.Table, res.Items, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateEmailStatus(email.ID, "exported"); err != nil {
			return exported, err
		}
		s.logger.Info("table exported", "email", email.ID, "run", *email.RunID, "path", outputPath)
		exported++
	}
	return exported, nil
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func MakeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	return (&Service{cfg: cfg}).makeConnector(ctx, strings.ToLower(strings.TrimSpace(provider)))
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
