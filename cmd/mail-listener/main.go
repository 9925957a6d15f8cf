package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"florapricing/internal/config"
	"florapricing/internal/listener"
	"florapricing/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("mail listener stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Fail on missing credentials before opening the store.
	if _, err := listener.MakeConnector(ctx, cfg, cfg.MailListenerProvider); err != nil {
		return fmt.Errorf("mail provider %q: %w", cfg.MailListenerProvider, err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("mail listener started",
		"provider", cfg.MailListenerProvider,
		"label", cfg.MailListenerLabel,
		"interval_sec", cfg.MailListenerIntervalSec,
		"auto_export", cfg.MailListenerAutoExport,
	)
	if err := listener.NewService(db, cfg, logger).Run(ctx); err != nil {
		return err
	}
	logger.Info("mail listener shut down")
	return nil
}
