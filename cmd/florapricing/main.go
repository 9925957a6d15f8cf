package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"florapricing/internal/config"
	"florapricing/internal/pipeline"
	"florapricing/internal/storage"
)

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	verbose bool
	db      *storage.DB
}

func main() {
	cfg, err := config.Load()
	must(err)

	a := &app{cfg: cfg}
	root := a.rootCmd()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = root.ExecuteContext(ctx)
	if a.db != nil {
		_ = a.db.Close()
	}
	must(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "florapricing",
		Short:         "Consolidate flower supplier invoices into a priced product table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(a.logger)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.processCmd(),
		a.recomputeCmd(),
		a.runsCmd(),
		a.suppliersCmd(),
		a.mailFetchCmd(),
		a.mailProcessCmd(),
		a.mailListenCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) openDB() (*storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := storage.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) processor(db *storage.DB) *pipeline.ProcessingService {
	return pipeline.NewProcessingService(db, a.cfg, a.logger)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
