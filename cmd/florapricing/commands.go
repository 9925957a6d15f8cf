package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"florapricing/internal"
	"florapricing/internal/catalog"
	"florapricing/internal/connectors"
	"florapricing/internal/display"
	"florapricing/internal/listener"
	"florapricing/internal/pipeline"
	"florapricing/internal/server"
	"florapricing/internal/storage"
)

func (a *app) processCmd() *cobra.Command {
	var files, costs []string
	var rate, out, defaultSupplier string
	var noStore bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Parse invoice files and print the consolidated table",
		Example: "  florapricing process --file inv1.json --file inv2.json:flores_prisma --rate 5,43 --cost \"Freedom 60=25,00\" --out out/tabela.xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return errors.New("at least one --file is required")
			}
			r, err := parseAmount(rate)
			if err != nil {
				return fmt.Errorf("--rate: %w", err)
			}
			overrides, err := parseCosts(costs)
			if err != nil {
				return err
			}
			var db *storage.DB
			if !noStore {
				if db, err = a.openDB(); err != nil {
					return err
				}
			}

			docs := make([]pipeline.Document, 0, len(files))
			for _, f := range files {
				docs = append(docs, parseFileArg(f, defaultSupplier))
			}
			res, err := a.processor(db).Run(cmd.Context(), docs, r, overrides, "cli")
			if err != nil {
				return err
			}
			for _, doc := range res.Results {
				fmt.Fprintln(cmd.ErrOrStderr(), doc.Log())
			}
			return a.emit(cmd, res, out)
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", nil, "invoice path, optionally suffixed with :supplier")
	cmd.Flags().StringVar(&defaultSupplier, "supplier", "flores_prisma", "supplier for files without a suffix")
	cmd.Flags().StringVar(&rate, "rate", decimal.NewFromFloat(a.cfg.DefaultExchangeRate).String(), "exchange rate (BRL per USD)")
	cmd.Flags().StringArrayVar(&costs, "cost", nil, "operational cost as \"Produto=valor\"")
	cmd.Flags().StringVar(&out, "out", "", "write the table to this xlsx file")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not record the run in the database")
	return cmd
}

func (a *app) recomputeCmd() *cobra.Command {
	var runID, rate, out string
	var costs []string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild a stored run's table with a new rate or costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(runID) == "" {
				return errors.New("--run is required")
			}
			overrides, err := parseCosts(costs)
			if err != nil {
				return err
			}
			var r *decimal.Decimal
			if strings.TrimSpace(rate) != "" {
				v, err := parseAmount(rate)
				if err != nil {
					return fmt.Errorf("--rate: %w", err)
				}
				r = &v
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			res, err := a.processor(db).Recompute(runID, r, overrides)
			if err != nil {
				return err
			}
			return a.emit(cmd, res, out)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	cmd.Flags().StringVar(&rate, "rate", "", "exchange rate; defaults to the run's rate")
	cmd.Flags().StringArrayVar(&costs, "cost", nil, "operational cost as \"Produto=valor\"")
	cmd.Flags().StringVar(&out, "out", "", "write the table to this xlsx file")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent processing runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			table := newTable(cmd, []string{"ID", "CREATED", "RATE", "SOURCE", "ITEMS"})
			for _, r := range runs {
				table.Append([]string{r.ID, r.CreatedAt, r.ExchangeRate.String(), r.Source, strconv.Itoa(r.ItemCount)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs")
	return cmd
}

func (a *app) suppliersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suppliers",
		Short: "List configured suppliers and whether a parser exists for each",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.processor(nil).Registry()
			known := map[string]bool{}
			for _, id := range reg.IDs() {
				known[id] = true
			}
			for _, id := range catalog.LoadSuppliers(a.cfg.SuppliersFile) {
				status := "ok"
				if !known[id] {
					status = "no parser"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, status, reg.RulesPath(id))
			}
			return nil
		},
	}
}

func (a *app) mailFetchCmd() *cobra.Command {
	var provider, label string
	var max int
	cmd := &cobra.Command{
		Use:   "mail:fetch",
		Short: "Download new invoice emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			conn, err := listener.MakeConnector(cmd.Context(), a.cfg, provider)
			if err != nil {
				return err
			}
			fetch := connectors.NewFetchService(db, a.cfg.RawMailDir, conn, a.logger)
			res, err := fetch.FetchAndStore(cmd.Context(), label, max)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mail fetch done provider=%s fetched=%d stored=%d failed=%d\n", provider, res.Fetched, res.Stored, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", a.cfg.MailListenerProvider, "gmail|imap")
	cmd.Flags().StringVar(&label, "label", a.cfg.MailListenerLabel, "mailbox/label")
	cmd.Flags().IntVar(&max, "max", 50, "max messages")
	return cmd
}

func (a *app) mailProcessCmd() *cobra.Command {
	var provider, messageID string
	var batch int
	cmd := &cobra.Command{
		Use:   "mail:process",
		Short: "Process fetched invoice emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			proc := a.processor(db)
			if strings.TrimSpace(messageID) != "" {
				res, err := proc.ProcessByProviderMessageID(cmd.Context(), provider, messageID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed run=%s items=%d\n", res.RunID, len(res.Items))
				return nil
			}
			n, err := proc.ProcessPending(cmd.Context(), batch, provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed pending emails=%d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", a.cfg.MailListenerProvider, "gmail|imap")
	cmd.Flags().StringVar(&messageID, "message-id", "", "specific Message-ID")
	cmd.Flags().IntVar(&batch, "batch", 20, "batch size")
	return cmd
}

func (a *app) mailListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mail:listen",
		Short: "Poll the mailbox and export tables until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			return listener.NewService(db, a.cfg, a.logger).Run(cmd.Context())
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if !a.verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			h := server.NewHandler(a.processor(db), filepath.Join(a.cfg.OutputDir, "uploads"), a.logger)
			srv := &http.Server{Addr: addr, Handler: server.NewRouter(h, a.logger), ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("listening", "addr", addr)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", a.cfg.HTTPAddr, "listen address")
	return cmd
}

func (a *app) emit(cmd *cobra.Command, res pipeline.RunResult, out string) error {
	if err := printTable(cmd, res.Table); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", res.RunID)
	if strings.TrimSpace(out) == "" {
		return nil
	}
	if err := pipeline.ExportTableToXLSX(res.Table, res.Items, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", len(res.Table), out)
	return nil
}

func printTable(cmd *cobra.Command, rows []internal.FinalRow) error {
	table := newTable(cmd, display.Columns)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range display.Format(rows) {
		table.Append(r.Cells())
	}
	table.Render()
	return nil
}

func newTable(cmd *cobra.Command, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

// parseFileArg splits "path:supplier". A suffix containing a path separator
// belongs to the path.
func parseFileArg(arg, defaultSupplier string) pipeline.Document {
	if i := strings.LastIndex(arg, ":"); i > 0 {
		suffix := arg[i+1:]
		if suffix != "" && !strings.ContainsAny(suffix, `/\`) {
			return pipeline.Document{Path: arg[:i], Supplier: suffix}
		}
	}
	return pipeline.Document{Path: arg, Supplier: defaultSupplier}
}

// parseAmount reads "5.43", "5,43" or "R$ 1.234,56". With a comma present,
// dots are thousands separators. Negative amounts are rejected.
func parseAmount(text string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "R$")
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.NewReplacer(" ", "", "\u00a0", "").Replace(clean)
	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	}
	v, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", text)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", text)
	}
	return v, nil
}

func parseCosts(args []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(args))
	for _, arg := range args {
		product, value, ok := strings.Cut(arg, "=")
		product = strings.TrimSpace(product)
		if !ok || product == "" {
			return nil, fmt.Errorf("--cost %q: expected Produto=valor", arg)
		}
		v, err := parseAmount(value)
		if err != nil {
			return nil, fmt.Errorf("--cost %q: %w", arg, err)
		}
		out[product] = v
	}
	return out, nil
}
