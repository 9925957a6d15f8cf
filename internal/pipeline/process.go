package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"florapricing/internal"
	"florapricing/internal/catalog"
	"florapricing/internal/config"
	"florapricing/internal/consolidate"
	"florapricing/internal/storage"
	"florapricing/internal/supplier"
)

// Document is one uploaded invoice file and the supplier chosen for it.
// Entries with a blank path or supplier are skipped.
type Document struct {
	Path     string
	Supplier string
}

// ProcessDocuments parses each document with its supplier's parser. A failing
// document is reported in its result and never stops the others.
func ProcessDocuments(ctx context.Context, reg *supplier.Registry, docs []Document, logger *slog.Logger) ([]internal.LineItem, []internal.DocumentResult) {
	if logger == nil {
		logger = slog.Default()
	}
	items := []internal.LineItem{}
	results := make([]internal.DocumentResult, 0, len(docs))

	for _, doc := range docs {
		res := internal.DocumentResult{File: filepath.Base(doc.Path), Supplier: doc.Supplier}
		switch {
		case strings.TrimSpace(doc.Path) == "" || strings.TrimSpace(doc.Supplier) == "":
			res.Status = internal.DocumentSkipped
			if res.File == "." {
				res.File = ""
			}
		case ctx.Err() != nil:
			res.Status = internal.DocumentFailed
			res.Err = ctx.Err()
		default:
			parsed, err := parseDocument(reg, doc)
			if err != nil {
				res.Status = internal.DocumentFailed
				res.Err = err
				break
			}
			res.Status = internal.DocumentOK
			res.Items = len(parsed)
			for _, it := range parsed {
				res.Stems += it.Stems
			}
			items = append(items, parsed...)
		}

		if res.Status == internal.DocumentFailed {
			logger.Warn("document failed", "file", res.File, "supplier", res.Supplier, "err", res.Err)
		} else {
			logger.Info("document", "file", res.File, "supplier", res.Supplier, "status", res.Status, "items", res.Items, "stems", res.Stems)
		}
		results = append(results, res)
	}
	return items, results
}

func parseDocument(reg *supplier.Registry, doc Document) (items []internal.LineItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	p, err := reg.Parser(strings.TrimSpace(doc.Supplier))
	if err != nil {
		return nil, err
	}
	return p.Parse(doc.Path)
}

type ProcessingService struct {
	db       *storage.DB
	cfg      config.Config
	registry *supplier.Registry
	products []string
	logger   *slog.Logger
}

// NewProcessingService wires the parser registry and product catalog from
// cfg. db may be nil, in which case runs are not persisted.
func NewProcessingService(db *storage.DB, cfg config.Config, logger *slog.Logger) *ProcessingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingService{
		db:       db,
		cfg:      cfg,
		registry: supplier.NewRegistry(cfg.RulesDir, logger),
		products: catalog.LoadProducts(cfg.ProductsFile),
		logger:   logger,
	}
}

func (s *ProcessingService) Registry() *supplier.Registry { return s.registry }

func (s *ProcessingService) Products() []string {
	return append([]string(nil), s.products...)
}

func (s *ProcessingService) Suppliers() []string {
	return catalog.LoadSuppliers(s.cfg.SuppliersFile)
}

type RunResult struct {
	RunID   string
	Rate    decimal.Decimal
	Items   []internal.LineItem
	Results []internal.DocumentResult
	Table   []internal.FinalRow
}

// Run parses docs, consolidates them and records the run when a database is
// configured. Document failures are in the result; the error is for storage.
func (s *ProcessingService) Run(ctx context.Context, docs []Document, rate decimal.Decimal, costs map[string]decimal.Decimal, source string) (RunResult, error) {
	items, results := ProcessDocuments(ctx, s.registry, docs, s.logger)
	res := RunResult{
		RunID:   uuid.NewString(),
		Rate:    rate,
		Items:   items,
		Results: results,
		Table:   consolidate.Consolidate(items, rate, s.products, costs),
	}
	if s.db != nil {
		run := internal.RunRecord{ID: res.RunID, ExchangeRate: rate, Source: source}
		if _, err := s.db.InsertRun(run, items, results); err != nil {
			return res, err
		}
	}
	s.logger.Info("run complete", "run", res.RunID, "documents", len(docs), "items", len(items), "rows", len(res.Table))
	return res, nil
}

// Recompute rebuilds a stored run's table from its stored line items. A nil
// rate keeps the rate the run was created with.
func (s *ProcessingService) Recompute(runID string, rate *decimal.Decimal, costs map[string]decimal.Decimal) (RunResult, error) {
	if s.db == nil {
		return RunResult{}, errors.New("recompute needs a database")
	}
	run, err := s.db.GetRun(runID)
	if err != nil {
		return RunResult{}, err
	}
	items, err := s.db.ListRunItems(runID)
	if err != nil {
		return RunResult{}, err
	}
	docs, err := s.db.ListRunDocuments(runID)
	if err != nil {
		return RunResult{}, err
	}
	r := run.ExchangeRate
	if rate != nil {
		r = *rate
	}
	return RunResult{
		RunID:   runID,
		Rate:    r,
		Items:   items,
		Results: docs,
		Table:   consolidate.Consolidate(items, r, s.products, costs),
	}, nil
}

func (s *ProcessingService) DefaultRate() decimal.Decimal {
	return decimal.NewFromFloat(s.cfg.DefaultExchangeRate)
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (RunResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return RunResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, email := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if provider != "" && email.Provider != provider {
			continue
		}
		if _, err := s.ProcessEmail(ctx, email); err != nil {
			s.logger.Warn("email processing failed", "email", email.ID, "message_id", email.MessageID, "err", err)
			if err := s.db.UpdateEmailStatus(email.ID, "failed"); err != nil {
				return processed, err
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// ProcessEmail runs the invoice attachments of a stored email through the
// configured mail supplier. Emails without invoices are marked skipped.
func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (RunResult, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return RunResult{}, err
	}
	extracted, err := ExtractInvoiceAttachments(raw)
	if err != nil {
		return RunResult{}, err
	}
	for _, name := range extracted.Skipped {
		s.logger.Debug("attachment ignored", "email", email.ID, "name", name)
	}
	if len(extracted.Attachments) == 0 {
		s.logger.Info("no invoice attachments", "email", email.ID, "subject", firstNonEmpty(extracted.Subject, email.Subject))
		return RunResult{}, s.db.UpdateEmailStatus(email.ID, "skipped")
	}

	dir := filepath.Join(s.cfg.RawMailDir, "attachments", email.Hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RunResult{}, err
	}
	docs := make([]Document, 0, len(extracted.Attachments))
	for i, att := range extracted.Attachments {
		attDir := filepath.Join(dir, strconv.Itoa(i))
		if err := os.MkdirAll(attDir, 0o755); err != nil {
			return RunResult{}, err
		}
		path := filepath.Join(attDir, att.Name)
		if err := os.WriteFile(path, att.Content, 0o644); err != nil {
			return RunResult{}, err
		}
		docs = append(docs, Document{Path: path, Supplier: s.cfg.MailSupplier})
	}

	res, err := s.Run(ctx, docs, s.DefaultRate(), nil, "email:"+email.Provider)
	if err != nil {
		return res, err
	}
	if err := s.db.SetEmailRun(email.ID, res.RunID); err != nil {
		return res, err
	}
	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return res, err
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
