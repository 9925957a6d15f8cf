package supplier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"florapricing/internal"
	"florapricing/internal/lookup"
)

var ErrUnknownSupplier = errors.New("no parser registered for supplier")

// Parser turns one invoice document into normalized line items.
type Parser interface {
	Parse(path string) ([]internal.LineItem, error)
}

// Factory builds a supplier parser from the path of its lookup rule file.
type Factory func(rulesPath string, logger *slog.Logger) Parser

var builtin = map[string]Factory{
	FloresPrismaID: NewFloresPrisma,
}

// Registry maps supplier ids to parsers. Parsers are built on first use and
// reused, so each rule file is read once per registry.
type Registry struct {
	rulesDir  string
	logger    *slog.Logger
	mu        sync.Mutex
	factories map[string]Factory
	parsers   map[string]Parser
}

func NewRegistry(rulesDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		rulesDir:  rulesDir,
		logger:    logger,
		factories: map[string]Factory{},
		parsers:   map[string]Parser{},
	}
	for id, f := range builtin {
		r.factories[id] = f
	}
	return r
}

func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
	delete(r.parsers, id)
}

func (r *Registry) Parser(id string) (Parser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.parsers[id]; ok {
		return p, nil
	}
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSupplier, id)
	}
	p := f(r.RulesPath(id), r.logger.With("supplier", id))
	r.parsers[id] = p
	return p, nil
}

func (r *Registry) RulesPath(id string) string {
	return filepath.Join(r.rulesDir, id, "depara.json")
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Layout names the product fields of a supplier's JSON export.
type Layout struct {
	Product       string
	StemsPerBunch string
	Bunches       string
	Rate          string
}

type jsonInvoiceParser struct {
	layout Layout
	mapper *lookup.Mapper
}

func NewJSONInvoiceParser(layout Layout, mapper *lookup.Mapper) Parser {
	return &jsonInvoiceParser{layout: layout, mapper: mapper}
}

type invoiceDocument struct {
	Invoices []struct {
		Boxes []struct {
			Products []map[string]any `json:"products"`
		} `json:"boxes"`
	} `json:"invoices"`
}

func (p *jsonInvoiceParser) Parse(path string) ([]internal.LineItem, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))))
	dec.UseNumber()
	var doc invoiceDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(doc.Invoices) == 0 {
		return []internal.LineItem{}, nil
	}

	source := filepath.Base(path)
	out := make([]internal.LineItem, 0)
	for _, box := range doc.Invoices[0].Boxes {
		for _, product := range box.Products {
			item, ok := p.lineItem(product, source)
			if !ok {
				continue
			}
			out = append(out, item)
		}
	}
	return out, nil
}

func (p *jsonInvoiceParser) lineItem(fields map[string]any, source string) (internal.LineItem, bool) {
	name, ok := p.mapper.Resolve(identifier(fields[p.layout.Product]))
	if !ok {
		return internal.LineItem{}, false
	}

	perBunch := ParseInt(fields[p.layout.StemsPerBunch])
	var bunches int64 = 1
	if raw := fields[p.layout.Bunches]; !isFalsy(raw) {
		bunches = ParseInt(raw)
	}
	stems := perBunch * bunches
	rate := ParseDecimal(fields[p.layout.Rate])

	return internal.LineItem{
		Product:    name,
		Stems:      stems,
		RateUSD:    rate,
		ValueUSD:   rate.Mul(decimal.NewFromInt(stems)),
		SourceFile: source,
	}, true
}

func identifier(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	default:
		s := fmt.Sprint(t)
		return &s
	}
}
