package recompute

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"florapricing/internal"
	"florapricing/internal/consolidate"
	"florapricing/internal/display"
)

// Session holds the line items of one processing run and the table last
// derived from them. Items never change after creation; every edit re-runs
// consolidation from them.
type Session struct {
	mu      sync.RWMutex
	items   []internal.LineItem
	catalog []string
	rate    decimal.Decimal
	rows    []internal.FinalRow
}

func NewSession(items []internal.LineItem, catalog []string, rate decimal.Decimal) *Session {
	s := &Session{
		items:   append([]internal.LineItem(nil), items...),
		catalog: append([]string(nil), catalog...),
		rate:    rate,
	}
	s.rows = consolidate.Consolidate(s.items, rate, s.catalog, nil)
	return s
}

func (s *Session) Items() []internal.LineItem {
	return append([]internal.LineItem(nil), s.items...)
}

func (s *Session) Rate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

func (s *Session) Rows() []internal.FinalRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]internal.FinalRow(nil), s.rows...)
}

func (s *Session) Display() []display.Row {
	return display.Format(s.Rows())
}

// Costs returns the operational cost of every row in the current table.
func (s *Session) Costs() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return costsOf(s.rows)
}

// Edit is one change to a session. A nil Rate keeps the current rate. Costs
// are laid over the current costs, or replace them all when Replace is set.
type Edit struct {
	Rate    *decimal.Decimal
	Costs   map[string]decimal.Decimal
	Replace bool
}

// Update applies an edit and recomputes under a single lock, so concurrent
// edits to the rate and to costs never drop one another.
func (s *Session) Update(e Edit) []internal.FinalRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Rate != nil {
		s.rate = *e.Rate
	}
	costs := make(map[string]decimal.Decimal, len(s.rows)+len(e.Costs))
	if !e.Replace {
		costs = costsOf(s.rows)
	}
	for product, cost := range e.Costs {
		costs[product] = cost
	}
	s.rows = consolidate.Consolidate(s.items, s.rate, s.catalog, costs)
	return append([]internal.FinalRow(nil), s.rows...)
}

// SetRate recomputes with a new exchange rate, keeping the costs already
// entered in the current table.
func (s *Session) SetRate(rate decimal.Decimal) []internal.FinalRow {
	return s.Update(Edit{Rate: &rate})
}

// ApplyDisplayed recomputes from a table the user edited. Only the cost column
// is read; every other cell is derived again.
func (s *Session) ApplyDisplayed(rows []display.Row) []internal.FinalRow {
	return s.Update(Edit{Costs: CostOverrides(rows), Replace: true})
}

// Recompute replaces the rate and the whole cost mapping.
func (s *Session) Recompute(rate decimal.Decimal, costs map[string]decimal.Decimal) []internal.FinalRow {
	return s.Update(Edit{Rate: &rate, Costs: costs, Replace: true})
}

// CostOverrides reads the per-product cost column of a displayed table. When a
// product appears twice the later row wins.
func CostOverrides(rows []display.Row) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		product := strings.TrimSpace(r.Product)
		if product == "" {
			continue
		}
		out[product] = display.ParseBRL(r.OperationalCost)
	}
	return out
}

func costsOf(rows []internal.FinalRow) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Product] = r.OperationalCost
	}
	return out
}
