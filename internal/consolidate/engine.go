package consolidate

import (
	"sort"

	"github.com/shopspring/decimal"

	"florapricing/internal"
	"florapricing/internal/catalog"
)

const (
	subtotalPlaces     = 2
	pricePlaces        = 2
	totalPerStemPlaces = 4
)

type group struct {
	product  string
	stems    int64
	subtotal decimal.Decimal
}

// Consolidate builds the pricing table: one row per catalog product, in
// catalog order, followed by any product outside the catalog in the order it
// was first seen. It does not modify its arguments; costs may be nil.
func Consolidate(items []internal.LineItem, rate decimal.Decimal, products []string, costs map[string]decimal.Decimal) []internal.FinalRow {
	idx := catalog.BuildIndex(products)
	groups := groupItems(items)

	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		seen[g.product] = struct{}{}
	}
	for _, p := range idx.Products {
		if _, ok := seen[p]; !ok {
			groups = append(groups, &group{product: p, subtotal: decimal.Zero})
		}
	}

	sentinel := idx.Len()
	key := func(product string) int {
		if pos, ok := idx.Position(product); ok {
			return pos
		}
		return sentinel
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return key(groups[i].product) < key(groups[j].product)
	})

	rows := make([]internal.FinalRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, deriveRow(g, rate, costs[g.product]))
	}
	return rows
}

func groupItems(items []internal.LineItem) []*group {
	byProduct := map[string]*group{}
	ordered := make([]*group, 0)
	for _, it := range items {
		g, ok := byProduct[it.Product]
		if !ok {
			g = &group{product: it.Product, subtotal: decimal.Zero}
			byProduct[it.Product] = g
			ordered = append(ordered, g)
		}
		g.stems += it.Stems
		g.subtotal = g.subtotal.Add(it.ValueUSD)
	}
	return ordered
}

// deriveRow rounds each derived column exactly once, half away from zero.
func deriveRow(g *group, rate, cost decimal.Decimal) internal.FinalRow {
	subtotal := g.subtotal.Round(subtotalPlaces)
	price := subtotal.Mul(rate).Round(pricePlaces)
	total := decimal.Zero
	if g.stems > 0 {
		total = price.Add(cost).DivRound(decimal.NewFromInt(g.stems), totalPerStemPlaces)
	}
	return internal.FinalRow{
		Product:         g.product,
		TotalStems:      g.stems,
		Subtotal:        subtotal,
		ExchangeRate:    rate,
		Price:           price,
		OperationalCost: cost,
		TotalPerStem:    total,
	}
}
